package extract

import "time"

// AmountCandidate is one currency-shaped substring found in the body, scored
// by its proximity to bill-related keywords.
type AmountCandidate struct {
	Value    float64 `json:"value"`
	Context  string  `json:"context"`
	Position int     `json:"position"`
	Score    float64 `json:"score"`
}

// DateCandidate is one parsed date with the text around it. Confidence
// reflects both the format's specificity and nearby due-date wording.
type DateCandidate struct {
	Date       time.Time `json:"date"`
	Context    string    `json:"context"`
	Confidence float64   `json:"confidence"`
}

// NameCandidate is a possible vendor/bill name, ranked by source quality
// (subject patterns beat sender-domain guesses).
type NameCandidate struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// CandidateSet is the full output of one heuristic scan. It is ephemeral:
// orchestration reads it, persists an Extraction, and throws it away.
type CandidateSet struct {
	Amounts []AmountCandidate `json:"amounts"`
	Dates   []DateCandidate   `json:"dates"`
	Names   []NameCandidate   `json:"names"`

	KeywordScore    float64  `json:"keyword_score"`
	MatchedKeywords []string `json:"matched_keywords"`

	Promotional bool    `json:"promotional"`
	PromoScore  float64 `json:"promo_score"`

	// SkipReason is empty when the email is processable.
	SkipReason string `json:"skip_reason,omitempty"`
}

// BestAmount returns the highest-scored amount candidate, or false when the
// scan found none.
func (c *CandidateSet) BestAmount() (AmountCandidate, bool) {
	if len(c.Amounts) == 0 {
		return AmountCandidate{}, false
	}
	return c.Amounts[0], true
}

// BestDate returns the highest-confidence date candidate, or false when the
// scan found none.
func (c *CandidateSet) BestDate() (DateCandidate, bool) {
	if len(c.Dates) == 0 {
		return DateCandidate{}, false
	}
	return c.Dates[0], true
}

// BestName returns the top-ranked name candidate, or false when the scan
// found none.
func (c *CandidateSet) BestName() (NameCandidate, bool) {
	if len(c.Names) == 0 {
		return NameCandidate{}, false
	}
	return c.Names[0], true
}

// Confidence converts the scan's evidence into a single heuristic confidence
// in [0,1]: the best amount's score blended with the best date's confidence,
// discounted when the keyword evidence is thin.
func (c *CandidateSet) Confidence() float64 {
	best, ok := c.BestAmount()
	if !ok {
		return 0
	}

	conf := 0.3 + 0.4*min1(best.Score)
	if date, ok := c.BestDate(); ok {
		conf += 0.2 * date.Confidence
	}
	conf += 0.1 * min1(c.KeywordScore/3)

	return min1(conf)
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
