// Package extract implements the heuristic scan that turns cleaned email
// text into amount/date/name candidates plus a promotional score. Scan is a
// pure function: same input, same CandidateSet, no side effects and no
// network calls. The AI refinement pass lives elsewhere.
package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Config holds the scan thresholds. Zero values are replaced with defaults
// so an empty Config behaves sensibly.
type Config struct {
	// PromoThreshold is the promotional score at or above which the email
	// is skipped as marketing noise.
	PromoThreshold float64
	// KeywordThreshold is the minimum keyword score for a body with weak
	// amount/date evidence to stay processable.
	KeywordThreshold float64
	// MaxCandidates caps each candidate list.
	MaxCandidates int
	// ContextWindow is how many characters around a match are kept as
	// context and searched for nearby keywords.
	ContextWindow int
	// ReferenceTime anchors the plausible-year window for date candidates.
	// Callers pass the email's received time so a rescan of an old email
	// yields the same candidates it did on arrival. Zero means now.
	ReferenceTime time.Time
}

func (c Config) withDefaults() Config {
	if c.PromoThreshold == 0 {
		c.PromoThreshold = 3
	}
	if c.KeywordThreshold == 0 {
		c.KeywordThreshold = 1
	}
	if c.MaxCandidates == 0 {
		c.MaxCandidates = 10
	}
	if c.ContextWindow == 0 {
		c.ContextWindow = 60
	}
	if c.ReferenceTime.IsZero() {
		c.ReferenceTime = time.Now()
	}
	return c
}

// Bill-related keywords and their weights. Subject matches count double.
var billKeywords = map[string]float64{
	"due":         1.0,
	"due date":    1.5,
	"balance":     1.0,
	"payment":     1.0,
	"invoice":     1.5,
	"statement":   1.0,
	"bill":        1.0,
	"amount due":  1.5,
	"autopay":     1.0,
	"minimum due": 1.5,
	"account":     0.5,
	"past due":    1.5,
}

// Negative signals that push the promotional score up.
var promoKeywords = map[string]float64{
	"% off":         1.5,
	"sale":          1.0,
	"unsubscribe":   1.0,
	"discount":      1.0,
	"coupon":        1.5,
	"promo code":    1.5,
	"limited time":  1.0,
	"free shipping": 1.0,
	"deal":          0.5,
	"clearance":     1.5,
	"buy now":       1.0,
	"shop now":      1.5,
}

// Sender local-part/domain fragments typical of marketing streams.
var promoSenderHints = []string{"marketing", "newsletter", "promo", "offers", "deals", "sale"}

var (
	amountRe  = regexp.MustCompile(`(?i)(?:\$|USD\s?)\s?([0-9]{1,3}(?:,[0-9]{3})*(?:\.[0-9]{2})?)`)
	percentRe = regexp.MustCompile(`[0-9]{1,3}\s?%`)
)

// Date patterns paired with the layouts that parse them. Numeric forms are
// less specific than written-out months and score lower.
var datePatterns = []struct {
	re         *regexp.Regexp
	layouts    []string
	confidence float64
}{
	{regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`), []string{"2006-01-02"}, 0.9},
	{regexp.MustCompile(`(?i)\b((?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4})\b`), []string{"January 2, 2006", "January 2 2006"}, 0.9},
	{regexp.MustCompile(`(?i)\b((?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\.?\s+\d{1,2},?\s+\d{4})\b`), []string{"Jan 2, 2006", "Jan 2 2006", "Jan. 2, 2006"}, 0.8},
	{regexp.MustCompile(`\b(\d{1,2}/\d{1,2}/\d{4})\b`), []string{"01/02/2006", "1/2/2006"}, 0.7},
	{regexp.MustCompile(`\b(\d{1,2}/\d{1,2}/\d{2})\b`), []string{"01/02/06", "1/2/06"}, 0.5},
}

// Subject patterns that name the vendor directly.
var subjectNameRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^your\s+(.{2,40}?)\s+(?:bill|statement|invoice|payment)\b`),
	regexp.MustCompile(`(?i)\binvoice from\s+(.{2,40}?)(?:\s*[-—:]|$)`),
	regexp.MustCompile(`(?i)^(.{2,40}?)\s+(?:bill|statement)\s+is\s+(?:ready|available|due)\b`),
}

// Scan runs the heuristic pass over one email and returns its CandidateSet,
// including the skip decision.
func Scan(sender, subject, text string, cfg Config) CandidateSet {
	cfg = cfg.withDefaults()

	combined := subject + "\n" + text
	lowerCombined := strings.ToLower(combined)
	lowerSubject := strings.ToLower(subject)

	set := CandidateSet{}
	set.KeywordScore, set.MatchedKeywords = scoreKeywords(lowerSubject, lowerCombined)
	set.PromoScore = scorePromo(sender, lowerCombined)
	set.Promotional = set.PromoScore >= cfg.PromoThreshold

	set.Amounts = findAmounts(combined, cfg)
	set.Dates = findDates(combined, cfg)
	set.Names = findNames(sender, subject, cfg)

	set.SkipReason = skipReason(&set, cfg)
	return set
}

func scoreKeywords(lowerSubject, lowerCombined string) (float64, []string) {
	var score float64
	var matched []string
	for kw, w := range billKeywords {
		if !strings.Contains(lowerCombined, kw) {
			continue
		}
		matched = append(matched, kw)
		score += w
		if strings.Contains(lowerSubject, kw) {
			score += w
		}
	}
	sort.Strings(matched)
	return score, matched
}

func scorePromo(sender, lowerCombined string) float64 {
	var score float64
	for kw, w := range promoKeywords {
		if strings.Contains(lowerCombined, kw) {
			score += w
		}
	}
	if percentRe.MatchString(lowerCombined) && strings.Contains(lowerCombined, "off") {
		score += 1
	}

	lowerSender := strings.ToLower(sender)
	for _, hint := range promoSenderHints {
		if strings.Contains(lowerSender, hint) {
			score += 1
			break
		}
	}
	return score
}

func findAmounts(combined string, cfg Config) []AmountCandidate {
	matches := amountRe.FindAllStringSubmatchIndex(combined, -1)
	out := make([]AmountCandidate, 0, len(matches))

	for _, m := range matches {
		raw := combined[m[2]:m[3]]
		value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil || value <= 0 || value >= 1_000_000 {
			continue
		}

		pos := m[0]
		ctx := window(combined, pos, m[1], cfg.ContextWindow)
		out = append(out, AmountCandidate{
			Value:    value,
			Context:  ctx,
			Position: pos,
			Score:    amountScore(strings.ToLower(ctx), raw),
		})
	}

	// Highest score first; position breaks ties so earlier mentions win.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Position < out[j].Position
	})
	if len(out) > cfg.MaxCandidates {
		out = out[:cfg.MaxCandidates]
	}
	return out
}

func amountScore(lowerCtx, raw string) float64 {
	var score float64
	for kw, w := range billKeywords {
		if strings.Contains(lowerCtx, kw) {
			score += w * 0.25
		}
	}
	// Cents-precision amounts are far more likely to be balances than
	// round marketing numbers ("save $50").
	if strings.Contains(raw, ".") {
		score += 0.25
	}
	return min1(score)
}

func findDates(combined string, cfg Config) []DateCandidate {
	ref := cfg.ReferenceTime
	var out []DateCandidate

	for _, p := range datePatterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(combined, -1) {
			raw := combined[m[2]:m[3]]
			parsed, ok := parseDate(raw, p.layouts)
			if !ok {
				continue
			}
			// Bills are due near the reference time; years far out are noise.
			if parsed.Year() < ref.Year()-1 || parsed.Year() > ref.Year()+2 {
				continue
			}

			ctx := window(combined, m[0], m[1], cfg.ContextWindow)
			conf := p.confidence
			lowerCtx := strings.ToLower(ctx)
			if strings.Contains(lowerCtx, "due") || strings.Contains(lowerCtx, "pay by") || strings.Contains(lowerCtx, "autopay") {
				conf = min1(conf + 0.1)
			}
			out = append(out, DateCandidate{Date: parsed, Context: ctx, Confidence: conf})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	if len(out) > cfg.MaxCandidates {
		out = out[:cfg.MaxCandidates]
	}
	return out
}

func parseDate(raw string, layouts []string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func findNames(sender, subject string, cfg Config) []NameCandidate {
	var out []NameCandidate
	seen := map[string]bool{}

	add := func(name string, score float64) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		key := strings.ToLower(name)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, NameCandidate{Name: name, Score: score})
	}

	for _, re := range subjectNameRes {
		if m := re.FindStringSubmatch(subject); m != nil {
			add(titleCase(m[1]), 0.9)
		}
	}

	// Sender display name: "Comcast Billing <billing@comcast.com>".
	if i := strings.Index(sender, "<"); i > 0 {
		display := strings.Trim(strings.TrimSpace(sender[:i]), `"`)
		display = strings.TrimSuffix(display, " Billing")
		display = strings.TrimSuffix(display, " Support")
		add(display, 0.6)
	}

	// Sender domain: billing@comcast.com -> Comcast.
	if at := strings.LastIndex(sender, "@"); at >= 0 {
		domain := strings.Trim(sender[at+1:], "> ")
		parts := strings.Split(domain, ".")
		if len(parts) >= 2 {
			base := parts[len(parts)-2]
			if base != "gmail" && base != "yahoo" && base != "outlook" && base != "hotmail" {
				add(titleCase(base), 0.4)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > cfg.MaxCandidates {
		out = out[:cfg.MaxCandidates]
	}
	return out
}

func skipReason(set *CandidateSet, cfg Config) string {
	if set.Promotional {
		return "promotional"
	}
	if len(set.Amounts) == 0 {
		return "no_amount_found"
	}
	if set.KeywordScore < cfg.KeywordThreshold && !strongPairing(set) {
		return "below_threshold"
	}
	return ""
}

// strongPairing reports whether the scan found a well-scored amount together
// with a confident date, which is enough evidence even when keyword
// vocabulary is sparse.
func strongPairing(set *CandidateSet) bool {
	amount, aok := set.BestAmount()
	date, dok := set.BestDate()
	return aok && dok && amount.Score >= 0.5 && date.Confidence >= 0.7
}

func window(s string, start, end, size int) string {
	lo := start - size
	if lo < 0 {
		lo = 0
	}
	hi := end + size
	if hi > len(s) {
		hi = len(s)
	}
	return s[lo:hi]
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
