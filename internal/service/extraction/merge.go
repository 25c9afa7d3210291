package extraction

import (
	"strings"
	"time"

	"github.com/duetrack/billscan/internal/ai"
	"github.com/duetrack/billscan/internal/extract"
)

// Source identifies which pass produced a merged field.
type Source string

const (
	SourceHeuristic Source = "heuristic"
	SourceAI        Source = "ai"
)

// Merged is the blended result of the heuristic scan and the AI pass for one
// email.
type Merged struct {
	Name    string
	Amount  float64
	DueDate *time.Time

	// Confidence is the confidence of whichever source won the amount.
	Confidence   float64
	AmountSource Source
}

// Combine merges heuristic candidates with AI-extracted fields. Per field,
// the AI value wins when it is present and its confidence is not lower than
// the heuristic's score for that field; ties go to the AI, which has seen
// the full body rather than regex windows. aiFields may be nil (AI skipped,
// failed, or classified the email as not a bill), in which case the
// heuristic values carry through unchanged.
func Combine(cands *extract.CandidateSet, aiFields *ai.Fields) Merged {
	m := Merged{AmountSource: SourceHeuristic}

	heurAmount, hasHeurAmount := cands.BestAmount()
	heurDate, hasHeurDate := cands.BestDate()
	heurName, hasHeurName := cands.BestName()
	heurConf := cands.Confidence()

	if hasHeurAmount {
		m.Amount = heurAmount.Value
		m.Confidence = heurConf
	}
	if hasHeurDate {
		d := heurDate.Date
		m.DueDate = &d
	}
	if hasHeurName {
		m.Name = heurName.Name
	}

	if aiFields == nil {
		return m
	}

	if aiFields.Amount > 0 && (!hasHeurAmount || aiFields.Confidence >= heurAmount.Score) {
		m.Amount = aiFields.Amount
		m.Confidence = aiFields.Confidence
		m.AmountSource = SourceAI
	}

	if aiDate, ok := parseISODate(aiFields.DueDate); ok {
		if !hasHeurDate || aiFields.Confidence >= heurDate.Confidence {
			m.DueDate = &aiDate
		}
	}

	if name := strings.TrimSpace(aiFields.VendorName); name != "" {
		if !hasHeurName || aiFields.Confidence >= heurName.Score {
			m.Name = name
		}
	}

	return m
}

func parseISODate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
