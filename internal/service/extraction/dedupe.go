package extraction

import (
	"math"
	"strings"

	"github.com/duetrack/billscan/internal/domain"
)

// Fuzzy-match tolerances. Two bills for "Comcast" at $89.45 and $89.99 due
// three days apart are the same obligation; $89.45 and $120.00 are not.
const (
	fuzzyAmountMinTolerance = 1.00
	fuzzyAmountPctTolerance = 0.02
	fuzzyDateWindowDays     = 3
)

// isFuzzyDuplicate reports whether an existing unpaid bill represents the
// same obligation as the merged extraction: normalized name match, amount
// within tolerance, and due dates within a few days of each other. Bills or
// extractions without a due date never fuzzy-match.
func isFuzzyDuplicate(m Merged, bill domain.Bill) bool {
	if bill.Paid || m.DueDate == nil || bill.DueDate == nil {
		return false
	}
	if normalizeName(m.Name) == "" || normalizeName(m.Name) != normalizeName(bill.Name) {
		return false
	}

	tolerance := math.Max(fuzzyAmountMinTolerance, bill.Amount*fuzzyAmountPctTolerance)
	if math.Abs(m.Amount-bill.Amount) > tolerance {
		return false
	}

	days := m.DueDate.Sub(*bill.DueDate).Hours() / 24
	return math.Abs(days) <= fuzzyDateWindowDays
}

// normalizeName flattens a vendor/bill name to lowercase alphanumerics so
// "AT&T", "at&t" and "ATT" compare equal.
func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
