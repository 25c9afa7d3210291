package domain

import "time"

// ExtractionStatus enumerates the review states of an extraction.
type ExtractionStatus string

const (
	ExtractionPending   ExtractionStatus = "pending"
	ExtractionConfirmed ExtractionStatus = "confirmed"
	ExtractionRejected  ExtractionStatus = "rejected"
	ExtractionDuplicate ExtractionStatus = "duplicate"
)

// Skip reasons recorded when the pipeline rejects an email outright. The
// first three come from the heuristic scan; ignored_suggestion means the
// owner already rejected a suggestion from the same source message.
const (
	SkipPromotional       = "promotional"
	SkipNoAmountFound     = "no_amount_found"
	SkipBelowThreshold    = "below_threshold"
	SkipIgnoredSuggestion = "ignored_suggestion"
)

// Duplicate reasons recorded when an extraction matches an existing bill.
const (
	DuplicateExactMessageID = "exact_message_id"
	DuplicateFuzzyMatch     = "fuzzy_match"
)

// Extraction is a candidate bill derived from one email, awaiting or past
// human confirmation. There is at most one per (owner, email); reprocessing
// overwrites rather than duplicating.
type Extraction struct {
	ID      string `json:"id" db:"id"`
	EmailID string `json:"email_id" db:"email_id"`
	OwnerID string `json:"owner_id" db:"owner_id"`

	Status ExtractionStatus `json:"status" db:"status"`

	Name    string     `json:"name" db:"name"`
	Amount  float64    `json:"amount" db:"amount"`
	DueDate *time.Time `json:"due_date" db:"due_date"`

	// Confidence is the blended heuristic/AI confidence in [0,1].
	Confidence float64 `json:"confidence" db:"confidence"`

	PaymentURL        string   `json:"payment_url" db:"payment_url"`
	PaymentConfidence float64  `json:"payment_confidence" db:"payment_confidence"`
	CandidateLinks    []string `json:"candidate_links" db:"candidate_links"`

	Category          string `json:"category" db:"category"`
	Recurring         bool   `json:"recurring" db:"recurring"`
	RecurringInterval string `json:"recurring_interval" db:"recurring_interval"`

	Duplicate       bool   `json:"duplicate" db:"duplicate"`
	DuplicateReason string `json:"duplicate_reason" db:"duplicate_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Decided reports whether the extraction has left the pending state, whether
// by a human, by auto-accept, or by duplicate detection. Decided extractions
// are never re-mutated.
func (x *Extraction) Decided() bool {
	return x.Status != ExtractionPending
}

// IgnoredSuggestion suppresses resurfacing a rejected suggestion when the
// same source message shows up in a future scan.
type IgnoredSuggestion struct {
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	MessageID string    `json:"message_id" db:"message_id"`
	IgnoredAt time.Time `json:"ignored_at" db:"ignored_at"`
}
