package domain

import "time"

// InboundEmail is a raw email record handed off by the mail-ingestion side.
// The pipeline only reads these and stamps ProcessedAt; it never creates or
// deletes them.
type InboundEmail struct {
	ID          string     `json:"id" db:"id"`
	OwnerID     string     `json:"owner_id" db:"owner_id"`
	MessageID   string     `json:"message_id" db:"message_id"`
	Subject     string     `json:"subject" db:"subject"`
	Sender      string     `json:"sender" db:"sender"`
	ReceivedAt  time.Time  `json:"received_at" db:"received_at"`
	PlainBody   string     `json:"plain_body" db:"plain_body"`
	HTMLBody    string     `json:"html_body" db:"html_body"`
	ProcessedAt *time.Time `json:"processed_at" db:"processed_at"`
}

// Processed reports whether the email has already been through the pipeline.
func (e *InboundEmail) Processed() bool { return e.ProcessedAt != nil }
