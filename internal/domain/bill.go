package domain

import "time"

// BillSource identifies how a bill entered the system.
type BillSource string

const (
	BillSourceEmail  BillSource = "email"
	BillSourceManual BillSource = "manual"
)

// Bill is a confirmed payment obligation. (OwnerID, SourceMessageID) is
// unique whenever SourceMessageID is non-empty; that constraint is the
// primary duplicate-prevention key and gives first-committer-wins semantics
// when two requests race on the same email.
type Bill struct {
	ID      string `json:"id" db:"id"`
	OwnerID string `json:"owner_id" db:"owner_id"`

	Name     string     `json:"name" db:"name"`
	Amount   float64    `json:"amount" db:"amount"`
	DueDate  *time.Time `json:"due_date" db:"due_date"`
	Category string     `json:"category" db:"category"`

	Recurring         bool   `json:"recurring" db:"recurring"`
	RecurringInterval string `json:"recurring_interval" db:"recurring_interval"`

	Source          BillSource `json:"source" db:"source"`
	SourceMessageID string     `json:"source_message_id" db:"source_message_id"`
	PaymentURL      string     `json:"payment_url" db:"payment_url"`

	Paid   bool       `json:"paid" db:"paid"`
	PaidAt *time.Time `json:"paid_at" db:"paid_at"`

	// ParentBillID links recurrence-chain children back to the original bill.
	ParentBillID *string `json:"parent_bill_id" db:"parent_bill_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
