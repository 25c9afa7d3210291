package extraction

import (
	"context"

	"github.com/duetrack/billscan/internal/domain"
)

// Repository defines the data access contract for the extraction pipeline.
// Implementations must be safe for concurrent use.
type Repository interface {
	// GetEmail returns one inbound email. Returns ErrEmailNotFound if it
	// doesn't exist or belongs to another owner.
	GetEmail(ctx context.Context, ownerID, emailID string) (*domain.InboundEmail, error)

	// ListUnprocessedEmails returns emails without a processed_at stamp,
	// oldest first, capped at limit.
	ListUnprocessedEmails(ctx context.Context, ownerID string, limit int) ([]domain.InboundEmail, error)

	// MarkEmailProcessed stamps processed_at on an email.
	MarkEmailProcessed(ctx context.Context, ownerID, emailID string) error

	// GetExtractionByEmail returns the extraction for (owner, email), or
	// ErrExtractionNotFound when none exists.
	GetExtractionByEmail(ctx context.Context, ownerID, emailID string) (*domain.Extraction, error)

	// UpsertExtraction inserts or overwrites the extraction keyed by
	// (owner, email) and returns its ID.
	UpsertExtraction(ctx context.Context, x *domain.Extraction) (string, error)

	// BillExistsByMessageID reports whether the owner already has a bill
	// originating from the given message id.
	BillExistsByMessageID(ctx context.Context, ownerID, messageID string) (bool, error)

	// ListUnpaidBills returns the owner's unpaid bills.
	ListUnpaidBills(ctx context.Context, ownerID string) ([]domain.Bill, error)

	// CreateBill inserts a bill and returns its ID. A unique-constraint
	// conflict on (owner, source_message_id) returns domain.ErrDuplicateBill.
	CreateBill(ctx context.Context, b *domain.Bill) (string, error)

	// IgnoredSuggestionExists reports whether the owner previously rejected
	// a suggestion from this message id.
	IgnoredSuggestionExists(ctx context.Context, ownerID, messageID string) (bool, error)
}
