package review

import (
	"context"

	"github.com/duetrack/billscan/internal/domain"
)

// Repository defines the data access contract for the review queue.
// Implementations must be safe for concurrent use.
type Repository interface {
	// ListPending returns the owner's pending extractions ordered by
	// ascending confidence, capped at limit.
	ListPending(ctx context.Context, ownerID string, limit int) ([]domain.Extraction, error)

	// GetExtraction returns an extraction by id regardless of owner, or
	// ErrNotFound. Ownership is checked in the service so a foreign id can
	// be distinguished from a missing one.
	GetExtraction(ctx context.Context, id string) (*domain.Extraction, error)

	// UpdateExtractionStatus transitions an extraction's status.
	UpdateExtractionStatus(ctx context.Context, ownerID, id string, status domain.ExtractionStatus) error

	// GetEmail returns the inbound email an extraction came from.
	GetEmail(ctx context.Context, ownerID, emailID string) (*domain.InboundEmail, error)

	// CreateBill inserts a bill and returns its ID. A unique-constraint
	// conflict on (owner, source_message_id) returns domain.ErrDuplicateBill.
	CreateBill(ctx context.Context, b *domain.Bill) (string, error)

	// RecordIgnoredSuggestion upserts an ignored-suggestion marker.
	// Recording the same (owner, message) twice is not an error.
	RecordIgnoredSuggestion(ctx context.Context, s *domain.IgnoredSuggestion) error
}
