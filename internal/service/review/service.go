package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/duetrack/billscan/internal/domain"
	"github.com/duetrack/billscan/internal/pkg/logger"
)

const (
	// DefaultQueueLimit is used when the caller passes no limit.
	DefaultQueueLimit = 50
	// MaxQueueLimit is the hard cap on one queue page.
	MaxQueueLimit = 100
)

// Corrections are optional field overrides applied at confirmation time.
// Nil fields keep the extracted value.
type Corrections struct {
	Name              *string    `json:"name,omitempty"`
	Amount            *float64   `json:"amount,omitempty"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	Category          *string    `json:"category,omitempty"`
	PaymentURL        *string    `json:"payment_url,omitempty"`
	Recurring         *bool      `json:"recurring,omitempty"`
	RecurringInterval *string    `json:"recurring_interval,omitempty"`
}

// Service implements review-queue business logic.
type Service struct {
	repo Repository
}

// NewService creates a review service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetReviewQueue returns the owner's pending extractions, least certain
// first. limit <= 0 uses the default; anything above the hard max is capped.
func (s *Service) GetReviewQueue(ctx context.Context, ownerID string, limit int) ([]domain.Extraction, error) {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	if limit > MaxQueueLimit {
		limit = MaxQueueLimit
	}
	return s.repo.ListPending(ctx, ownerID, limit)
}

// ConfirmExtraction applies corrections on top of the extracted fields,
// creates a bill, and marks the extraction confirmed. Decided extractions
// are never re-mutated: confirming twice returns ErrAlreadyDecided without a
// second bill.
func (s *Service) ConfirmExtraction(ctx context.Context, ownerID, extractionID string, corrections *Corrections) (*domain.Bill, error) {
	x, err := s.pendingExtraction(ctx, ownerID, extractionID)
	if err != nil {
		return nil, err
	}

	bill := &domain.Bill{
		ID:                uuid.New().String(),
		OwnerID:           ownerID,
		Name:              x.Name,
		Amount:            x.Amount,
		DueDate:           x.DueDate,
		Category:          x.Category,
		Recurring:         x.Recurring,
		RecurringInterval: x.RecurringInterval,
		Source:            domain.BillSourceEmail,
		PaymentURL:        x.PaymentURL,
	}
	applyCorrections(bill, corrections)

	// The source message id is the duplicate-prevention key; minting a bill
	// without it would let a retry confirm the same message twice.
	email, err := s.repo.GetEmail(ctx, ownerID, x.EmailID)
	if err != nil {
		return nil, fmt.Errorf("load source email: %w", err)
	}
	bill.SourceMessageID = email.MessageID

	id, err := s.repo.CreateBill(ctx, bill)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateBill) {
			// Another confirmation of the same source message won the
			// race. Record that and report a conflict, not a failure.
			if stErr := s.repo.UpdateExtractionStatus(ctx, ownerID, extractionID, domain.ExtractionDuplicate); stErr != nil {
				logger.Warn("failed to mark raced extraction duplicate",
					"extraction_id", extractionID, "error", stErr.Error())
			}
			return nil, domain.ErrDuplicateBill
		}
		return nil, fmt.Errorf("create bill: %w", err)
	}
	bill.ID = id

	if err := s.repo.UpdateExtractionStatus(ctx, ownerID, extractionID, domain.ExtractionConfirmed); err != nil {
		return nil, fmt.Errorf("mark extraction confirmed: %w", err)
	}

	logger.Info("extraction confirmed", "owner_id", ownerID,
		"extraction_id", extractionID, "bill_id", id)
	return bill, nil
}

// RejectExtraction marks a pending extraction rejected and records an
// ignored-suggestion marker so the same source message is not resurfaced by
// a future scan. No bill is created.
func (s *Service) RejectExtraction(ctx context.Context, ownerID, extractionID string) error {
	x, err := s.pendingExtraction(ctx, ownerID, extractionID)
	if err != nil {
		return err
	}

	// Resolve the source message before mutating state so a storage failure
	// cannot leave a rejection without its ignored-suggestion marker.
	email, err := s.repo.GetEmail(ctx, ownerID, x.EmailID)
	if err != nil {
		return fmt.Errorf("load source email: %w", err)
	}

	if err := s.repo.UpdateExtractionStatus(ctx, ownerID, extractionID, domain.ExtractionRejected); err != nil {
		return fmt.Errorf("mark extraction rejected: %w", err)
	}

	if email.MessageID != "" {
		if err := s.repo.RecordIgnoredSuggestion(ctx, &domain.IgnoredSuggestion{
			OwnerID:   ownerID,
			MessageID: email.MessageID,
			IgnoredAt: time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("record ignored suggestion: %w", err)
		}
	}

	logger.Info("extraction rejected", "owner_id", ownerID, "extraction_id", extractionID)
	return nil
}

// pendingExtraction loads an extraction and enforces ownership and the
// pending-only state rule.
func (s *Service) pendingExtraction(ctx context.Context, ownerID, extractionID string) (*domain.Extraction, error) {
	x, err := s.repo.GetExtraction(ctx, extractionID)
	if err != nil {
		return nil, err
	}
	if x.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	if x.Decided() {
		return nil, ErrAlreadyDecided
	}
	return x, nil
}

func applyCorrections(bill *domain.Bill, c *Corrections) {
	if c == nil {
		return
	}
	if c.Name != nil {
		bill.Name = *c.Name
	}
	if c.Amount != nil {
		bill.Amount = *c.Amount
	}
	if c.DueDate != nil {
		bill.DueDate = c.DueDate
	}
	if c.Category != nil {
		bill.Category = *c.Category
	}
	if c.PaymentURL != nil {
		bill.PaymentURL = *c.PaymentURL
	}
	if c.Recurring != nil {
		bill.Recurring = *c.Recurring
	}
	if c.RecurringInterval != nil {
		bill.RecurringInterval = *c.RecurringInterval
	}
}
