package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/duetrack/billscan/internal/domain"
	"github.com/duetrack/billscan/internal/service/extraction"
	"github.com/duetrack/billscan/internal/service/review"
)

const extractionColumns = `
	id, owner_id, email_id, status, COALESCE(name,''), amount, due_date,
	confidence, COALESCE(payment_url,''), payment_confidence, candidate_links,
	COALESCE(category,''), recurring, COALESCE(recurring_interval,''),
	duplicate, COALESCE(duplicate_reason,''), created_at`

func scanExtraction(row interface{ Scan(...interface{}) error }) (*domain.Extraction, error) {
	x := &domain.Extraction{}
	var links pq.StringArray
	err := row.Scan(
		&x.ID, &x.OwnerID, &x.EmailID, &x.Status, &x.Name, &x.Amount, &x.DueDate,
		&x.Confidence, &x.PaymentURL, &x.PaymentConfidence, &links,
		&x.Category, &x.Recurring, &x.RecurringInterval,
		&x.Duplicate, &x.DuplicateReason, &x.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	x.CandidateLinks = links
	return x, nil
}

func (s *Store) GetExtraction(ctx context.Context, id string) (*domain.Extraction, error) {
	x, err := scanExtraction(s.db.QueryRowContext(ctx,
		`SELECT `+extractionColumns+` FROM extractions WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, review.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get extraction: %w", err)
	}
	return x, nil
}

func (s *Store) GetExtractionByEmail(ctx context.Context, ownerID, emailID string) (*domain.Extraction, error) {
	x, err := scanExtraction(s.db.QueryRowContext(ctx,
		`SELECT `+extractionColumns+` FROM extractions WHERE owner_id = $1 AND email_id = $2`,
		ownerID, emailID))
	if err == sql.ErrNoRows {
		return nil, extraction.ErrExtractionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get extraction by email: %w", err)
	}
	return x, nil
}

// UpsertExtraction keeps the one-extraction-per-(owner,email) invariant in
// the database: reprocessing overwrites the previous row and keeps its id.
func (s *Store) UpsertExtraction(ctx context.Context, x *domain.Extraction) (string, error) {
	if x.ID == "" {
		x.ID = uuid.New().String()
	}
	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO extractions
			(id, owner_id, email_id, status, name, amount, due_date, confidence,
			 payment_url, payment_confidence, candidate_links, category,
			 recurring, recurring_interval, duplicate, duplicate_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
		ON CONFLICT (owner_id, email_id) DO UPDATE SET
			status = EXCLUDED.status,
			name = EXCLUDED.name,
			amount = EXCLUDED.amount,
			due_date = EXCLUDED.due_date,
			confidence = EXCLUDED.confidence,
			payment_url = EXCLUDED.payment_url,
			payment_confidence = EXCLUDED.payment_confidence,
			candidate_links = EXCLUDED.candidate_links,
			category = EXCLUDED.category,
			recurring = EXCLUDED.recurring,
			recurring_interval = EXCLUDED.recurring_interval,
			duplicate = EXCLUDED.duplicate,
			duplicate_reason = EXCLUDED.duplicate_reason
		RETURNING id
	`, x.ID, x.OwnerID, x.EmailID, x.Status, x.Name, x.Amount, x.DueDate,
		x.Confidence, x.PaymentURL, x.PaymentConfidence, pq.Array(x.CandidateLinks),
		x.Category, x.Recurring, x.RecurringInterval, x.Duplicate, x.DuplicateReason,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert extraction: %w", err)
	}
	return id, nil
}

func (s *Store) ListPending(ctx context.Context, ownerID string, limit int) ([]domain.Extraction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+extractionColumns+`
		FROM extractions
		WHERE owner_id = $1 AND status = $2
		ORDER BY confidence ASC, created_at ASC
		LIMIT $3
	`, ownerID, domain.ExtractionPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending extractions: %w", err)
	}
	defer rows.Close()

	var out []domain.Extraction
	for rows.Next() {
		x, err := scanExtraction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan extraction: %w", err)
		}
		out = append(out, *x)
	}
	return out, rows.Err()
}

func (s *Store) UpdateExtractionStatus(ctx context.Context, ownerID, id string, status domain.ExtractionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extractions SET status = $1 WHERE id = $2 AND owner_id = $3`,
		status, id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("update extraction status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return review.ErrNotFound
	}
	return nil
}

func (s *Store) IgnoredSuggestionExists(ctx context.Context, ownerID, messageID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM ignored_suggestions WHERE owner_id = $1 AND message_id = $2)`,
		ownerID, messageID,
	).Scan(&exists)
	return exists, err
}

func (s *Store) RecordIgnoredSuggestion(ctx context.Context, ig *domain.IgnoredSuggestion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ignored_suggestions (owner_id, message_id, ignored_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, message_id) DO NOTHING
	`, ig.OwnerID, ig.MessageID, ig.IgnoredAt)
	if err != nil {
		return fmt.Errorf("record ignored suggestion: %w", err)
	}
	return nil
}
