package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/duetrack/billscan/internal/domain"
	"github.com/duetrack/billscan/internal/service/extraction"
)

func (s *Store) GetEmail(ctx context.Context, ownerID, emailID string) (*domain.InboundEmail, error) {
	e := &domain.InboundEmail{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, COALESCE(message_id,''), COALESCE(subject,''),
		       COALESCE(sender,''), received_at, COALESCE(plain_body,''),
		       COALESCE(html_body,''), processed_at
		FROM inbound_emails
		WHERE id = $1 AND owner_id = $2
	`, emailID, ownerID).Scan(
		&e.ID, &e.OwnerID, &e.MessageID, &e.Subject,
		&e.Sender, &e.ReceivedAt, &e.PlainBody,
		&e.HTMLBody, &e.ProcessedAt,
	)
	if err == sql.ErrNoRows {
		return nil, extraction.ErrEmailNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get email: %w", err)
	}
	return e, nil
}

func (s *Store) ListUnprocessedEmails(ctx context.Context, ownerID string, limit int) ([]domain.InboundEmail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, COALESCE(message_id,''), COALESCE(subject,''),
		       COALESCE(sender,''), received_at, COALESCE(plain_body,''),
		       COALESCE(html_body,''), processed_at
		FROM inbound_emails
		WHERE owner_id = $1 AND processed_at IS NULL
		ORDER BY received_at ASC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed emails: %w", err)
	}
	defer rows.Close()

	var out []domain.InboundEmail
	for rows.Next() {
		var e domain.InboundEmail
		if err := rows.Scan(
			&e.ID, &e.OwnerID, &e.MessageID, &e.Subject,
			&e.Sender, &e.ReceivedAt, &e.PlainBody,
			&e.HTMLBody, &e.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) MarkEmailProcessed(ctx context.Context, ownerID, emailID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE inbound_emails SET processed_at = NOW() WHERE id = $1 AND owner_id = $2`,
		emailID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("mark email processed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return extraction.ErrEmailNotFound
	}
	return nil
}
