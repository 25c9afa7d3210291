package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/duetrack/billscan/internal/domain"
)

const billColumns = `
	id, owner_id, COALESCE(name,''), amount, due_date, COALESCE(category,''),
	recurring, COALESCE(recurring_interval,''), source,
	COALESCE(source_message_id,''), COALESCE(payment_url,''),
	paid, paid_at, parent_bill_id, created_at, updated_at`

func scanBill(row interface{ Scan(...interface{}) error }) (*domain.Bill, error) {
	b := &domain.Bill{}
	err := row.Scan(
		&b.ID, &b.OwnerID, &b.Name, &b.Amount, &b.DueDate, &b.Category,
		&b.Recurring, &b.RecurringInterval, &b.Source,
		&b.SourceMessageID, &b.PaymentURL,
		&b.Paid, &b.PaidAt, &b.ParentBillID, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) BillExistsByMessageID(ctx context.Context, ownerID, messageID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM bills WHERE owner_id = $1 AND source_message_id = $2)`,
		ownerID, messageID,
	).Scan(&exists)
	return exists, err
}

func (s *Store) ListUnpaidBills(ctx context.Context, ownerID string) ([]domain.Bill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+billColumns+`
		FROM bills
		WHERE owner_id = $1 AND paid = false
		ORDER BY due_date ASC NULLS LAST
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list unpaid bills: %w", err)
	}
	defer rows.Close()

	return collectBills(rows)
}

func (s *Store) ListUnpaidBillsDueWithin(ctx context.Context, ownerID string, until time.Time) ([]domain.Bill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+billColumns+`
		FROM bills
		WHERE owner_id = $1 AND paid = false
		  AND due_date IS NOT NULL AND due_date <= $2
		ORDER BY due_date ASC
	`, ownerID, until)
	if err != nil {
		return nil, fmt.Errorf("list upcoming bills: %w", err)
	}
	defer rows.Close()

	return collectBills(rows)
}

func (s *Store) ListOwnersWithUpcomingBills(ctx context.Context, until time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT owner_id FROM bills
		WHERE paid = false AND due_date IS NOT NULL AND due_date <= $1
	`, until)
	if err != nil {
		return nil, fmt.Errorf("list owners with upcoming bills: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ownerID string
		if err := rows.Scan(&ownerID); err != nil {
			return nil, err
		}
		out = append(out, ownerID)
	}
	return out, rows.Err()
}

// CreateBill inserts a bill. The partial unique index on
// (owner_id, source_message_id) turns a concurrent double-confirm of the
// same source email into domain.ErrDuplicateBill for the loser.
func (s *Store) CreateBill(ctx context.Context, b *domain.Bill) (string, error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bills
			(id, owner_id, name, amount, due_date, category, recurring,
			 recurring_interval, source, source_message_id, payment_url,
			 paid, parent_bill_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, false, $12, NOW(), NOW())
	`, b.ID, b.OwnerID, b.Name, b.Amount, b.DueDate, b.Category, b.Recurring,
		b.RecurringInterval, b.Source, b.SourceMessageID, b.PaymentURL, b.ParentBillID)
	if err != nil {
		if isUniqueViolation(err) {
			return "", domain.ErrDuplicateBill
		}
		return "", fmt.Errorf("create bill: %w", err)
	}
	return b.ID, nil
}

func collectBills(rows *sql.Rows) ([]domain.Bill, error) {
	var out []domain.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}
