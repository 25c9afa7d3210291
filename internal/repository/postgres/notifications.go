package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/duetrack/billscan/internal/domain"
)

// InsertNotification inserts a reminder queue entry. The unique constraint
// on (owner_id, bill_id, channel, scheduled_date) makes repeated scheduler
// runs no-ops; the bool return distinguishes created from already-present.
func (s *Store) InsertNotification(ctx context.Context, n *domain.NotificationQueueEntry) (bool, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_queue
			(id, owner_id, bill_id, channel, status, scheduled_date,
			 scheduled_at, message, sent_at, read_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (owner_id, bill_id, channel, scheduled_date) DO NOTHING
	`, n.ID, n.OwnerID, n.BillID, n.Channel, n.Status, n.ScheduledDate,
		n.ScheduledAt, n.Message, n.SentAt, n.ReadAt)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}
