package reminder

import (
	"context"
	"time"

	"github.com/duetrack/billscan/internal/domain"
)

// Repository defines the data access contract for reminder scheduling.
// Implementations must be safe for concurrent use.
type Repository interface {
	// ListOwnersWithUpcomingBills returns the distinct owners holding
	// unpaid bills due on or before the cutoff.
	ListOwnersWithUpcomingBills(ctx context.Context, until time.Time) ([]string, error)

	// ListUnpaidBillsDueWithin returns one owner's unpaid bills with a due
	// date on or before the cutoff.
	ListUnpaidBillsDueWithin(ctx context.Context, ownerID string, until time.Time) ([]domain.Bill, error)

	// InsertNotification inserts a queue entry unless one already exists
	// for the same (owner, bill, channel, scheduled date). Returns whether
	// a row was actually created.
	InsertNotification(ctx context.Context, n *domain.NotificationQueueEntry) (bool, error)
}
