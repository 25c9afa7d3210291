package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/duetrack/billscan/internal/domain"
	"github.com/duetrack/billscan/internal/pkg/logger"
)

// DefaultLeadTimesDays are the reminder offsets before a bill's due date.
var DefaultLeadTimesDays = []int{7, 3, 1}

// Config tunes the scheduler.
type Config struct {
	// LeadTimesDays are the days-before-due offsets at which reminders
	// fire. Empty uses the defaults.
	LeadTimesDays []int

	// Clock overrides the time source in tests. Nil uses time.Now.
	Clock func() time.Time
}

func (c Config) withDefaults() Config {
	if len(c.LeadTimesDays) == 0 {
		c.LeadTimesDays = DefaultLeadTimesDays
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// lookahead is the window of due dates worth scheduling for: the largest
// lead time, plus a day of slack for timezone skew.
func (c Config) lookahead() time.Duration {
	max := 0
	for _, d := range c.LeadTimesDays {
		if d > max {
			max = d
		}
	}
	return time.Duration(max+1) * 24 * time.Hour
}

// Summary reports one scheduling run.
type Summary struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Service implements reminder scheduling business logic.
type Service struct {
	repo Repository
	cfg  Config
}

// NewService creates a reminder service backed by the given repository.
func NewService(repo Repository, cfg Config) *Service {
	return &Service{repo: repo, cfg: cfg.withDefaults()}
}

// ScheduleForOwner generates reminder entries for one owner's upcoming
// unpaid bills. Entries whose reminder date has already passed are skipped;
// entries that already exist count as skipped, not errors.
func (s *Service) ScheduleForOwner(ctx context.Context, ownerID string) (*Summary, error) {
	now := s.cfg.Clock().UTC()
	today := now.Truncate(24 * time.Hour)

	bills, err := s.repo.ListUnpaidBillsDueWithin(ctx, ownerID, now.Add(s.cfg.lookahead()))
	if err != nil {
		return nil, fmt.Errorf("list upcoming bills: %w", err)
	}

	summary := &Summary{}
	for _, bill := range bills {
		if bill.DueDate == nil {
			continue
		}
		due := bill.DueDate.UTC().Truncate(24 * time.Hour)

		for _, lead := range s.cfg.LeadTimesDays {
			remindOn := due.AddDate(0, 0, -lead)
			if remindOn.Before(today) {
				continue
			}

			created, err := s.repo.InsertNotification(ctx, &domain.NotificationQueueEntry{
				ID:            uuid.New().String(),
				OwnerID:       ownerID,
				BillID:        bill.ID,
				Channel:       domain.ChannelInApp,
				Status:        domain.NotificationSent,
				ScheduledDate: remindOn.Format("2006-01-02"),
				ScheduledAt:   remindOn,
				Message:       reminderMessage(bill, lead),
				SentAt:        &now,
			})
			if err != nil {
				return summary, fmt.Errorf("insert reminder for bill %s: %w", bill.ID, err)
			}
			if created {
				summary.Created++
			} else {
				summary.Skipped++
			}
		}
	}

	return summary, nil
}

// Run schedules reminders for every owner with upcoming bills.
func (s *Service) Run(ctx context.Context) (*Summary, error) {
	owners, err := s.repo.ListOwnersWithUpcomingBills(ctx, s.cfg.Clock().UTC().Add(s.cfg.lookahead()))
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}

	total := &Summary{}
	for _, ownerID := range owners {
		summary, err := s.ScheduleForOwner(ctx, ownerID)
		if err != nil {
			logger.Warn("reminder run: owner failed", "owner_id", ownerID, "error", err.Error())
			continue
		}
		total.Created += summary.Created
		total.Skipped += summary.Skipped
	}

	logger.Info("reminder run complete", "owners", len(owners),
		"created", total.Created, "skipped", total.Skipped)
	return total, nil
}

func reminderMessage(bill domain.Bill, lead int) string {
	when := "tomorrow"
	if lead != 1 {
		when = fmt.Sprintf("in %d days", lead)
	}
	return fmt.Sprintf("%s: $%.2f due %s (%s)",
		bill.Name, bill.Amount, bill.DueDate.Format("Jan 2"), when)
}
