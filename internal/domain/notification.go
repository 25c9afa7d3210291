package domain

import "time"

// NotificationChannel enumerates reminder delivery channels. Only the in-app
// channel is generated by this pipeline; push delivery is handled elsewhere.
type NotificationChannel string

const (
	ChannelInApp NotificationChannel = "in_app"
	ChannelPush  NotificationChannel = "push"
)

// NotificationStatus enumerates delivery states of a queue entry.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationRead    NotificationStatus = "read"
)

// NotificationQueueEntry is one scheduled reminder for one bill on one day.
// (OwnerID, BillID, Channel, ScheduledDate) is unique, which makes scheduling
// idempotent under repeated cron runs.
type NotificationQueueEntry struct {
	ID      string `json:"id" db:"id"`
	OwnerID string `json:"owner_id" db:"owner_id"`
	BillID  string `json:"bill_id" db:"bill_id"`

	Channel NotificationChannel `json:"channel" db:"channel"`
	Status  NotificationStatus  `json:"status" db:"status"`

	// ScheduledDate is the calendar day (YYYY-MM-DD) the reminder fires;
	// ScheduledAt is the full timestamp used for ordering within a day.
	ScheduledDate string    `json:"scheduled_date" db:"scheduled_date"`
	ScheduledAt   time.Time `json:"scheduled_at" db:"scheduled_at"`

	Message string `json:"message" db:"message"`

	SentAt *time.Time `json:"sent_at" db:"sent_at"`
	ReadAt *time.Time `json:"read_at" db:"read_at"`
}
