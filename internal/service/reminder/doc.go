// Package reminder derives in-app reminder entries from confirmed, unpaid
// bills. Scheduling is idempotent: the notification queue's uniqueness over
// (owner, bill, channel, scheduled date) turns repeated cron runs into
// skips, never duplicates.
package reminder
