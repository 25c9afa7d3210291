package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/duetrack/billscan/internal/pkg/distlock"
	"github.com/duetrack/billscan/internal/service/reminder"
)

// =============================================================================
// REMINDER WORKER
// =============================================================================
// This worker periodically schedules due-date reminders for all owners with
// upcoming unpaid bills. A distributed lock ensures only one instance runs a
// cycle at a time; others skip and retry on their next tick.

const (
	// DefaultReminderRunInterval is how often reminders are scheduled
	DefaultReminderRunInterval = time.Hour

	// reminderLockTTL bounds how long a crashed instance can hold the lock
	reminderLockTTL = 10 * time.Minute
)

// reminderRunner is the slice of the reminder service the worker needs.
type reminderRunner interface {
	Run(ctx context.Context) (*reminder.Summary, error)
}

// ReminderWorker runs the reminder scheduler on an interval.
type ReminderWorker struct {
	db          *sql.DB
	redisClient *redis.Client // optional; nil falls back to PG advisory locks
	runner      reminderRunner
	workerID    string
	interval    time.Duration

	// Stats
	runs    int64
	created int64
	errors  int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewReminderWorker creates a reminder worker.
func NewReminderWorker(db *sql.DB, runner reminderRunner) *ReminderWorker {
	hostname, _ := os.Hostname()
	return &ReminderWorker{
		db:       db,
		runner:   runner,
		workerID: fmt.Sprintf("reminder-%s-%d", hostname, time.Now().UnixNano()%10000),
		interval: DefaultReminderRunInterval,
	}
}

// SetRedisClient sets the Redis client for distributed locking.
// If set, the worker uses Redis-based locks; otherwise it falls back
// to PostgreSQL advisory locks.
func (w *ReminderWorker) SetRedisClient(client *redis.Client) {
	w.redisClient = client
}

// SetInterval overrides the default run interval.
func (w *ReminderWorker) SetInterval(d time.Duration) {
	if d > 0 {
		w.interval = d
	}
}

// Start begins the scheduling loop. The first cycle runs immediately.
func (w *ReminderWorker) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("reminder worker already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	log.Printf("[ReminderWorker] Starting %s with interval: %v", w.workerID, w.interval)

	w.wg.Add(1)
	go w.runLoop()

	return nil
}

// Stop gracefully stops the worker.
func (w *ReminderWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	log.Printf("[ReminderWorker] Stopping...")
	w.cancel()
	w.wg.Wait()
	log.Printf("[ReminderWorker] Stopped. Runs: %d, Reminders created: %d, Errors: %d",
		atomic.LoadInt64(&w.runs),
		atomic.LoadInt64(&w.created),
		atomic.LoadInt64(&w.errors))
}

func (w *ReminderWorker) runLoop() {
	defer w.wg.Done()

	// Run once at startup so a fresh deploy doesn't wait a full interval
	w.runCycle()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.runCycle()
		}
	}
}

// runCycle runs one scheduling pass under a distributed lock.
func (w *ReminderWorker) runCycle() {
	ctx, cancel := context.WithTimeout(w.ctx, reminderLockTTL)
	defer cancel()

	lock := distlock.NewLock(w.redisClient, w.db, "reminders:run", reminderLockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[ReminderWorker] Error acquiring lock: %v", err)
		atomic.AddInt64(&w.errors, 1)
		return
	}
	if !acquired {
		log.Printf("[ReminderWorker] Another instance is running reminders, skipping cycle")
		return
	}
	defer lock.Release(ctx)

	summary, err := w.runner.Run(ctx)
	if err != nil {
		log.Printf("[ReminderWorker] Run failed: %v", err)
		atomic.AddInt64(&w.errors, 1)
		return
	}

	atomic.AddInt64(&w.runs, 1)
	atomic.AddInt64(&w.created, int64(summary.Created))

	log.Printf("[ReminderWorker] Cycle complete: created=%d skipped=%d", summary.Created, summary.Skipped)
}
