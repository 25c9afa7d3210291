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

	"github.com/duetrack/billscan/internal/service/extraction"
)

// =============================================================================
// SCAN WORKER
// =============================================================================
// This worker polls for owners with unprocessed inbound emails and runs the
// extraction pipeline for each, batch by batch. A Redis-backed rate limiter
// keeps any single owner from monopolizing the AI budget.

const (
	// DefaultScanPollInterval is how often to check for unprocessed emails
	DefaultScanPollInterval = 30 * time.Second

	// maxOwnersPerPoll bounds how many owners one poll cycle touches
	maxOwnersPerPoll = 100
)

// emailScanner is the slice of the extraction service the worker needs.
type emailScanner interface {
	ScanEmails(ctx context.Context, ownerID string, opts extraction.Options) (*extraction.ScanSummary, error)
}

// ScanWorker polls for unprocessed emails and runs extraction per owner.
type ScanWorker struct {
	db           *sql.DB
	scanner      emailScanner
	limiter      *ScanRateLimiter // optional; nil disables rate limiting
	workerID     string
	pollInterval time.Duration

	// Stats
	ownersScanned   int64
	emailsProcessed int64
	errors          int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewScanWorker creates a scan worker.
func NewScanWorker(db *sql.DB, scanner emailScanner, limiter *ScanRateLimiter) *ScanWorker {
	hostname, _ := os.Hostname()
	return &ScanWorker{
		db:           db,
		scanner:      scanner,
		limiter:      limiter,
		workerID:     fmt.Sprintf("scan-%s-%d", hostname, time.Now().UnixNano()%10000),
		pollInterval: DefaultScanPollInterval,
	}
}

// SetPollInterval overrides the default poll interval.
func (w *ScanWorker) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.pollInterval = d
	}
}

// Start begins the polling loop.
func (w *ScanWorker) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("scan worker already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	log.Printf("[ScanWorker] Starting %s with poll interval: %v", w.workerID, w.pollInterval)

	w.wg.Add(1)
	go w.pollLoop()

	return nil
}

// Stop gracefully stops the worker.
func (w *ScanWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	log.Printf("[ScanWorker] Stopping...")
	w.cancel()
	w.wg.Wait()
	log.Printf("[ScanWorker] Stopped. Owners: %d, Emails: %d, Errors: %d",
		atomic.LoadInt64(&w.ownersScanned),
		atomic.LoadInt64(&w.emailsProcessed),
		atomic.LoadInt64(&w.errors))
}

func (w *ScanWorker) pollLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.processPendingOwners()
		}
	}
}

// processPendingOwners finds owners with unprocessed emails and scans each.
func (w *ScanWorker) processPendingOwners() {
	ctx, cancel := context.WithTimeout(w.ctx, 5*time.Minute)
	defer cancel()

	owners, err := w.listPendingOwners(ctx)
	if err != nil {
		log.Printf("[ScanWorker] Error listing pending owners: %v", err)
		atomic.AddInt64(&w.errors, 1)
		return
	}

	for _, ownerID := range owners {
		if ctx.Err() != nil {
			return
		}
		w.scanOwner(ctx, ownerID)
	}
}

func (w *ScanWorker) listPendingOwners(ctx context.Context) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT DISTINCT owner_id
		FROM inbound_emails
		WHERE processed_at IS NULL
		ORDER BY owner_id
		LIMIT $1
	`, maxOwnersPerPoll)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var ownerID string
		if err := rows.Scan(&ownerID); err != nil {
			continue
		}
		owners = append(owners, ownerID)
	}
	return owners, rows.Err()
}

func (w *ScanWorker) scanOwner(ctx context.Context, ownerID string) {
	allowed, waitTime, err := w.limiter.CheckAndIncrement(ctx, ownerID, 1)
	if err != nil {
		// Redis trouble should not stall the pipeline
		log.Printf("[ScanWorker] Rate limit check error for %s: %v (allowing)", ownerID, err)
	} else if !allowed {
		usage, _ := w.limiter.GetCurrentUsage(ctx, ownerID)
		log.Printf("[ScanWorker] Owner %s rate limited (%d/%d this minute), retry in %v",
			ownerID, usage["minute_current"], usage["minute_limit"], waitTime)
		return
	}

	summary, err := w.scanner.ScanEmails(ctx, ownerID, extraction.Options{})
	if err != nil {
		log.Printf("[ScanWorker] Scan failed for owner %s: %v", ownerID, err)
		atomic.AddInt64(&w.errors, 1)
		return
	}

	atomic.AddInt64(&w.ownersScanned, 1)
	atomic.AddInt64(&w.emailsProcessed, int64(summary.Scanned))

	if summary.Scanned > 0 {
		log.Printf("[ScanWorker] Owner %s: scanned=%d pending=%d confirmed=%d duplicates=%d rejected=%d failed=%d",
			ownerID, summary.Scanned, summary.Pending, summary.Confirmed,
			summary.Duplicates, summary.Rejected, summary.Failed)
	}
}
