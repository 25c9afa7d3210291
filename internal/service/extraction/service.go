package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/duetrack/billscan/internal/ai"
	"github.com/duetrack/billscan/internal/domain"
	"github.com/duetrack/billscan/internal/extract"
	"github.com/duetrack/billscan/internal/payment"
	"github.com/duetrack/billscan/internal/pkg/logger"
	"github.com/duetrack/billscan/internal/preprocess"
)

// FieldExtractor is the AI pass. ExtractBatch drops failed items instead of
// erroring, so a nil-safe degrade to heuristic-only is just an empty result.
type FieldExtractor interface {
	ExtractBatch(ctx context.Context, reqs []ai.Request) []ai.Result
}

// Config tunes the orchestrator.
type Config struct {
	// Scan configures the heuristic pass.
	Scan extract.Config

	// AutoAcceptThreshold confirms extractions into bills without review
	// when overall confidence meets it. Zero disables auto-accept.
	AutoAcceptThreshold float64

	// ScanBatchLimit caps how many unprocessed emails one scan handles.
	ScanBatchLimit int
}

func (c Config) withDefaults() Config {
	if c.ScanBatchLimit <= 0 || c.ScanBatchLimit > 10 {
		c.ScanBatchLimit = 10
	}
	return c
}

// Options modify a single ProcessEmail call.
type Options struct {
	// SkipAI runs the pipeline heuristic-only.
	SkipAI bool
	// ForceReprocess re-runs an already-processed email, overwriting its
	// extraction, and pushes past heuristic skip reasons.
	ForceReprocess bool
}

// Result is the outcome of processing one email.
type Result struct {
	Extraction *domain.Extraction `json:"extraction"`
	// Bill is set when the extraction was auto-accepted.
	Bill *domain.Bill `json:"bill,omitempty"`
	// AlreadyProcessed means the email was handled earlier and the stored
	// extraction was returned unchanged.
	AlreadyProcessed bool `json:"already_processed"`
}

// ScanSummary reports the outcome of a batch scan.
type ScanSummary struct {
	Scanned    int `json:"scanned"`
	Pending    int `json:"pending"`
	Rejected   int `json:"rejected"`
	Duplicates int `json:"duplicates"`
	Confirmed  int `json:"confirmed"`
	Failed     int `json:"failed"`
}

// Service implements the extraction pipeline business logic.
type Service struct {
	repo Repository
	ai   FieldExtractor
	cfg  Config
}

// NewService creates an extraction service. fieldExtractor may be nil, which
// makes every call behave as if SkipAI were set.
func NewService(repo Repository, fieldExtractor FieldExtractor, cfg Config) *Service {
	return &Service{repo: repo, ai: fieldExtractor, cfg: cfg.withDefaults()}
}

// ProcessEmail runs the full pipeline for one email. It is idempotent:
// processing an already-processed email returns the stored extraction, and
// reprocessing with ForceReprocess overwrites it rather than duplicating.
func (s *Service) ProcessEmail(ctx context.Context, ownerID, emailID string, opts Options) (*Result, error) {
	email, err := s.repo.GetEmail(ctx, ownerID, emailID)
	if err != nil {
		return nil, err
	}

	if email.Processed() && !opts.ForceReprocess {
		existing, err := s.repo.GetExtractionByEmail(ctx, ownerID, emailID)
		if err != nil {
			if errors.Is(err, ErrExtractionNotFound) {
				return &Result{AlreadyProcessed: true}, nil
			}
			return nil, err
		}
		return &Result{Extraction: existing, AlreadyProcessed: true}, nil
	}

	if email.MessageID != "" {
		ignored, err := s.repo.IgnoredSuggestionExists(ctx, ownerID, email.MessageID)
		if err != nil {
			return nil, fmt.Errorf("check ignored suggestions: %w", err)
		}
		if ignored && !opts.ForceReprocess {
			x := s.newExtraction(email)
			x.Status = domain.ExtractionRejected
			x.DuplicateReason = domain.SkipIgnoredSuggestion
			return s.persist(ctx, email, x, nil)
		}
	}

	text := preprocess.Clean(email.PlainBody, email.HTMLBody)
	scanCfg := s.cfg.Scan
	// Anchor date plausibility to the email's arrival so reprocessing an
	// old email reproduces its original candidates.
	scanCfg.ReferenceTime = email.ReceivedAt
	cands := extract.Scan(email.Sender, email.Subject, text, scanCfg)

	if cands.SkipReason != "" && !opts.ForceReprocess {
		x := s.extractionFrom(email, Combine(&cands, nil), nil, 0)
		x.Status = domain.ExtractionRejected
		x.DuplicateReason = cands.SkipReason
		return s.persist(ctx, email, x, nil)
	}

	var aiFields *ai.Fields
	if !opts.SkipAI && s.ai != nil {
		results := s.ai.ExtractBatch(ctx, []ai.Request{{
			EmailID: email.ID,
			Sender:  email.Sender,
			Subject: email.Subject,
			Body:    text,
		}})
		if len(results) == 1 && results[0].Fields.IsBill {
			aiFields = &results[0].Fields
		}
	}

	merged := Combine(&cands, aiFields)

	links := preprocess.Links(email.HTMLBody)
	candidates := links
	if aiFields != nil && aiFields.PaymentURL != "" {
		candidates = append([]string{aiFields.PaymentURL}, links...)
	}
	payURL, payConf := payment.Resolve(candidates, merged.Name)

	x := s.extractionFrom(email, merged, candidates, payConf)
	x.PaymentURL = payURL

	status, reason, err := s.detectDuplicate(ctx, ownerID, email.MessageID, merged)
	if err != nil {
		return nil, err
	}
	x.Status = status
	x.Duplicate = status == domain.ExtractionDuplicate
	x.DuplicateReason = reason

	var bill *domain.Bill
	if x.Status == domain.ExtractionPending && s.cfg.AutoAcceptThreshold > 0 && x.Confidence >= s.cfg.AutoAcceptThreshold {
		bill, err = s.autoAccept(ctx, email, x)
		if err != nil {
			return nil, err
		}
	}

	return s.persist(ctx, email, x, bill)
}

// ScanEmails processes the owner's unprocessed backlog, oldest first, up to
// the configured batch limit.
func (s *Service) ScanEmails(ctx context.Context, ownerID string, opts Options) (*ScanSummary, error) {
	emails, err := s.repo.ListUnprocessedEmails(ctx, ownerID, s.cfg.ScanBatchLimit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed emails: %w", err)
	}

	summary := &ScanSummary{}
	for _, email := range emails {
		res, err := s.ProcessEmail(ctx, ownerID, email.ID, opts)
		if err != nil {
			summary.Failed++
			logger.Warn("scan: email failed", "owner_id", ownerID,
				"email_id", email.ID, "error", err.Error())
			continue
		}
		summary.Scanned++
		if res.Extraction == nil {
			continue
		}
		switch res.Extraction.Status {
		case domain.ExtractionPending:
			summary.Pending++
		case domain.ExtractionRejected:
			summary.Rejected++
		case domain.ExtractionDuplicate:
			summary.Duplicates++
		case domain.ExtractionConfirmed:
			summary.Confirmed++
		}
	}

	logger.Info("scan complete", "owner_id", ownerID, "scanned", summary.Scanned,
		"pending", summary.Pending, "rejected", summary.Rejected,
		"duplicates", summary.Duplicates, "failed", summary.Failed)
	return summary, nil
}

// detectDuplicate applies exact-then-fuzzy duplicate detection and returns
// the resulting status and reason.
func (s *Service) detectDuplicate(ctx context.Context, ownerID, messageID string, m Merged) (domain.ExtractionStatus, string, error) {
	if messageID != "" {
		exists, err := s.repo.BillExistsByMessageID(ctx, ownerID, messageID)
		if err != nil {
			return "", "", fmt.Errorf("exact duplicate check: %w", err)
		}
		if exists {
			return domain.ExtractionDuplicate, domain.DuplicateExactMessageID, nil
		}
	}

	bills, err := s.repo.ListUnpaidBills(ctx, ownerID)
	if err != nil {
		return "", "", fmt.Errorf("fuzzy duplicate check: %w", err)
	}
	for _, bill := range bills {
		if isFuzzyDuplicate(m, bill) {
			return domain.ExtractionDuplicate, domain.DuplicateFuzzyMatch, nil
		}
	}

	return domain.ExtractionPending, "", nil
}

// autoAccept confirms a high-confidence extraction straight into a bill. A
// storage conflict on the source message id means another invocation got
// there first; the extraction is downgraded to a duplicate instead.
func (s *Service) autoAccept(ctx context.Context, email *domain.InboundEmail, x *domain.Extraction) (*domain.Bill, error) {
	bill := &domain.Bill{
		ID:              uuid.New().String(),
		OwnerID:         x.OwnerID,
		Name:            x.Name,
		Amount:          x.Amount,
		DueDate:         x.DueDate,
		Category:        x.Category,
		Source:          domain.BillSourceEmail,
		SourceMessageID: email.MessageID,
		PaymentURL:      x.PaymentURL,
	}

	id, err := s.repo.CreateBill(ctx, bill)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateBill) {
			x.Status = domain.ExtractionDuplicate
			x.Duplicate = true
			x.DuplicateReason = domain.DuplicateExactMessageID
			return nil, nil
		}
		return nil, fmt.Errorf("auto-accept bill: %w", err)
	}

	bill.ID = id
	x.Status = domain.ExtractionConfirmed
	logger.Info("extraction auto-accepted", "owner_id", x.OwnerID,
		"email_id", x.EmailID, "bill_id", id, "confidence", fmt.Sprintf("%.2f", x.Confidence))
	return bill, nil
}

// persist upserts the extraction, stamps the email processed, and shapes the
// final result. Persistence failures surface to the caller.
func (s *Service) persist(ctx context.Context, email *domain.InboundEmail, x *domain.Extraction, bill *domain.Bill) (*Result, error) {
	id, err := s.repo.UpsertExtraction(ctx, x)
	if err != nil {
		return nil, fmt.Errorf("persist extraction: %w", err)
	}
	x.ID = id

	if err := s.repo.MarkEmailProcessed(ctx, email.OwnerID, email.ID); err != nil {
		return nil, fmt.Errorf("mark email processed: %w", err)
	}

	return &Result{Extraction: x, Bill: bill}, nil
}

func (s *Service) newExtraction(email *domain.InboundEmail) *domain.Extraction {
	return &domain.Extraction{
		ID:        uuid.New().String(),
		EmailID:   email.ID,
		OwnerID:   email.OwnerID,
		CreatedAt: time.Now().UTC(),
	}
}

func (s *Service) extractionFrom(email *domain.InboundEmail, m Merged, candidateLinks []string, payConf float64) *domain.Extraction {
	x := s.newExtraction(email)
	x.Name = m.Name
	x.Amount = m.Amount
	x.DueDate = m.DueDate
	x.Confidence = m.Confidence
	x.CandidateLinks = candidateLinks
	x.PaymentConfidence = payConf
	return x
}
