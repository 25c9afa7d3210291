package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/duetrack/billscan/internal/domain"
	"github.com/duetrack/billscan/internal/pkg/httputil"
	"github.com/duetrack/billscan/internal/service/extraction"
	"github.com/duetrack/billscan/internal/service/reminder"
	"github.com/duetrack/billscan/internal/service/review"
	"github.com/duetrack/billscan/internal/worker"
)

// Service slices the handlers depend on. The concrete services satisfy these;
// tests substitute fakes.

type extractionService interface {
	ProcessEmail(ctx context.Context, ownerID, emailID string, opts extraction.Options) (*extraction.Result, error)
	ScanEmails(ctx context.Context, ownerID string, opts extraction.Options) (*extraction.ScanSummary, error)
}

type reviewService interface {
	GetReviewQueue(ctx context.Context, ownerID string, limit int) ([]domain.Extraction, error)
	ConfirmExtraction(ctx context.Context, ownerID, extractionID string, corrections *review.Corrections) (*domain.Bill, error)
	RejectExtraction(ctx context.Context, ownerID, extractionID string) error
}

type reminderService interface {
	ScheduleForOwner(ctx context.Context, ownerID string) (*reminder.Summary, error)
}

// Handlers holds the HTTP handlers and their service dependencies.
type Handlers struct {
	extraction extractionService
	review     reviewService
	reminders  reminderService
	limiter    *worker.ScanRateLimiter // optional; nil disables scan throttling
}

// NewHandlers creates the handler set.
func NewHandlers(ext extractionService, rev reviewService, rem reminderService, limiter *worker.ScanRateLimiter) *Handlers {
	return &Handlers{
		extraction: ext,
		review:     rev,
		reminders:  rem,
		limiter:    limiter,
	}
}

// HealthCheck reports service liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// processRequest is the body for POST /api/extractions/process.
type processRequest struct {
	EmailID        string `json:"email_id"`
	SkipAI         bool   `json:"skip_ai"`
	ForceReprocess bool   `json:"force_reprocess"`
}

// ProcessExtraction runs the extraction pipeline for one email.
func (h *Handlers) ProcessExtraction(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.EmailID == "" {
		httputil.BadRequest(w, "email_id is required")
		return
	}

	result, err := h.extraction.ProcessEmail(r.Context(), ownerID(r), req.EmailID, extraction.Options{
		SkipAI:         req.SkipAI,
		ForceReprocess: req.ForceReprocess,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	httputil.OK(w, result)
}

// ScanEmails runs the extraction pipeline over the owner's unprocessed
// emails, up to the configured batch limit.
func (h *Handlers) ScanEmails(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)

	allowed, waitTime, err := h.limiter.CheckAndIncrement(r.Context(), owner, 1)
	if err == nil && !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(waitTime.Seconds())))
		httputil.Error(w, http.StatusTooManyRequests, "scan rate limit exceeded")
		return
	}

	summary, err := h.extraction.ScanEmails(r.Context(), owner, extraction.Options{})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	httputil.OK(w, summary)
}

// GetReviewQueue returns the owner's pending extractions, least certain first.
func (h *Handlers) GetReviewQueue(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httputil.BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	items, err := h.review.GetReviewQueue(r.Context(), ownerID(r), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	httputil.OK(w, map[string]any{
		"extractions": items,
		"count":       len(items),
	})
}

// ConfirmExtraction confirms a pending extraction into a bill, applying any
// corrections from the request body.
func (h *Handlers) ConfirmExtraction(w http.ResponseWriter, r *http.Request) {
	var corrections *review.Corrections
	if r.Body != nil && r.ContentLength != 0 {
		corrections = &review.Corrections{}
		if !httputil.Decode(w, r, corrections) {
			return
		}
	}

	bill, err := h.review.ConfirmExtraction(r.Context(), ownerID(r), chi.URLParam(r, "id"), corrections)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	httputil.Created(w, bill)
}

// RejectExtraction rejects a pending extraction. The source message is
// remembered so future scans do not resurface it.
func (h *Handlers) RejectExtraction(w http.ResponseWriter, r *http.Request) {
	if err := h.review.RejectExtraction(r.Context(), ownerID(r), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// RunReminders triggers one reminder scheduling pass for the calling owner.
// The cross-owner sweep belongs to the background worker, not this surface.
func (h *Handlers) RunReminders(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reminders.ScheduleForOwner(r.Context(), ownerID(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.OK(w, summary)
}

// writeServiceError maps service sentinel errors onto HTTP statuses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, extraction.ErrEmailNotFound),
		errors.Is(err, extraction.ErrExtractionNotFound),
		errors.Is(err, review.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, review.ErrForbidden):
		httputil.Forbidden(w, err.Error())
	case errors.Is(err, review.ErrAlreadyDecided),
		errors.Is(err, domain.ErrDuplicateBill):
		httputil.Conflict(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
