package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/duetrack/billscan/internal/pkg/httputil"
)

type contextKey string

const ownerKey contextKey = "owner_id"

// OwnerHeader carries the caller identity. Authentication itself happens
// upstream; by the time a request reaches this service the header is trusted.
const OwnerHeader = "X-Owner-ID"

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", OwnerHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no owner required)
	r.Get("/health", h.HealthCheck)

	// API routes (owner identity required)
	r.Route("/api", func(r chi.Router) {
		r.Use(requireOwner)

		r.Route("/extractions", func(r chi.Router) {
			r.Post("/process", h.ProcessExtraction)
			r.Get("/review", h.GetReviewQueue)
			r.Post("/{id}/confirm", h.ConfirmExtraction)
			r.Post("/{id}/reject", h.RejectExtraction)
		})

		r.Post("/emails/scan", h.ScanEmails)
		r.Post("/reminders/run", h.RunReminders)
	})

	return r
}

// requireOwner rejects requests without an owner identity and stashes the
// owner ID in the request context for handlers.
func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get(OwnerHeader)
		if owner == "" {
			httputil.BadRequest(w, "missing "+OwnerHeader+" header")
			return
		}
		ctx := context.WithValue(r.Context(), ownerKey, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ownerID returns the owner identity stashed by requireOwner.
func ownerID(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey).(string)
	return owner
}
