package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and returns a configured Chi router.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	// ── Health check ──────────────────────────────────────────────────────────
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]string{"status": "ok", "service": "sokoni-payguard"})
	})

	// ── API v1 ────────────────────────────────────────────────────────────────
	r.Route("/api/v1", func(r chi.Router) {

		// Payment security pipeline
		r.Route("/payments", func(r chi.Router) {
			r.Post("/check", h.CheckPayment)
			r.Post("/quote", h.Quote)
			r.Post("/{id}/outcome", h.ReportOutcome)
		})

		// Inbound provider callbacks. Verification gates externally-observed
		// latency, so the whole route is bounded.
		r.Route("/webhooks", func(r chi.Router) {
			r.Use(middleware.Timeout(2 * time.Second))
			r.Post("/{source}", h.ReceiveWebhook)
		})

		// Provider catalog
		r.Get("/providers/{country}", h.ListProviders)

		// Manual review queue
		r.Route("/review-queue", func(r chi.Router) {
			r.Get("/", h.ListReviewQueue)
			r.Post("/{id}/resolve", h.ResolveReview)
		})

		// Ops: audit events and the suspicious-IP set
		r.Get("/events", h.ListEvents)
		r.Route("/suspicious-ips", func(r chi.Router) {
			r.Get("/", h.ListSuspiciousIPs)
			r.Post("/", h.AddSuspiciousIP)
			r.Delete("/{ip}", h.RemoveSuspiciousIP)
		})
	})

	return r
}

// requestLogger is a minimal structured-logging middleware.
// It replaces chi's default Logger to emit slog records.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
