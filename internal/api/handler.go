package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"sokoni/payguard/internal/domain"
	"sokoni/payguard/internal/events"
	"sokoni/payguard/internal/guard"
	"sokoni/payguard/internal/providers"
	"sokoni/payguard/internal/validate"
)

// maxWebhookBody bounds inbound webhook payload size (1 MiB).
const maxWebhookBody = 1 << 20

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	guard     *guard.Guard
	store     *events.Store
	directory *providers.Directory
}

// NewHandler creates a Handler wired to the given dependencies.
func NewHandler(g *guard.Guard, s *events.Store, d *providers.Directory) *Handler {
	return &Handler{guard: g, store: s, directory: d}
}

// ─── POST /api/v1/payments/check ──────────────────────────────────────────────

// paymentCheckRequest is the payload submitted by the storefront checkout flow.
type paymentCheckRequest struct {
	UserID           string    `json:"user_id"`
	Amount           float64   `json:"amount"`
	Currency         string    `json:"currency"`
	ProviderID       string    `json:"provider_id"`
	CountryCode      string    `json:"country_code"`
	PhoneNumber      string    `json:"phone_number"`
	AccountCreatedAt time.Time `json:"account_created_at"`
	Timestamp        time.Time `json:"timestamp,omitempty"`
}

// CheckPayment runs one payment attempt through the security pipeline and
// returns the decision. Client signals (IP, user agent, accept headers) are
// taken from the request itself, not the body, so callers cannot spoof them.
func (h *Handler) CheckPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}
	if req.UserID == "" {
		badRequest(w, "MISSING_USER_ID", "user_id is required")
		return
	}
	if req.AccountCreatedAt.IsZero() {
		badRequest(w, "MISSING_ACCOUNT_CREATED_AT", "account_created_at is required")
		return
	}

	attempt := &domain.PaymentAttempt{
		UserID:           req.UserID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		ProviderID:       req.ProviderID,
		CountryCode:      req.CountryCode,
		PhoneNumber:      req.PhoneNumber,
		SourceIP:         r.RemoteAddr,
		UserAgent:        r.UserAgent(),
		AcceptHeader:     r.Header.Get("Accept"),
		AcceptEncoding:   r.Header.Get("Accept-Encoding"),
		AccountCreatedAt: req.AccountCreatedAt,
		Timestamp:        req.Timestamp,
	}

	d := h.guard.CheckPayment(attempt)
	if d.RetryAfterSec > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSec))
	}
	writeJSON(w, d.HTTPStatus, envelope{Data: d})
}

// ─── POST /api/v1/payments/{id}/outcome ───────────────────────────────────────

// ReportOutcome records the execution result for a previously approved
// attempt. Failed executions feed the multiple-failures risk factor.
func (h *Handler) ReportOutcome(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Outcome string `json:"outcome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}
	if req.Outcome != domain.OutcomeSuccess && req.Outcome != domain.OutcomeFailed {
		badRequest(w, "INVALID_OUTCOME", "outcome must be 'success' or 'failed'")
		return
	}

	if err := h.store.RecordOutcome(id, req.Outcome); err != nil {
		notFound(w, fmt.Sprintf("attempt '%s' not found", id))
		return
	}
	ok(w, map[string]string{"attempt_id": id, "outcome": req.Outcome})
}

// ─── POST /api/v1/payments/quote ──────────────────────────────────────────────

// Quote returns the provider fee and total for a candidate amount without
// running the full pipeline. Used by the checkout UI to preview charges.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProviderID  string  `json:"provider_id"`
		CountryCode string  `json:"country_code"`
		Amount      float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}

	rule, found := h.directory.Lookup(req.ProviderID, req.CountryCode)
	if !found {
		badRequest(w, "UNKNOWN_PROVIDER",
			fmt.Sprintf("provider '%s' is not available in country '%s'", req.ProviderID, req.CountryCode))
		return
	}
	if req.Amount <= 0 {
		badRequest(w, "INVALID_AMOUNT", "amount must be greater than 0")
		return
	}

	ok(w, map[string]any{
		"provider_id":  rule.ProviderID,
		"country_code": rule.CountryCode,
		"amount":       req.Amount,
		"fee":          validate.Fee(req.Amount, rule),
		"total":        validate.Total(req.Amount, rule),
	})
}

// ─── POST /api/v1/webhooks/{source} ───────────────────────────────────────────

// ReceiveWebhook authenticates an inbound provider callback. The signature
// header optionally carries a "sha256=" prefix; the timestamp header is Unix
// seconds. Processing of the webhook body itself happens downstream and is
// out of scope here.
func (h *Handler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		internalError(w)
		return
	}

	d := h.guard.HandleWebhook(domain.WebhookEnvelope{
		RawBody:         body,
		SignatureHeader: r.Header.Get("X-Signature"),
		TimestampHeader: r.Header.Get("X-Timestamp"),
		SourceTag:       source,
		SourceIP:        r.RemoteAddr,
	})

	switch d.HTTPStatus {
	case http.StatusOK:
		ok(w, map[string]any{"received": true, "source": source})
	case http.StatusTooManyRequests:
		tooManyRequests(w, "WEBHOOK_RATE_LIMIT", "too many webhook deliveries", 0)
	default:
		unauthorized(w, "INVALID_WEBHOOK", d.Reason)
	}
}

// ─── GET /api/v1/providers/{country} ──────────────────────────────────────────

// ListProviders returns the providers available in a country, including
// validation bounds, fee schedules, and payment instructions.
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	country := chi.URLParam(r, "country")
	rules := h.directory.ByCountry(country)
	if len(rules) == 0 {
		notFound(w, fmt.Sprintf("no providers available in country '%s'", country))
		return
	}
	ok(w, rules)
}

// ─── Review queue ─────────────────────────────────────────────────────────────

// ListReviewQueue returns all pending manual-review entries, oldest first.
func (h *Handler) ListReviewQueue(w http.ResponseWriter, r *http.Request) {
	entries := h.store.PendingReviews()
	if entries == nil {
		entries = []*domain.ReviewEntry{}
	}
	ok(w, entries)
}

// ResolveReview records a human decision on a pending entry.
func (h *Handler) ResolveReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Resolution string `json:"resolution"`
		Notes      string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}
	if req.Resolution != domain.ReviewApproved && req.Resolution != domain.ReviewRejected {
		badRequest(w, "INVALID_RESOLUTION", "resolution must be 'APPROVED' or 'REJECTED'")
		return
	}

	entry, err := h.store.ResolveReview(id, req.Resolution, req.Notes)
	switch err {
	case nil:
		ok(w, entry)
	case events.ErrReviewNotFound:
		notFound(w, fmt.Sprintf("review entry '%s' not found", id))
	case events.ErrReviewResolved:
		conflict(w, fmt.Sprintf("review entry '%s' is already resolved", id))
	default:
		internalError(w)
	}
}

// ─── Security events ──────────────────────────────────────────────────────────

// ListEvents returns recent security events for operations dashboards.
//
// Query params:
//   limit — maximum events to return (default: 50, max: 500)
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 500 {
			badRequest(w, "INVALID_PARAM", "limit must be an integer between 1 and 500")
			return
		}
		limit = parsed
	}
	ok(w, h.store.RecentEvents(limit))
}

// ─── Suspicious IPs ───────────────────────────────────────────────────────────

// ListSuspiciousIPs returns the flagged address set.
func (h *Handler) ListSuspiciousIPs(w http.ResponseWriter, r *http.Request) {
	ok(w, h.store.ListSuspiciousIPs())
}

// AddSuspiciousIP flags a source address.
func (h *Handler) AddSuspiciousIP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IP     string `json:"ip"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}
	if req.IP == "" {
		badRequest(w, "MISSING_IP", "ip is required")
		return
	}

	h.store.AddSuspiciousIP(req.IP, req.Reason)
	created(w, map[string]string{"ip": req.IP, "reason": req.Reason})
}

// RemoveSuspiciousIP unflags a source address.
func (h *Handler) RemoveSuspiciousIP(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if !h.store.RemoveSuspiciousIP(ip) {
		notFound(w, fmt.Sprintf("ip '%s' is not flagged", ip))
		return
	}
	noContent(w)
}
