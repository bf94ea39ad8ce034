// Package domain contains all core types used across the payment guard.
// Keeping domain types in one place makes the risk rules and the
// orchestration pipeline easy to reason about.
package domain

import "time"

// ─── Constants ───────────────────────────────────────────────────────────────

// Severity levels for security events.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Terminal statuses for a payment attempt.
const (
	StatusApproved   = "APPROVED"   // caller proceeds to payment execution
	StatusChallenged = "CHALLENGED" // queued for manual review
	StatusRejected   = "REJECTED"   // refused outright
)

// Machine-readable reason codes carried on rejection/challenge responses.
const (
	ReasonValidationError = "VALIDATION_ERROR"
	ReasonSecurityBlock   = "SECURITY_BLOCK"
	ReasonManualReview    = "MANUAL_REVIEW_REQUIRED"
	ReasonRateLimit       = "PAYMENT_RATE_LIMIT"
	ReasonDailyLimit      = "DAILY_LIMIT_EXCEEDED"
)

// Recommendation actions issued by the risk scorer.
const (
	RecommendApprove = "approve"
	RecommendReview  = "review"
	RecommendReject  = "reject"
)

// Execution outcomes reported back by the payment executor.
const (
	OutcomePending = "pending"
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Manual review queue states.
const (
	ReviewPending  = "PENDING"
	ReviewApproved = "APPROVED"
	ReviewRejected = "REJECTED"
)

// ─── Scoring thresholds ───────────────────────────────────────────────────────

// Score thresholds for recommendation decisions. The notify threshold is a
// notification boundary, not a decision boundary: a reviewed attempt at or
// above it also produces a high-risk security event.
const (
	ThresholdReview = 60 // >= 60 → review
	ThresholdNotify = 80 // >= 80 → high-risk event even when reviewing
	ThresholdReject = 90 // >= 90 → reject
)

// ─── Core domain types ────────────────────────────────────────────────────────

// PaymentAttempt is a candidate mobile-money payment submitted by the
// storefront checkout flow. Immutable once created; the pipeline only reads it.
type PaymentAttempt struct {
	AttemptID        string    `json:"attempt_id"`
	UserID           string    `json:"user_id"`
	Amount           float64   `json:"amount"`
	Currency         string    `json:"currency"`
	ProviderID       string    `json:"provider_id"`
	CountryCode      string    `json:"country_code"` // ISO-3166-1 alpha-2 (e.g. "KE")
	PhoneNumber      string    `json:"phone_number"`
	SourceIP         string    `json:"source_ip"`
	UserAgent        string    `json:"user_agent"`
	AcceptHeader     string    `json:"accept_header"`
	AcceptEncoding   string    `json:"accept_encoding"`
	AccountCreatedAt time.Time `json:"account_created_at"`
	Timestamp        time.Time `json:"timestamp"`
}

// RiskFactor is a single fraud signal that contributed to the score.
// Exposing factors individually lets human reviewers understand why an
// attempt was flagged; they are never returned to the paying user.
type RiskFactor struct {
	Name        string `json:"name"`        // machine-readable identifier
	Description string `json:"description"` // human-readable explanation
	ScoreDelta  int    `json:"score_delta"` // points added to total score
}

// RiskAssessment is the scorer's verdict on one attempt. Created once,
// never mutated; persisted so it becomes part of the history the next
// assessment reads.
type RiskAssessment struct {
	Score          int          `json:"score"` // 0-100
	Factors        []RiskFactor `json:"factors"`
	Recommendation string       `json:"recommendation"` // approve / review / reject
	ComputedAt     time.Time    `json:"computed_at"`
}

// AttemptRecord is a PaymentAttempt enriched with its assessment and
// terminal decision. This is the canonical history row the scorer reads
// back for velocity and duplicate detection.
type AttemptRecord struct {
	PaymentAttempt
	RiskAssessment
	Status      string    `json:"status"`  // APPROVED / CHALLENGED / REJECTED
	Outcome     string    `json:"outcome"` // pending / success / failed
	ProcessedAt time.Time `json:"processed_at"`
}

// ─── Security events ──────────────────────────────────────────────────────────

// SecurityEvent is an append-only audit record written by every component
// that makes a security-relevant decision. The details map is diagnostic
// payload only; nothing in the pipeline branches on it.
type SecurityEvent struct {
	ID                    string         `json:"id"`
	EventType             string         `json:"event_type"`
	Severity              string         `json:"severity"` // low / medium / high / critical
	UserID                string         `json:"user_id,omitempty"`
	IP                    string         `json:"ip,omitempty"`
	UserAgent             string         `json:"user_agent,omitempty"`
	Details               map[string]any `json:"details,omitempty"`
	RiskScoreContribution int            `json:"risk_score_contribution,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
}

// ─── Manual review queue ──────────────────────────────────────────────────────

// ReviewEntry is an attempt flagged CHALLENGED, pending a human decision.
type ReviewEntry struct {
	ID         string       `json:"id"`
	AttemptID  string       `json:"attempt_id"`
	UserID     string       `json:"user_id"`
	RiskScore  int          `json:"risk_score"`
	Factors    []RiskFactor `json:"factors"`
	Status     string       `json:"status"` // PENDING / APPROVED / REJECTED
	Notes      string       `json:"notes,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
}

// ─── Webhooks ─────────────────────────────────────────────────────────────────

// WebhookEnvelope carries one inbound provider callback through verification.
// It exists only for the duration of the check and is never persisted as-is;
// only the verification outcome is logged.
type WebhookEnvelope struct {
	RawBody         []byte
	SignatureHeader string
	TimestampHeader string
	SourceTag       string // which upstream provider sent this
	SourceIP        string
}

// ─── Provider directory ───────────────────────────────────────────────────────

// ProviderRule is the validation rule set for one (provider, country) pair.
// Externally owned, read-only; exactly one rule set exists per pair.
type ProviderRule struct {
	ProviderID   string `json:"provider_id"`
	CountryCode  string `json:"country_code"`
	DisplayName  string `json:"display_name"`
	PhonePattern string `json:"phone_pattern"`
	// PhonePrefixes is an optional numeric-prefix allow-list, matched against
	// the digits-only form of the number. Empty means no further restriction.
	PhonePrefixes []string `json:"phone_prefixes,omitempty"`
	MinAmount     float64  `json:"min_amount"`
	MaxAmount     float64  `json:"max_amount"`
	FeePercent    float64  `json:"fee_percent"`
	FeeFixed      float64  `json:"fee_fixed"`
	Instructions  string   `json:"instructions,omitempty"`
}

// ─── Suspicious IPs ───────────────────────────────────────────────────────────

// SuspiciousIP is a manually or automatically flagged source address.
// Presence in the set contributes to the risk score; it is not a hard block.
type SuspiciousIP struct {
	IP      string    `json:"ip"`
	Reason  string    `json:"reason,omitempty"`
	AddedAt time.Time `json:"added_at"`
}
