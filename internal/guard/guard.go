// Package guard orchestrates the payment security pipeline. It is the single
// entry point per payment attempt or webhook delivery and sequences
// rate limiting, validation, and risk scoring into an allow/challenge/deny
// decision.
//
// Stages run strictly sequentially within one attempt; there is no internal
// concurrency inside a single invocation. Every terminal transition writes
// exactly one decision event, and the attempt record is persisted so it
// becomes history for future assessments.
package guard

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"sokoni/payguard/internal/domain"
	"sokoni/payguard/internal/ratelimit"
	"sokoni/payguard/internal/signature"
	"sokoni/payguard/internal/validate"
)

// ─── Collaborator contracts ───────────────────────────────────────────────────

// EventSink is the write/read contract the guard needs from persistence.
type EventSink interface {
	Append(domain.SecurityEvent)
	RecordAttempt(*domain.AttemptRecord) error
	RecentAttempts(userID string, since time.Time) ([]*domain.AttemptRecord, error)
	EnqueueReview(*domain.ReviewEntry)
}

// RateChecker is the rate limiter contract.
type RateChecker interface {
	Check(identifier string, class ratelimit.Class) ratelimit.Result
}

// Scorer is the risk scorer contract.
type Scorer interface {
	Assess(*domain.PaymentAttempt) domain.RiskAssessment
}

// Verifier is the webhook signature verifier contract.
type Verifier interface {
	Verify(domain.WebhookEnvelope) signature.Result
}

// RuleSource is the provider directory contract.
type RuleSource interface {
	Lookup(providerID, countryCode string) (*domain.ProviderRule, bool)
}

// AnalysisQueue receives fire-and-forget background analysis jobs.
type AnalysisQueue interface {
	Enqueue(userID string)
}

// ─── Decisions ────────────────────────────────────────────────────────────────

// Decision is the terminal outcome for one payment attempt.
type Decision struct {
	AttemptID        string            `json:"attempt_id"`
	Status           string            `json:"status"` // APPROVED / CHALLENGED / REJECTED
	ReasonCode       string            `json:"reason_code,omitempty"`
	HTTPStatus       int               `json:"-"`
	RiskScore        int               `json:"risk_score"`
	ValidationErrors map[string]string `json:"validation_errors,omitempty"`
	RetryAfterSec    int               `json:"retry_after_seconds,omitempty"`
	ReviewETAMinutes int               `json:"review_eta_minutes,omitempty"`
}

// WebhookDecision is the terminal outcome for one webhook delivery.
type WebhookDecision struct {
	Accepted   bool
	HTTPStatus int
	Reason     string
}

// Config holds the guard's own thresholds.
type Config struct {
	DailyAmountCap   float64 // trailing-24h approved+pending spend cap per user
	ReviewETAMinutes int     // estimate returned with CHALLENGED outcomes
}

// Guard sequences the pipeline.
type Guard struct {
	limiter   RateChecker
	directory RuleSource
	scorer    Scorer
	verifier  Verifier
	sink      EventSink
	analysis  AnalysisQueue
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// New wires a Guard to its collaborators.
func New(limiter RateChecker, directory RuleSource, scorer Scorer, verifier Verifier, sink EventSink, analysis AnalysisQueue, cfg Config, logger *slog.Logger) *Guard {
	return &Guard{
		limiter:   limiter,
		directory: directory,
		scorer:    scorer,
		verifier:  verifier,
		sink:      sink,
		analysis:  analysis,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// ─── Payment path ─────────────────────────────────────────────────────────────

// CheckPayment runs one attempt through the pipeline:
//
//	RECEIVED → rate check → daily cap → validation → scoring → terminal
//
// The call may block on history reads; callers should treat it as I/O.
func (g *Guard) CheckPayment(a *domain.PaymentAttempt) Decision {
	if a.AttemptID == "" {
		a.AttemptID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = g.now().UTC()
	}

	// Stage 1: rate check. Keyed by user when known, source IP otherwise.
	identifier := a.UserID
	if identifier == "" {
		identifier = a.SourceIP
	}
	rl := g.limiter.Check(identifier, ratelimit.ClassPayment)
	if !rl.Allowed {
		retry := int(time.Until(rl.ResetAt) / time.Second)
		if retry < 1 {
			retry = 1
		}
		return g.finish(a, domain.RiskAssessment{}, Decision{
			AttemptID:     a.AttemptID,
			Status:        domain.StatusRejected,
			ReasonCode:    domain.ReasonRateLimit,
			HTTPStatus:    http.StatusTooManyRequests,
			RetryAfterSec: retry,
		})
	}

	// Stage 2: daily spend cap over the trailing 24 hours.
	if exceeded, spent := g.dailyCapExceeded(a); exceeded {
		g.logger.Info("daily cap exceeded", "user_id", a.UserID, "spent", spent, "amount", a.Amount)
		return g.finish(a, domain.RiskAssessment{}, Decision{
			AttemptID:  a.AttemptID,
			Status:     domain.StatusRejected,
			ReasonCode: domain.ReasonDailyLimit,
			HTTPStatus: http.StatusTooManyRequests,
		})
	}

	// Stage 3: validation. Malformed input is rejected before scoring;
	// there is no point risk-scoring garbage.
	rule, _ := g.directory.Lookup(a.ProviderID, a.CountryCode)
	vr := validate.Validate(a, rule)
	if !vr.Valid {
		return g.finish(a, domain.RiskAssessment{}, Decision{
			AttemptID:        a.AttemptID,
			Status:           domain.StatusRejected,
			ReasonCode:       domain.ReasonValidationError,
			HTTPStatus:       http.StatusBadRequest,
			ValidationErrors: vr.Errors,
		})
	}

	// Stage 4: risk scoring against trailing history.
	assessment := g.scorer.Assess(a)

	// The notify threshold is separate from the decision threshold: a
	// reviewed attempt at or above it still raises a high-risk event.
	if assessment.Score >= domain.ThresholdNotify && assessment.Recommendation != domain.RecommendReject {
		g.sink.Append(domain.SecurityEvent{
			EventType:             "high_risk_payment",
			Severity:              domain.SeverityHigh,
			UserID:                a.UserID,
			IP:                    a.SourceIP,
			UserAgent:             a.UserAgent,
			RiskScoreContribution: assessment.Score,
			Details:               map[string]any{"attempt_id": a.AttemptID, "factors": factorNames(assessment.Factors)},
		})
	}

	switch assessment.Recommendation {
	case domain.RecommendReject:
		return g.finish(a, assessment, Decision{
			AttemptID:  a.AttemptID,
			Status:     domain.StatusRejected,
			ReasonCode: domain.ReasonSecurityBlock,
			HTTPStatus: http.StatusForbidden,
			RiskScore:  assessment.Score,
		})
	case domain.RecommendReview:
		g.sink.EnqueueReview(&domain.ReviewEntry{
			AttemptID: a.AttemptID,
			UserID:    a.UserID,
			RiskScore: assessment.Score,
			Factors:   assessment.Factors,
			Status:    domain.ReviewPending,
		})
		return g.finish(a, assessment, Decision{
			AttemptID:        a.AttemptID,
			Status:           domain.StatusChallenged,
			ReasonCode:       domain.ReasonManualReview,
			HTTPStatus:       http.StatusAccepted,
			RiskScore:        assessment.Score,
			ReviewETAMinutes: g.cfg.ReviewETAMinutes,
		})
	default:
		return g.finish(a, assessment, Decision{
			AttemptID:  a.AttemptID,
			Status:     domain.StatusApproved,
			HTTPStatus: http.StatusOK,
			RiskScore:  assessment.Score,
		})
	}
}

// dailyCapExceeded sums the user's non-rejected attempts over the trailing
// 24 hours. A history read failure does not trip the cap; the scorer's
// fallback covers the degraded case without blocking all traffic.
func (g *Guard) dailyCapExceeded(a *domain.PaymentAttempt) (bool, float64) {
	if g.cfg.DailyAmountCap <= 0 {
		return false, 0
	}
	day, err := g.sink.RecentAttempts(a.UserID, a.Timestamp.Add(-24*time.Hour))
	if err != nil {
		g.logger.Warn("daily cap history read failed", "user_id", a.UserID, "error", err)
		return false, 0
	}
	var spent float64
	for _, r := range day {
		if r.Status != domain.StatusRejected && r.Outcome != domain.OutcomeFailed {
			spent += r.Amount
		}
	}
	return spent+a.Amount > g.cfg.DailyAmountCap, spent
}

// finish records the attempt, writes the single decision event, queues
// background analysis, and returns the decision unchanged. Persistence
// problems are logged and never alter the decision already made.
func (g *Guard) finish(a *domain.PaymentAttempt, assessment domain.RiskAssessment, d Decision) Decision {
	rec := &domain.AttemptRecord{
		PaymentAttempt: *a,
		RiskAssessment: assessment,
		Status:         d.Status,
		Outcome:        domain.OutcomePending,
		ProcessedAt:    g.now().UTC(),
	}
	if err := g.sink.RecordAttempt(rec); err != nil {
		g.logger.Error("failed to record attempt", "attempt_id", a.AttemptID, "error", err)
	}

	severity := domain.SeverityLow
	if d.Status == domain.StatusChallenged {
		severity = domain.SeverityMedium
	}
	if d.Status == domain.StatusRejected {
		severity = domain.SeverityHigh
	}
	details := map[string]any{
		"attempt_id": a.AttemptID,
		"status":     d.Status,
		"amount":     a.Amount,
		"currency":   a.Currency,
		"provider":   a.ProviderID,
	}
	if d.ReasonCode != "" {
		details["reason"] = d.ReasonCode
	}
	if len(d.ValidationErrors) > 0 {
		details["validation_errors"] = d.ValidationErrors
	}
	if len(assessment.Factors) > 0 {
		details["factors"] = factorNames(assessment.Factors)
	}
	g.sink.Append(domain.SecurityEvent{
		EventType:             "payment_decision",
		Severity:              severity,
		UserID:                a.UserID,
		IP:                    a.SourceIP,
		UserAgent:             a.UserAgent,
		RiskScoreContribution: assessment.Score,
		Details:               details,
	})

	if g.analysis != nil && a.UserID != "" {
		g.analysis.Enqueue(a.UserID)
	}

	g.logger.Info("payment decision",
		"attempt_id", a.AttemptID,
		"user_id", a.UserID,
		"status", d.Status,
		"reason", d.ReasonCode,
		"score", assessment.Score,
	)
	return d
}

// ─── Webhook path ─────────────────────────────────────────────────────────────

// HandleWebhook authenticates one provider callback. Webhooks are rate
// limited and signature checked; they are never risk-scored.
func (g *Guard) HandleWebhook(env domain.WebhookEnvelope) WebhookDecision {
	identifier := env.SourceTag
	if identifier == "" {
		identifier = env.SourceIP
	}
	if rl := g.limiter.Check(identifier, ratelimit.ClassWebhook); !rl.Allowed {
		return WebhookDecision{HTTPStatus: http.StatusTooManyRequests, Reason: "rate_limited"}
	}

	res := g.verifier.Verify(env)
	if !res.Valid {
		g.logger.Warn("webhook rejected", "source", env.SourceTag, "reason", res.Reason)
		return WebhookDecision{HTTPStatus: http.StatusUnauthorized, Reason: res.Reason}
	}

	return WebhookDecision{Accepted: true, HTTPStatus: http.StatusOK}
}

func factorNames(factors []domain.RiskFactor) []string {
	names := make([]string, len(factors))
	for i, f := range factors {
		names[i] = f.Name
	}
	return names
}
