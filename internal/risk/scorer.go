// Package risk implements the fraud risk scoring model for payment attempts.
//
// Architecture:
//   The scorer is intentionally stateless — it reads historical context from
//   the history source but never writes to it. Writes happen in the payment
//   guard after scoring, ensuring the current attempt is not counted against
//   itself.
//
// Scoring philosophy:
//   Each factor contributes a fixed, independently-triggered delta.
//   Deltas are additive; the total is clamped to [0, 100].
//   The recommendation is a deterministic step function of the total.
//
// Factors implemented:
//   1. Velocity — rapid bursts (5 min) and sustained volume (60 min)
//   2. Failures — repeated failed executions in the last hour
//   3. Amount — large absolute amounts and deviation from the user's mean
//   4. Account age — accounts younger than a week carry more risk
//   5. Client signals — suspicious IPs, bot user agents, missing headers
//   6. Duplicates — an identical payment resubmitted within 5 minutes
package risk

import (
	"fmt"
	"regexp"
	"time"

	"sokoni/payguard/internal/domain"
)

// Factor names, stable identifiers recorded on assessments and events.
const (
	FactorRapidTransactions  = "rapid_transactions"
	FactorLargeAmount        = "large_amount"
	FactorNewUser            = "new_user"
	FactorHighVelocity       = "high_velocity"
	FactorMultipleFailures   = "multiple_failures"
	FactorUnusualAmount      = "unusual_amount"
	FactorSuspiciousIP       = "suspicious_ip"
	FactorAutomatedUserAgent = "automated_user_agent"
	FactorMissingHeaders     = "missing_headers"
	FactorUnusualUserAgent   = "unusual_user_agent"
	FactorDuplicatePayment   = "duplicate_payment"
	FactorAssessmentError    = "assessment_error"
)

// HistorySource is the read contract the scorer needs from persistence.
type HistorySource interface {
	// RecentAttempts returns the user's attempts at or after since,
	// most recent first.
	RecentAttempts(userID string, since time.Time) ([]*domain.AttemptRecord, error)
	// IsSuspiciousIP reports whether an address is in the flagged set.
	IsSuspiciousIP(ip string) bool
}

// Config holds the tunable thresholds; everything else in the factor table
// is a fixed design constant.
type Config struct {
	LargeAmount   float64 // amounts at or above this add large_amount
	VarianceRatio float64 // |amount-mean|/mean at or above this adds unusual_amount
}

// Scorer is the stateless risk scorer.
type Scorer struct {
	history HistorySource
	cfg     Config
}

// New creates a Scorer backed by the given history source.
func New(history HistorySource, cfg Config) *Scorer {
	return &Scorer{history: history, cfg: cfg}
}

// ─── Public API ───────────────────────────────────────────────────────────────

// Assess computes the risk assessment for a payment attempt.
//
// If history cannot be read, Assess returns the fixed fallback assessment
// (score 50, review) rather than approving blind or rejecting all traffic —
// errors must never silently approve.
func (s *Scorer) Assess(a *domain.PaymentAttempt) domain.RiskAssessment {
	hour, err := s.history.RecentAttempts(a.UserID, a.Timestamp.Add(-60*time.Minute))
	if err != nil {
		return fallback(a.Timestamp)
	}

	ctx := &factorContext{
		attempt:  a,
		lastHour: hour,
		last5m:   within(hour, a.Timestamp.Add(-5*time.Minute)),
		suspIP:   s.history.IsSuspiciousIP(a.SourceIP),
		cfg:      s.cfg,
	}

	checks := []func(*factorContext) *domain.RiskFactor{
		checkRapidTransactions,
		checkLargeAmount,
		checkNewUser,
		checkHighVelocity,
		checkMultipleFailures,
		checkUnusualAmount,
		checkSuspiciousIP,
		checkAutomatedUserAgent,
		checkMissingHeaders,
		checkUnusualUserAgent,
		checkDuplicatePayment,
	}

	var factors []domain.RiskFactor
	total := 0
	for _, check := range checks {
		if f := check(ctx); f != nil {
			factors = append(factors, *f)
			total += f.ScoreDelta
		}
	}

	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}

	return domain.RiskAssessment{
		Score:          total,
		Factors:        factors,
		Recommendation: Recommend(total),
		ComputedAt:     a.Timestamp,
	}
}

// Recommend returns the recommendation for a given score.
func Recommend(score int) string {
	switch {
	case score >= domain.ThresholdReject:
		return domain.RecommendReject
	case score >= domain.ThresholdReview:
		return domain.RecommendReview
	default:
		return domain.RecommendApprove
	}
}

func fallback(at time.Time) domain.RiskAssessment {
	return domain.RiskAssessment{
		Score: 50,
		Factors: []domain.RiskFactor{{
			Name:        FactorAssessmentError,
			Description: "Risk factors could not be computed; defaulting to manual review",
			ScoreDelta:  50,
		}},
		Recommendation: domain.RecommendReview,
		ComputedAt:     at,
	}
}

// ─── Factor context ───────────────────────────────────────────────────────────

// factorContext bundles the attempt with pre-fetched history so each factor
// doesn't query the source independently.
type factorContext struct {
	attempt  *domain.PaymentAttempt
	lastHour []*domain.AttemptRecord
	last5m   []*domain.AttemptRecord
	suspIP   bool
	cfg      Config
}

// within filters a most-recent-first history down to entries at or after since.
func within(records []*domain.AttemptRecord, since time.Time) []*domain.AttemptRecord {
	var result []*domain.AttemptRecord
	for _, r := range records {
		if !r.Timestamp.Before(since) {
			result = append(result, r)
		}
	}
	return result
}

// ─── Factors ──────────────────────────────────────────────────────────────────

func checkRapidTransactions(ctx *factorContext) *domain.RiskFactor {
	if n := len(ctx.last5m); n >= 5 {
		return &domain.RiskFactor{
			Name:        FactorRapidTransactions,
			Description: fmt.Sprintf("%d payment attempts in the last 5 minutes", n),
			ScoreDelta:  25,
		}
	}
	return nil
}

func checkLargeAmount(ctx *factorContext) *domain.RiskFactor {
	if ctx.attempt.Amount >= ctx.cfg.LargeAmount {
		return &domain.RiskFactor{
			Name:        FactorLargeAmount,
			Description: fmt.Sprintf("Amount %.2f is at or above the large-amount threshold %.2f", ctx.attempt.Amount, ctx.cfg.LargeAmount),
			ScoreDelta:  20,
		}
	}
	return nil
}

func checkNewUser(ctx *factorContext) *domain.RiskFactor {
	age := ctx.attempt.Timestamp.Sub(ctx.attempt.AccountCreatedAt)
	if age < 7*24*time.Hour {
		return &domain.RiskFactor{
			Name:        FactorNewUser,
			Description: fmt.Sprintf("Account is %.1f days old", age.Hours()/24),
			ScoreDelta:  15,
		}
	}
	return nil
}

func checkHighVelocity(ctx *factorContext) *domain.RiskFactor {
	if n := len(ctx.lastHour); n >= 10 {
		return &domain.RiskFactor{
			Name:        FactorHighVelocity,
			Description: fmt.Sprintf("%d payment attempts in the last 60 minutes", n),
			ScoreDelta:  30,
		}
	}
	return nil
}

func checkMultipleFailures(ctx *factorContext) *domain.RiskFactor {
	failed := 0
	for _, r := range ctx.lastHour {
		if r.Outcome == domain.OutcomeFailed {
			failed++
		}
	}
	if failed >= 3 {
		return &domain.RiskFactor{
			Name:        FactorMultipleFailures,
			Description: fmt.Sprintf("%d failed payments in the last 60 minutes", failed),
			ScoreDelta:  20,
		}
	}
	return nil
}

func checkUnusualAmount(ctx *factorContext) *domain.RiskFactor {
	if len(ctx.lastHour) == 0 {
		return nil
	}
	var total float64
	for _, r := range ctx.lastHour {
		total += r.Amount
	}
	mean := total / float64(len(ctx.lastHour))
	if mean <= 0 {
		return nil
	}

	dev := ctx.attempt.Amount - mean
	if dev < 0 {
		dev = -dev
	}
	if dev/mean >= ctx.cfg.VarianceRatio {
		return &domain.RiskFactor{
			Name:        FactorUnusualAmount,
			Description: fmt.Sprintf("Amount %.2f deviates %.0f%% from the user's recent mean %.2f", ctx.attempt.Amount, 100*dev/mean, mean),
			ScoreDelta:  15,
		}
	}
	return nil
}

func checkSuspiciousIP(ctx *factorContext) *domain.RiskFactor {
	if ctx.suspIP {
		return &domain.RiskFactor{
			Name:        FactorSuspiciousIP,
			Description: fmt.Sprintf("Source IP %s is in the flagged set", ctx.attempt.SourceIP),
			ScoreDelta:  25,
		}
	}
	return nil
}

var botUA = regexp.MustCompile(`(?i)(bot|crawl|spider|scraper|curl|wget|python-requests|headless)`)

func checkAutomatedUserAgent(ctx *factorContext) *domain.RiskFactor {
	if botUA.MatchString(ctx.attempt.UserAgent) {
		return &domain.RiskFactor{
			Name:        FactorAutomatedUserAgent,
			Description: "User agent matches a known automation pattern",
			ScoreDelta:  40,
		}
	}
	return nil
}

func checkMissingHeaders(ctx *factorContext) *domain.RiskFactor {
	if ctx.attempt.AcceptHeader == "" || ctx.attempt.AcceptEncoding == "" {
		return &domain.RiskFactor{
			Name:        FactorMissingHeaders,
			Description: "Accept or Accept-Encoding header absent (unlikely for a real browser)",
			ScoreDelta:  20,
		}
	}
	return nil
}

func checkUnusualUserAgent(ctx *factorContext) *domain.RiskFactor {
	if n := len(ctx.attempt.UserAgent); n < 20 || n > 500 {
		return &domain.RiskFactor{
			Name:        FactorUnusualUserAgent,
			Description: fmt.Sprintf("User agent length %d is outside the normal range", n),
			ScoreDelta:  15,
		}
	}
	return nil
}

func checkDuplicatePayment(ctx *factorContext) *domain.RiskFactor {
	a := ctx.attempt
	for _, r := range ctx.last5m {
		if r.Amount == a.Amount &&
			r.Currency == a.Currency &&
			r.ProviderID == a.ProviderID &&
			r.PhoneNumber == a.PhoneNumber {
			return &domain.RiskFactor{
				Name:        FactorDuplicatePayment,
				Description: "Identical payment attempted within the last 5 minutes",
				ScoreDelta:  50,
			}
		}
	}
	return nil
}
