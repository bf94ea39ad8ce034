// Package ratelimit implements fixed-window request counting keyed by
// (identifier, endpoint class).
//
// The fixed-window strategy trades boundary-burst tolerance for simplicity:
// when the clock crosses a window boundary the previous counter is discarded,
// not merged. The increment-and-compare is serialized under one mutex so two
// concurrent requests can never both consume the final slot.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sokoni/payguard/internal/domain"
)

// Class identifies a group of endpoints sharing one limit.
type Class string

const (
	ClassAuth    Class = "auth"
	ClassPayment Class = "payment"
	ClassWebhook Class = "webhook"
	ClassGeneral Class = "general"
)

// Rule is the statically configured limit for one class.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Result is the outcome of one check-and-increment.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// EventSink receives the event written when a limit is exceeded.
type EventSink interface {
	Append(domain.SecurityEvent)
}

type counter struct {
	windowStart int64 // unix seconds, floor(now/window)*window
	count       int
}

// Limiter owns the counter store. Construct one per process and inject it;
// counters are in-process state, not ambient globals.
type Limiter struct {
	mu       sync.Mutex
	rules    map[Class]Rule
	counters map[string]*counter
	sink     EventSink
	now      func() time.Time
}

// New creates a Limiter with the given per-class rules. Classes missing
// from the map fall back to ClassGeneral, which must be present.
func New(rules map[Class]Rule, sink EventSink) *Limiter {
	return &Limiter{
		rules:    rules,
		counters: make(map[string]*counter),
		sink:     sink,
		now:      time.Now,
	}
}

// WithClock overrides the clock; used by tests to step across windows.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check atomically counts one request against (identifier, class) and
// reports whether it is allowed. The counter is capped at limit+1 so a
// stream of rejected requests neither grows it nor resets the window.
func (l *Limiter) Check(identifier string, class Class) Result {
	rule, ok := l.rules[class]
	if !ok {
		class = ClassGeneral
		rule = l.rules[ClassGeneral]
	}

	windowSec := int64(rule.Window / time.Second)
	if windowSec < 1 {
		// A zero or sub-second window from a misconfigured rule degrades to
		// one second instead of dividing by zero.
		windowSec = 1
	}
	nowSec := l.now().Unix()
	windowStart := (nowSec / windowSec) * windowSec
	key := identifier + "|" + string(class)

	l.mu.Lock()
	c, exists := l.counters[key]
	if !exists || c.windowStart != windowStart {
		c = &counter{windowStart: windowStart}
		l.counters[key] = c
	}
	if c.count <= rule.Limit {
		c.count++
	}
	count := c.count
	l.mu.Unlock()

	resetAt := time.Unix(windowStart+windowSec, 0)
	if count > rule.Limit {
		l.sink.Append(domain.SecurityEvent{
			EventType: "rate_limit_exceeded",
			Severity:  domain.SeverityMedium,
			Details: map[string]any{
				"identifier": identifier,
				"class":      string(class),
				"limit":      rule.Limit,
			},
		})
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}
	return Result{Allowed: true, Remaining: rule.Limit - count, ResetAt: resetAt}
}

// StartSweeper periodically drops counters whose window has passed, so the
// store does not grow with the identifier space. Run it in its own goroutine.
func (l *Limiter) StartSweeper(ctx context.Context, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("rate limit sweeper stopped")
			return
		case <-ticker.C:
			if n := l.sweep(); n > 0 {
				logger.Debug("swept expired rate limit counters", "count", n)
			}
		}
	}
}

func (l *Limiter) sweep() int {
	// The longest configured window bounds how stale a counter can be and
	// still matter.
	var maxWindow int64
	for _, r := range l.rules {
		if w := int64(r.Window / time.Second); w > maxWindow {
			maxWindow = w
		}
	}
	cutoff := l.now().Unix() - 2*maxWindow

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, c := range l.counters {
		if c.windowStart < cutoff {
			delete(l.counters, key)
			removed++
		}
	}
	return removed
}

// RulesFromConfig assembles the class table from flat config values.
func RulesFromConfig(authLimit, authWin, payLimit, payWin, whLimit, whWin, genLimit, genWin int) map[Class]Rule {
	return map[Class]Rule{
		ClassAuth:    {Limit: authLimit, Window: time.Duration(authWin) * time.Second},
		ClassPayment: {Limit: payLimit, Window: time.Duration(payWin) * time.Second},
		ClassWebhook: {Limit: whLimit, Window: time.Duration(whWin) * time.Second},
		ClassGeneral: {Limit: genLimit, Window: time.Duration(genWin) * time.Second},
	}
}
