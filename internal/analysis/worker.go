// Package analysis runs longer-horizon behavioral analysis off the request
// path. The guard enqueues a user id after each decision and returns
// immediately; the worker reads 7-day history and writes pattern events.
//
// Analysis outcomes only ever affect future risk assessments, never the
// attempt that triggered them. A full queue drops the job rather than block
// the request path.
package analysis

import (
	"context"
	"log/slog"
	"time"

	"sokoni/payguard/internal/domain"
)

// Sink is the history/event contract the worker needs from persistence.
type Sink interface {
	RecentAttempts(userID string, since time.Time) ([]*domain.AttemptRecord, error)
	Append(domain.SecurityEvent)
}

// Worker consumes queued user ids and looks for week-scale patterns.
type Worker struct {
	logger *slog.Logger
	sink   Sink
	queue  chan string
	now    func() time.Time
}

// New creates a Worker with the given queue capacity.
func New(logger *slog.Logger, sink Sink, buffer int) *Worker {
	if buffer <= 0 {
		buffer = 256
	}
	return &Worker{
		logger: logger,
		sink:   sink,
		queue:  make(chan string, buffer),
		now:    time.Now,
	}
}

// Enqueue hands a user to the worker without blocking. When the queue is
// full the job is dropped; the next decision for the user re-enqueues them.
func (w *Worker) Enqueue(userID string) {
	select {
	case w.queue <- userID:
	default:
		w.logger.Warn("analysis queue full, dropping job", "user_id", userID)
	}
}

// Start consumes the queue until the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("behavioral analysis worker started", "buffer", cap(w.queue))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("behavioral analysis worker stopped")
			return
		case userID := <-w.queue:
			w.analyze(userID)
		}
	}
}

// analyze inspects one user's trailing 7 days and records any patterns.
func (w *Worker) analyze(userID string) {
	since := w.now().UTC().Add(-7 * 24 * time.Hour)
	history, err := w.sink.RecentAttempts(userID, since)
	if err != nil {
		w.logger.Warn("analysis history read failed", "user_id", userID, "error", err)
		return
	}
	if len(history) < 3 {
		return // not enough signal to call anything a pattern
	}

	ips := make(map[string]bool)
	rejected := 0
	var total, max float64
	for _, r := range history {
		ips[r.SourceIP] = true
		if r.Status == domain.StatusRejected {
			rejected++
		}
		total += r.Amount
		if r.Amount > max {
			max = r.Amount
		}
	}
	mean := total / float64(len(history))

	if len(ips) >= 3 {
		w.emit(userID, "multiple_source_ips", map[string]any{
			"distinct_ips": len(ips),
			"attempts":     len(history),
		})
	}
	if rejected >= 3 {
		w.emit(userID, "repeated_rejections", map[string]any{
			"rejected": rejected,
			"attempts": len(history),
		})
	}
	if mean > 0 && max >= 3*mean {
		w.emit(userID, "escalating_amounts", map[string]any{
			"max_amount":  max,
			"mean_amount": mean,
		})
	}
	if len(history) >= 30 {
		w.emit(userID, "heavy_weekly_activity", map[string]any{
			"attempts": len(history),
		})
	}
}

func (w *Worker) emit(userID, pattern string, details map[string]any) {
	details["pattern"] = pattern
	details["window"] = "7d"
	w.sink.Append(domain.SecurityEvent{
		EventType: "behavior_pattern",
		Severity:  domain.SeverityMedium,
		UserID:    userID,
		Details:   details,
	})
	w.logger.Info("behavior pattern detected", "user_id", userID, "pattern", pattern)
}
