package analysis_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"sokoni/payguard/internal/analysis"
	"sokoni/payguard/internal/domain"
	"sokoni/payguard/internal/events"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seed(store *events.Store, userID, attemptID, ip string, amount float64, status string, age time.Duration) {
	_ = store.RecordAttempt(&domain.AttemptRecord{
		PaymentAttempt: domain.PaymentAttempt{
			AttemptID: attemptID,
			UserID:    userID,
			Amount:    amount,
			SourceIP:  ip,
			Timestamp: time.Now().UTC().Add(-age),
		},
		Status:  status,
		Outcome: domain.OutcomePending,
	})
}

// patternEvents returns the behavior_pattern events, keyed by pattern name.
func patternEvents(store *events.Store) map[string]domain.SecurityEvent {
	result := make(map[string]domain.SecurityEvent)
	for _, e := range store.RecentEvents(0) {
		if e.EventType != "behavior_pattern" {
			continue
		}
		if p, ok := e.Details["pattern"].(string); ok {
			result[p] = e
		}
	}
	return result
}

// run starts the worker, enqueues the user, and waits for the queue to drain.
func run(t *testing.T, store *events.Store, userID string) {
	t.Helper()

	w := analysis.New(discard(), store, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	w.Enqueue(userID)

	// The worker signals nothing on completion; give it a moment to pick up
	// the job, then poll the event count until it settles.
	time.Sleep(100 * time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	last := -1
	for time.Now().Before(deadline) {
		n := store.EventCount()
		if n == last {
			break
		}
		last = n
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancellation")
	}
}

func TestWorker_MultipleSourceIPs(t *testing.T) {
	store := events.New()
	for i := 0; i < 4; i++ {
		seed(store, "u-ips", fmt.Sprintf("ip-att-%d", i), fmt.Sprintf("10.0.0.%d", i), 200, domain.StatusApproved, time.Duration(i)*time.Hour)
	}

	run(t, store, "u-ips")

	got := patternEvents(store)
	if _, ok := got["multiple_source_ips"]; !ok {
		t.Errorf("expected multiple_source_ips, got %v", got)
	}
	if _, ok := got["repeated_rejections"]; ok {
		t.Error("no rejections were seeded")
	}
}

func TestWorker_RepeatedRejections(t *testing.T) {
	store := events.New()
	for i := 0; i < 3; i++ {
		seed(store, "u-rej", fmt.Sprintf("rej-att-%d", i), "10.0.0.1", 200, domain.StatusRejected, time.Duration(i)*time.Hour)
	}

	run(t, store, "u-rej")

	if _, ok := patternEvents(store)["repeated_rejections"]; !ok {
		t.Error("expected repeated_rejections for 3 rejected attempts")
	}
}

func TestWorker_EscalatingAmounts(t *testing.T) {
	store := events.New()

	// Four small payments then one huge one: mean 892, max 4000 (> 3x mean).
	for i, amount := range []float64{100, 110, 120, 130} {
		seed(store, "u-esc", fmt.Sprintf("esc-att-%d", i), "10.0.0.1", amount,
			domain.StatusApproved, time.Duration(5-i)*time.Hour)
	}
	seed(store, "u-esc", "esc-att-big", "10.0.0.1", 4000, domain.StatusApproved, time.Hour)

	run(t, store, "u-esc")

	if _, ok := patternEvents(store)["escalating_amounts"]; !ok {
		t.Error("expected escalating_amounts when the max dwarfs the mean")
	}
}

func TestWorker_TooLittleHistory_NoEvents(t *testing.T) {
	store := events.New()
	seed(store, "u-quiet", "quiet-att-1", "10.0.0.1", 200, domain.StatusApproved, time.Hour)
	seed(store, "u-quiet", "quiet-att-2", "10.0.0.1", 200, domain.StatusApproved, 2*time.Hour)

	run(t, store, "u-quiet")

	if n := store.EventCount(); n != 0 {
		t.Errorf("fewer than 3 attempts should produce no events, got %d", n)
	}
}

func TestWorker_OldHistoryIgnored(t *testing.T) {
	store := events.New()
	for i := 0; i < 4; i++ {
		seed(store, "u-old", fmt.Sprintf("old-att-%d", i), fmt.Sprintf("10.0.0.%d", i), 200, domain.StatusRejected, 8*24*time.Hour)
	}

	run(t, store, "u-old")

	if n := store.EventCount(); n != 0 {
		t.Errorf("attempts outside the 7-day window must not count, got %d", n)
	}
}

func TestEnqueue_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	// Never started, so nothing drains the queue.
	w := analysis.New(discard(), events.New(), 2)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			w.Enqueue(fmt.Sprintf("u-%d", i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}
