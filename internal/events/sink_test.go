package events_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"sokoni/payguard/internal/domain"
	"sokoni/payguard/internal/events"
)

func rec(attemptID, userID string, amount float64, ts time.Time) *domain.AttemptRecord {
	return &domain.AttemptRecord{
		PaymentAttempt: domain.PaymentAttempt{
			AttemptID: attemptID,
			UserID:    userID,
			Amount:    amount,
			Timestamp: ts,
		},
		Status:  domain.StatusApproved,
		Outcome: domain.OutcomePending,
	}
}

// ─── Events ───────────────────────────────────────────────────────────────────

func TestAppend_AssignsIDAndTimestamp(t *testing.T) {
	s := events.New()
	s.Append(domain.SecurityEvent{EventType: "rate_limit_exceeded", Severity: domain.SeverityMedium})

	got := s.RecentEvents(10)
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].ID == "" {
		t.Error("event ID should be assigned on append")
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("event timestamp should be assigned on append")
	}
}

func TestRecentEvents_NewestFirstAndLimited(t *testing.T) {
	s := events.New()
	for i := 0; i < 5; i++ {
		s.Append(domain.SecurityEvent{
			EventType: fmt.Sprintf("event_%d", i),
			Severity:  domain.SeverityLow,
		})
	}

	got := s.RecentEvents(3)
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].EventType != "event_4" || got[2].EventType != "event_2" {
		t.Errorf("events not newest-first: %s, %s, %s", got[0].EventType, got[1].EventType, got[2].EventType)
	}
	if s.EventCount() != 5 {
		t.Errorf("expected count 5, got %d", s.EventCount())
	}
}

// ─── Attempt history ──────────────────────────────────────────────────────────

func TestRecordAttempt_RejectsDuplicateID(t *testing.T) {
	s := events.New()
	now := time.Now().UTC()

	if err := s.RecordAttempt(rec("a-1", "u-1", 100, now)); err != nil {
		t.Fatalf("first record failed: %v", err)
	}
	err := s.RecordAttempt(rec("a-1", "u-1", 100, now))
	if !errors.Is(err, events.ErrDuplicateAttempt) {
		t.Errorf("expected ErrDuplicateAttempt, got %v", err)
	}
}

func TestRecentAttempts_FiltersAndOrders(t *testing.T) {
	s := events.New()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_ = s.RecordAttempt(rec("a-old", "u-1", 100, base.Add(-2*time.Hour)))
	_ = s.RecordAttempt(rec("a-mid", "u-1", 200, base.Add(-30*time.Minute)))
	_ = s.RecordAttempt(rec("a-new", "u-1", 300, base.Add(-1*time.Minute)))
	_ = s.RecordAttempt(rec("a-other", "u-2", 400, base))

	got, err := s.RecentAttempts("u-1", base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("RecentAttempts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 attempts inside the window, got %d", len(got))
	}
	if got[0].AttemptID != "a-new" || got[1].AttemptID != "a-mid" {
		t.Errorf("attempts not most-recent-first: %s, %s", got[0].AttemptID, got[1].AttemptID)
	}
}

func TestRecordOutcome(t *testing.T) {
	s := events.New()
	_ = s.RecordAttempt(rec("a-1", "u-1", 100, time.Now().UTC()))

	if err := s.RecordOutcome("a-1", domain.OutcomeSuccess); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	got, ok := s.GetAttempt("a-1")
	if !ok || got.Outcome != domain.OutcomeSuccess {
		t.Errorf("outcome not persisted: %+v", got)
	}

	if err := s.RecordOutcome("missing", domain.OutcomeFailed); !errors.Is(err, events.ErrAttemptNotFound) {
		t.Errorf("expected ErrAttemptNotFound, got %v", err)
	}
}

func TestRecentAttempts_ReturnsSnapshots(t *testing.T) {
	s := events.New()
	_ = s.RecordAttempt(rec("snap-1", "u-1", 100, time.Now().UTC()))

	before, err := s.RecentAttempts("u-1", time.Time{})
	if err != nil || len(before) != 1 {
		t.Fatalf("RecentAttempts: %v (%d records)", err, len(before))
	}

	if err := s.RecordOutcome("snap-1", domain.OutcomeFailed); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}

	// The earlier read must not observe the later write.
	if before[0].Outcome != domain.OutcomePending {
		t.Errorf("history reads must be snapshots, got outcome %q", before[0].Outcome)
	}
	after, _ := s.RecentAttempts("u-1", time.Time{})
	if after[0].Outcome != domain.OutcomeFailed {
		t.Errorf("a fresh read should see the update, got %q", after[0].Outcome)
	}

	got, _ := s.GetAttempt("snap-1")
	_ = s.RecordOutcome("snap-1", domain.OutcomeSuccess)
	if got.Outcome != domain.OutcomeFailed {
		t.Errorf("GetAttempt must also return a snapshot, got %q", got.Outcome)
	}
}

func TestRecentAttempts_ConcurrentWithOutcomeWrites(t *testing.T) {
	s := events.New()
	_ = s.RecordAttempt(rec("race-1", "u-1", 100, time.Now().UTC()))

	// Readers hold history across outcome updates, the way the scorer does.
	// Run under -race: snapshot copies keep the reads write-free.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			recs, _ := s.RecentAttempts("u-1", time.Time{})
			_ = recs[0].Outcome
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			outcome := domain.OutcomeSuccess
			if i%2 == 1 {
				outcome = domain.OutcomeFailed
			}
			_ = s.RecordOutcome("race-1", outcome)
		}
	}()
	wg.Wait()
}

// ─── Review queue ─────────────────────────────────────────────────────────────

func TestReviewQueue_Lifecycle(t *testing.T) {
	s := events.New()

	s.EnqueueReview(&domain.ReviewEntry{ID: "r-1", AttemptID: "a-1", Status: domain.ReviewPending})
	s.EnqueueReview(&domain.ReviewEntry{ID: "r-2", AttemptID: "a-2", Status: domain.ReviewPending})

	pending := s.PendingReviews()
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending entries, got %d", len(pending))
	}
	if pending[0].ID != "r-1" {
		t.Errorf("pending entries should be oldest-first, got %s first", pending[0].ID)
	}

	resolved, err := s.ResolveReview("r-1", domain.ReviewApproved, "verified with the customer")
	if err != nil {
		t.Fatalf("ResolveReview: %v", err)
	}
	if resolved.Status != domain.ReviewApproved || resolved.ResolvedAt == nil {
		t.Errorf("resolution not recorded: %+v", resolved)
	}

	if len(s.PendingReviews()) != 1 {
		t.Error("resolved entries must leave the pending list")
	}

	if _, err := s.ResolveReview("r-1", domain.ReviewRejected, ""); !errors.Is(err, events.ErrReviewResolved) {
		t.Errorf("expected ErrReviewResolved on double resolution, got %v", err)
	}
	if _, err := s.ResolveReview("r-404", domain.ReviewApproved, ""); !errors.Is(err, events.ErrReviewNotFound) {
		t.Errorf("expected ErrReviewNotFound, got %v", err)
	}
}

// ─── Suspicious IPs ───────────────────────────────────────────────────────────

func TestSuspiciousIPs(t *testing.T) {
	s := events.New()

	s.AddSuspiciousIP("10.0.0.2", "abuse reports")
	s.AddSuspiciousIP("10.0.0.1", "proxy exit node")

	if !s.IsSuspiciousIP("10.0.0.1") {
		t.Error("flagged IP not reported as suspicious")
	}
	if s.IsSuspiciousIP("10.0.0.9") {
		t.Error("unflagged IP reported as suspicious")
	}

	list := s.ListSuspiciousIPs()
	if len(list) != 2 || list[0].IP != "10.0.0.1" {
		t.Errorf("list should be sorted by IP, got %+v", list)
	}

	if !s.RemoveSuspiciousIP("10.0.0.1") {
		t.Error("removing a flagged IP should report true")
	}
	if s.RemoveSuspiciousIP("10.0.0.1") {
		t.Error("removing an absent IP should report false")
	}
	if s.IsSuspiciousIP("10.0.0.1") {
		t.Error("removed IP still flagged")
	}
}

// ─── Concurrency ──────────────────────────────────────────────────────────────

func TestStore_ConcurrentWritesAndReads(t *testing.T) {
	s := events.New()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("a-%d", i)
			_ = s.RecordAttempt(rec(id, "u-1", float64(i), time.Now().UTC()))
			s.Append(domain.SecurityEvent{EventType: "payment_decision", Severity: domain.SeverityLow})
			_, _ = s.RecentAttempts("u-1", time.Time{})
			_ = s.RecentEvents(10)
		}(i)
	}
	wg.Wait()

	if s.EventCount() != 20 {
		t.Errorf("expected 20 events, got %d", s.EventCount())
	}
	got, _ := s.RecentAttempts("u-1", time.Time{})
	if len(got) != 20 {
		t.Errorf("expected 20 attempts, got %d", len(got))
	}
}
