// Package events provides the security event sink and attempt history store.
//
// Design rationale: the pipeline needs at most a few hours of velocity
// history plus an audit tail, so a thread-safe in-memory store with a
// per-user index is sufficient for demo and small-scale production loads.
// A production deployment would swap this for the platform's persistence
// layer; the read/write contract stays the same (append events, query
// recent attempts most-recent-first).
package events

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sokoni/payguard/internal/domain"
)

// ErrDuplicateAttempt is returned when an attempt ID is recorded twice.
var ErrDuplicateAttempt = errors.New("attempt already recorded")

// ErrAttemptNotFound is returned when an outcome targets an unknown attempt.
var ErrAttemptNotFound = errors.New("attempt not found")

// ErrReviewNotFound is returned when resolving an unknown review entry.
var ErrReviewNotFound = errors.New("review entry not found")

// ErrReviewResolved is returned when resolving an already-resolved entry.
var ErrReviewResolved = errors.New("review entry already resolved")

// Store is the thread-safe in-memory event sink and history store.
type Store struct {
	mu sync.RWMutex

	events   []*domain.SecurityEvent
	attempts map[string]*domain.AttemptRecord
	reviews  map[string]*domain.ReviewEntry

	// Secondary index: user id → attempt ids, in insertion order.
	// Maintained on every write so history reads stay fast.
	attemptsByUser map[string][]string

	// Review queue insertion order, so pending entries list oldest-first.
	reviewOrder []string

	suspiciousIPs map[string]*domain.SuspiciousIP
}

// New creates an empty, ready-to-use Store.
func New() *Store {
	return &Store{
		attempts:       make(map[string]*domain.AttemptRecord),
		reviews:        make(map[string]*domain.ReviewEntry),
		attemptsByUser: make(map[string][]string),
		suspiciousIPs:  make(map[string]*domain.SuspiciousIP),
	}
}

// ─── Security events ──────────────────────────────────────────────────────────

// Append records a security event. It assigns the ID and timestamp when the
// writer left them empty, and it never fails: audit logging must not be able
// to change a decision that has already been made.
func (s *Store) Append(e domain.SecurityEvent) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, &e)
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(limit int) []domain.SecurityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.events)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]domain.SecurityEvent, 0, n)
	for i := len(s.events) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, *s.events[i])
	}
	return result
}

// EventCount reports how many events have been appended. Used by tests and
// the ops endpoint.
func (s *Store) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// ─── Attempt history ──────────────────────────────────────────────────────────

// RecordAttempt persists an attempt record and updates the user index.
// Returns ErrDuplicateAttempt if the attempt ID already exists.
func (s *Store) RecordAttempt(rec *domain.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.attempts[rec.AttemptID]; exists {
		return ErrDuplicateAttempt
	}
	s.attempts[rec.AttemptID] = rec
	s.attemptsByUser[rec.UserID] = append(s.attemptsByUser[rec.UserID], rec.AttemptID)
	return nil
}

// RecordOutcome sets the execution outcome reported by the payment executor.
func (s *Store) RecordOutcome(attemptID, outcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.attempts[attemptID]
	if !ok {
		return ErrAttemptNotFound
	}
	rec.Outcome = outcome
	return nil
}

// GetAttempt retrieves a snapshot of a single attempt record by ID.
func (s *Store) GetAttempt(attemptID string) (*domain.AttemptRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.attempts[attemptID]
	if !ok {
		return nil, false
	}
	c := *rec
	return &c, true
}

// RecentAttempts returns the user's attempts at or after since, most recent
// first. The error return is part of the persistence contract; the in-memory
// store itself cannot fail.
//
// Records are copied so callers hold a snapshot: RecordOutcome mutates the
// stored row, and scoring reads its history outside the store lock.
func (s *Store) RecentAttempts(userID string, since time.Time) ([]*domain.AttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AttemptRecord
	for _, id := range s.attemptsByUser[userID] {
		rec, ok := s.attempts[id]
		if ok && !rec.Timestamp.Before(since) {
			c := *rec
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	return result, nil
}

// ─── Manual review queue ──────────────────────────────────────────────────────

// EnqueueReview adds a challenged attempt to the manual review queue.
func (s *Store) EnqueueReview(entry *domain.ReviewEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews[entry.ID] = entry
	s.reviewOrder = append(s.reviewOrder, entry.ID)
}

// PendingReviews returns unresolved entries, oldest first.
func (s *Store) PendingReviews() []*domain.ReviewEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ReviewEntry
	for _, id := range s.reviewOrder {
		if e := s.reviews[id]; e != nil && e.Status == domain.ReviewPending {
			result = append(result, e)
		}
	}
	return result
}

// ResolveReview records a human decision on a pending entry.
func (s *Store) ResolveReview(id, resolution, notes string) (*domain.ReviewEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.reviews[id]
	if !ok {
		return nil, ErrReviewNotFound
	}
	if entry.Status != domain.ReviewPending {
		return nil, ErrReviewResolved
	}

	now := time.Now().UTC()
	entry.Status = resolution
	entry.Notes = notes
	entry.ResolvedAt = &now
	return entry, nil
}

// ─── Suspicious IPs ───────────────────────────────────────────────────────────

// AddSuspiciousIP flags a source address. Re-adding updates the reason.
func (s *Store) AddSuspiciousIP(ip, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspiciousIPs[ip] = &domain.SuspiciousIP{IP: ip, Reason: reason, AddedAt: time.Now().UTC()}
}

// RemoveSuspiciousIP unflags an address. Returns false if it was not flagged.
func (s *Store) RemoveSuspiciousIP(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.suspiciousIPs[ip]
	if exists {
		delete(s.suspiciousIPs, ip)
	}
	return exists
}

// IsSuspiciousIP reports whether an address is in the flagged set.
func (s *Store) IsSuspiciousIP(ip string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.suspiciousIPs[ip]
	return ok
}

// ListSuspiciousIPs returns all flagged addresses, sorted for stable output.
func (s *Store) ListSuspiciousIPs() []domain.SuspiciousIP {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SuspiciousIP, 0, len(s.suspiciousIPs))
	for _, e := range s.suspiciousIPs {
		result = append(result, *e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].IP < result[j].IP })
	return result
}
