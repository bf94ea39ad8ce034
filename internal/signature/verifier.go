// Package signature authenticates inbound payment-provider webhooks:
// HMAC-SHA256 over the signed timestamp and body, plus a replay window on
// the timestamp itself.
//
// Every failure path fails closed and writes exactly one security event.
// Success writes nothing; the caller proceeding is the signal.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sokoni/payguard/internal/domain"
)

// Failure reasons returned to the caller and recorded in events.
const (
	ReasonMissingSignature = "missing_signature"
	ReasonMissingTimestamp = "missing_timestamp"
	ReasonUnknownSource    = "unknown_source"
	ReasonReplay           = "webhook_replay"
	ReasonInvalidSignature = "invalid_signature"
)

// DefaultTolerance bounds the signed-timestamp validity window. This is a
// fixed design constant; it is not negotiated per caller.
const DefaultTolerance = 300 * time.Second

// Result is the outcome of verifying one webhook envelope.
type Result struct {
	Valid  bool
	Reason string // empty when valid
}

// EventSink receives the security events written on verification failure.
type EventSink interface {
	Append(domain.SecurityEvent)
}

// Verifier checks webhook authenticity. One shared secret per source tag.
type Verifier struct {
	secrets   map[string]string
	tolerance time.Duration
	sink      EventSink
	now       func() time.Time
}

// New creates a Verifier. A zero tolerance falls back to DefaultTolerance.
func New(secrets map[string]string, tolerance time.Duration, sink EventSink) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{
		secrets:   secrets,
		tolerance: tolerance,
		sink:      sink,
		now:       time.Now,
	}
}

// WithClock overrides the clock; used by tests to pin the replay window.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify authenticates one envelope. It requires both headers, a known
// source tag, a timestamp inside the tolerance window, and a matching
// signature, in that order. The first failed check decides the reason.
func (v *Verifier) Verify(env domain.WebhookEnvelope) Result {
	if strings.TrimSpace(env.SignatureHeader) == "" {
		return v.fail(env, ReasonMissingSignature, domain.SeverityMedium, nil)
	}
	if strings.TrimSpace(env.TimestampHeader) == "" {
		return v.fail(env, ReasonMissingTimestamp, domain.SeverityMedium, nil)
	}

	secret, ok := v.secrets[env.SourceTag]
	if !ok {
		return v.fail(env, ReasonUnknownSource, domain.SeverityHigh, nil)
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(env.TimestampHeader), 10, 64)
	if err != nil {
		return v.fail(env, ReasonMissingTimestamp, domain.SeverityMedium, map[string]any{
			"timestamp_header": env.TimestampHeader,
		})
	}

	// Replay protection applies regardless of signature correctness: a
	// perfectly signed envelope outside the window is still rejected.
	age := v.now().Unix() - ts
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > v.tolerance {
		return v.fail(env, ReasonReplay, domain.SeverityHigh, map[string]any{
			"timestamp_age_seconds": age,
			"tolerance_seconds":     int64(v.tolerance.Seconds()),
		})
	}

	expected := Sign(secret, ts, env.RawBody)
	got := strings.TrimPrefix(strings.TrimSpace(env.SignatureHeader), "sha256=")
	if !hmac.Equal([]byte(expected), []byte(got)) {
		return v.fail(env, ReasonInvalidSignature, domain.SeverityHigh, nil)
	}

	return Result{Valid: true}
}

// Sign computes the hex HMAC-SHA256 of "timestamp.body" under the secret.
// Exported so tests and outbound callers can produce valid signatures.
func Sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *Verifier) fail(env domain.WebhookEnvelope, reason, severity string, details map[string]any) Result {
	if details == nil {
		details = make(map[string]any)
	}
	details["source"] = env.SourceTag
	v.sink.Append(domain.SecurityEvent{
		EventType: reason,
		Severity:  severity,
		IP:        env.SourceIP,
		Details:   details,
	})
	return Result{Valid: false, Reason: reason}
}
