// Package validate implements payment input validation against provider
// rules: phone number format, amount bounds, and fee computation.
//
// All functions are pure. Field errors are collected rather than
// short-circuited so one call surfaces every problem at once.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"sokoni/payguard/internal/domain"
)

// Result is the outcome of validating one payment attempt.
type Result struct {
	Valid  bool              `json:"valid"`
	Errors map[string]string `json:"errors,omitempty"` // field → message
}

// Validate checks an attempt's phone number and amount against the rule for
// its (provider, country) pair. A nil rule means the pair does not exist in
// the provider directory, which is itself a validation error.
func Validate(a *domain.PaymentAttempt, rule *domain.ProviderRule) Result {
	errs := make(map[string]string)

	if rule == nil {
		errs["provider"] = fmt.Sprintf("provider '%s' is not available in country '%s'", a.ProviderID, a.CountryCode)
	}

	checkPhone(a, rule, errs)
	checkAmount(a, rule, errs)

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// Fee computes the provider fee for an amount.
func Fee(amount float64, rule *domain.ProviderRule) float64 {
	return amount*rule.FeePercent/100 + rule.FeeFixed
}

// Total is the amount the user pays: principal plus fee.
func Total(amount float64, rule *domain.ProviderRule) float64 {
	return amount + Fee(amount, rule)
}

// ─── Phone ────────────────────────────────────────────────────────────────────

func checkPhone(a *domain.PaymentAttempt, rule *domain.ProviderRule, errs map[string]string) {
	phone := strings.TrimSpace(a.PhoneNumber)
	if phone == "" {
		errs["phone_number"] = "phone number is required"
		return
	}
	if rule == nil {
		return // cannot check the format without a rule
	}

	re, err := pattern(rule.PhonePattern)
	if err != nil {
		errs["phone_number"] = "phone number could not be validated"
		return
	}
	if !re.MatchString(phone) {
		errs["phone_number"] = fmt.Sprintf("phone number is not a valid %s number", rule.DisplayName)
		return
	}

	// An absent prefix list means no further restriction.
	if len(rule.PhonePrefixes) == 0 {
		return
	}
	digits := digitsOnly(phone)
	for _, p := range rule.PhonePrefixes {
		if strings.HasPrefix(digits, p) {
			return
		}
	}
	errs["phone_number"] = fmt.Sprintf("phone number prefix is not supported by %s", rule.DisplayName)
}

// ─── Amount ───────────────────────────────────────────────────────────────────

func checkAmount(a *domain.PaymentAttempt, rule *domain.ProviderRule, errs map[string]string) {
	if a.Amount <= 0 {
		errs["amount"] = "amount must be greater than 0"
		return
	}
	if rule == nil {
		return
	}
	// Bounds are inclusive.
	if a.Amount < rule.MinAmount {
		errs["amount"] = fmt.Sprintf("amount is below the %s minimum of %.2f", rule.DisplayName, rule.MinAmount)
	} else if a.Amount > rule.MaxAmount {
		errs["amount"] = fmt.Sprintf("amount exceeds the %s maximum of %.2f", rule.DisplayName, rule.MaxAmount)
	}
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

var (
	patternMu    sync.RWMutex
	patternCache = make(map[string]*regexp.Regexp)
)

// pattern compiles a rule's phone regexp once and caches it; rules are
// static so the cache never needs invalidation.
func pattern(expr string) (*regexp.Regexp, error) {
	patternMu.RLock()
	re, ok := patternCache[expr]
	patternMu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	patternMu.Lock()
	patternCache[expr] = re
	patternMu.Unlock()
	return re, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
