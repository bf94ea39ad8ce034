package validate_test

import (
	"math"
	"testing"

	"sokoni/payguard/internal/domain"
	"sokoni/payguard/internal/providers"
	"sokoni/payguard/internal/validate"
)

func mustRule(t *testing.T, providerID, country string) *domain.ProviderRule {
	t.Helper()
	rule, ok := providers.New().Lookup(providerID, country)
	if !ok {
		t.Fatalf("catalog is missing %s/%s", providerID, country)
	}
	return rule
}

func attempt(provider, country, phone string, amount float64) *domain.PaymentAttempt {
	return &domain.PaymentAttempt{
		ProviderID:  provider,
		CountryCode: country,
		PhoneNumber: phone,
		Amount:      amount,
		Currency:    "KES",
	}
}

// ─── Phone numbers ────────────────────────────────────────────────────────────

func TestValidate_PhoneFormats(t *testing.T) {
	rule := mustRule(t, "mpesa", "KE")

	cases := []struct {
		name  string
		phone string
		valid bool
	}{
		{"local format", "0712345678", true},
		{"international with plus", "+254712345678", true},
		{"international without plus", "254712345678", true},
		{"too short", "071234567", false},
		{"too long", "07123456789", false},
		{"landline prefix", "0201234567", false},
		{"letters", "0712abc678", false},
		{"empty", "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res := validate.Validate(attempt("mpesa", "KE", c.phone, 500), rule)
			if res.Valid != c.valid {
				t.Errorf("phone %q: valid=%v, want %v (errors: %v)", c.phone, res.Valid, c.valid, res.Errors)
			}
			if !c.valid {
				if _, ok := res.Errors["phone_number"]; !ok {
					t.Errorf("phone %q: expected a phone_number field error, got %v", c.phone, res.Errors)
				}
			}
		})
	}
}

func TestValidate_PrefixRestriction(t *testing.T) {
	rule := mustRule(t, "mpesa", "KE")

	// 073 matches the shape regex but is not a Safaricom prefix.
	res := validate.Validate(attempt("mpesa", "KE", "0731234567", 500), rule)
	if res.Valid {
		t.Error("a non-Safaricom prefix should fail mpesa validation")
	}

	// Airtel KE has no prefix list, so any 07 number passes.
	airtel := mustRule(t, "airtel_money", "KE")
	res = validate.Validate(attempt("airtel_money", "KE", "0731234567", 500), airtel)
	if !res.Valid {
		t.Errorf("no prefix list means no prefix restriction, got %v", res.Errors)
	}
}

func TestValidate_PrefixCheckedOnInternationalForm(t *testing.T) {
	rule := mustRule(t, "mpesa", "KE")
	res := validate.Validate(attempt("mpesa", "KE", "+254712345678", 500), rule)
	if !res.Valid {
		t.Errorf("international form of an allowed prefix should pass, got %v", res.Errors)
	}
}

// ─── Amounts ──────────────────────────────────────────────────────────────────

func TestValidate_AmountBounds(t *testing.T) {
	rule := mustRule(t, "mpesa", "KE")

	cases := []struct {
		name   string
		amount float64
		valid  bool
	}{
		{"zero", 0, false},
		{"negative", -50, false},
		{"below minimum", 9.99, false},
		{"at minimum", 10, true},
		{"mid-range", 75000, true},
		{"at maximum", 150000, true},
		{"above maximum", 150000.01, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res := validate.Validate(attempt("mpesa", "KE", "0712345678", c.amount), rule)
			if res.Valid != c.valid {
				t.Errorf("amount %.2f: valid=%v, want %v (errors: %v)", c.amount, res.Valid, c.valid, res.Errors)
			}
		})
	}
}

// ─── Missing provider ─────────────────────────────────────────────────────────

func TestValidate_NilRule(t *testing.T) {
	res := validate.Validate(attempt("mpesa", "NG", "0712345678", 500), nil)
	if res.Valid {
		t.Fatal("a missing provider rule must fail validation")
	}
	if _, ok := res.Errors["provider"]; !ok {
		t.Errorf("expected a provider field error, got %v", res.Errors)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	rule := mustRule(t, "mpesa", "KE")
	res := validate.Validate(attempt("mpesa", "KE", "bad", -1), rule)

	if res.Valid {
		t.Fatal("expected validation to fail")
	}
	if len(res.Errors) != 2 {
		t.Errorf("expected both phone_number and amount errors, got %v", res.Errors)
	}
}

// ─── Fees ─────────────────────────────────────────────────────────────────────

func TestFee(t *testing.T) {
	mpesaKE := mustRule(t, "mpesa", "KE")   // 1.5%, no fixed part
	mpesaTZ := mustRule(t, "mpesa", "TZ")   // 1.6% + 100
	opayNG := mustRule(t, "opay", "NG")     // 1.4% + 50

	cases := []struct {
		name   string
		rule   *domain.ProviderRule
		amount float64
		fee    float64
	}{
		{"percent only", mpesaKE, 1000, 15},
		{"percent plus fixed", mpesaTZ, 10000, 260},
		{"fixed dominates small amounts", opayNG, 100, 51.4},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := validate.Fee(c.amount, c.rule)
			if math.Abs(got-c.fee) > 1e-9 {
				t.Errorf("Fee(%.2f) = %.4f, want %.4f", c.amount, got, c.fee)
			}
			total := validate.Total(c.amount, c.rule)
			if math.Abs(total-(c.amount+c.fee)) > 1e-9 {
				t.Errorf("Total(%.2f) = %.4f, want %.4f", c.amount, total, c.amount+c.fee)
			}
		})
	}
}
