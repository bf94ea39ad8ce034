// Command seed generates a realistic traffic dataset for the Sokoni payment
// guard and writes it to data/seed.json. The server replays it on startup so
// the velocity and duplicate factors have history to work with.
//
// Usage:
//
//	go run ./cmd/seed
//
// The generated dataset spans 36 hours:
//   - a base of steady shoppers across the mobile-money markets
//   - one burst user hammering the pipeline inside a few minutes
//   - one duplicate pair (identical payment resubmitted immediately)
//   - one scripted client with a bot user agent and no browser headers
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"sokoni/payguard/internal/domain"
)

const browserUA = "Mozilla/5.0 (Linux; Android 13; SM-A536E) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36"

func main() {
	rng := rand.New(rand.NewSource(7)) // deterministic for reproducibility

	base := time.Now().UTC().Add(-36 * time.Hour)
	var attempts []domain.PaymentAttempt

	attempts = append(attempts, generateSteadyShoppers(rng, base)...)
	attempts = append(attempts, generateBurstUser(base)...)
	attempts = append(attempts, generateDuplicatePair(base)...)
	attempts = append(attempts, generateScriptedClient(base)...)

	if err := os.MkdirAll("data", 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir error: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Create("data/seed.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "create error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(attempts); err != nil {
		fmt.Fprintf(os.Stderr, "encode error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d payment attempts → data/seed.json\n", len(attempts))
}

// ─── Steady shoppers ──────────────────────────────────────────────────────────

type shopper struct {
	userID     string
	ip         string
	provider   string
	country    string
	currency   string
	phone      string
	accountAge time.Duration
	avgAmount  float64
}

var shoppers = []shopper{
	{"user-ke-wanjiku", "41.90.12.34", "mpesa", "KE", "KES", "0712345678", 400 * 24 * time.Hour, 850},
	{"user-ke-otieno", "41.90.55.19", "airtel_money", "KE", "KES", "0734567890", 220 * 24 * time.Hour, 420},
	{"user-tz-neema", "197.250.3.77", "mpesa", "TZ", "TZS", "0754123456", 150 * 24 * time.Hour, 25000},
	{"user-ug-kato", "102.80.44.21", "mtn_momo", "UG", "UGX", "0772334455", 500 * 24 * time.Hour, 60000},
	{"user-gh-abena", "154.160.9.88", "mtn_momo", "GH", "GHS", "0244556677", 310 * 24 * time.Hour, 120},
	{"user-ng-chidi", "105.112.30.66", "opay", "NG", "NGN", "08031234567", 270 * 24 * time.Hour, 9500},
}

func generateSteadyShoppers(rng *rand.Rand, base time.Time) []domain.PaymentAttempt {
	var attempts []domain.PaymentAttempt
	for _, s := range shoppers {
		// Each shopper pays 3-5 times, spread across the window.
		count := 3 + rng.Intn(3)
		for i := 0; i < count; i++ {
			hours := float64(i)*(36.0/float64(count)) + rng.Float64()*2
			ts := base.Add(time.Duration(hours * float64(time.Hour)))
			attempts = append(attempts, attempt(s, ts, s.avgAmount*(0.8+rng.Float64()*0.4)))
		}
	}
	return attempts
}

// ─── Burst user ───────────────────────────────────────────────────────────────

// generateBurstUser produces 7 attempts inside 4 minutes, enough to trip the
// rapid-transactions factor on the later ones.
func generateBurstUser(base time.Time) []domain.PaymentAttempt {
	s := shopper{
		userID: "user-ke-burst", ip: "41.90.200.5", provider: "mpesa", country: "KE",
		currency: "KES", phone: "0798765432", accountAge: 3 * 24 * time.Hour, avgAmount: 500,
	}
	start := base.Add(30 * time.Hour)
	var attempts []domain.PaymentAttempt
	for i := 0; i < 7; i++ {
		ts := start.Add(time.Duration(i*35) * time.Second)
		attempts = append(attempts, attempt(s, ts, s.avgAmount+float64(i*40)))
	}
	return attempts
}

// ─── Duplicate pair ───────────────────────────────────────────────────────────

func generateDuplicatePair(base time.Time) []domain.PaymentAttempt {
	s := shopper{
		userID: "user-gh-double", ip: "154.160.77.12", provider: "mtn_momo", country: "GH",
		currency: "GHS", phone: "0543217890", accountAge: 90 * 24 * time.Hour, avgAmount: 75,
	}
	first := attempt(s, base.Add(20*time.Hour), 75)
	second := attempt(s, base.Add(20*time.Hour+90*time.Second), 75)
	return []domain.PaymentAttempt{first, second}
}

// ─── Scripted client ──────────────────────────────────────────────────────────

func generateScriptedClient(base time.Time) []domain.PaymentAttempt {
	s := shopper{
		userID: "user-ng-script", ip: "105.112.99.200", provider: "opay", country: "NG",
		currency: "NGN", phone: "08109876543", accountAge: 12 * time.Hour, avgAmount: 40000,
	}
	a := attempt(s, base.Add(33*time.Hour), 40000)
	a.UserAgent = "python-requests/2.31.0"
	a.AcceptHeader = ""
	a.AcceptEncoding = ""
	return []domain.PaymentAttempt{a}
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func attempt(s shopper, ts time.Time, amount float64) domain.PaymentAttempt {
	return domain.PaymentAttempt{
		UserID:           s.userID,
		Amount:           float64(int(amount)),
		Currency:         s.currency,
		ProviderID:       s.provider,
		CountryCode:      s.country,
		PhoneNumber:      s.phone,
		SourceIP:         s.ip,
		UserAgent:        browserUA,
		AcceptHeader:     "application/json",
		AcceptEncoding:   "gzip, deflate, br",
		AccountCreatedAt: ts.Add(-s.accountAge),
		Timestamp:        ts,
	}
}
