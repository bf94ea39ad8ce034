// Package providers exposes the mobile-money provider catalog as a read-only
// directory: {provider, country} → validation rules and fee schedules.
//
// The catalog is externally owned configuration data. It is consumed here as
// a fixed table; the pipeline never writes to it.
package providers

import (
	"sort"
	"strings"

	"sokoni/payguard/internal/domain"
)

// Directory answers rule lookups for (provider, country) pairs.
type Directory struct {
	rules map[string]*domain.ProviderRule
}

// New builds a Directory from the built-in catalog.
func New() *Directory {
	d := &Directory{rules: make(map[string]*domain.ProviderRule)}
	for i := range catalog {
		r := &catalog[i]
		d.rules[key(r.ProviderID, r.CountryCode)] = r
	}
	return d
}

// Lookup returns the rule set for a (provider, country) pair.
// Exactly one rule set exists per pair; absence means the provider does not
// operate in that country.
func (d *Directory) Lookup(providerID, countryCode string) (*domain.ProviderRule, bool) {
	r, ok := d.rules[key(providerID, countryCode)]
	return r, ok
}

// ByCountry returns every provider available in a country, sorted by
// provider id for stable listings.
func (d *Directory) ByCountry(countryCode string) []*domain.ProviderRule {
	cc := strings.ToUpper(countryCode)
	var result []*domain.ProviderRule
	for _, r := range d.rules {
		if r.CountryCode == cc {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ProviderID < result[j].ProviderID
	})
	return result
}

func key(providerID, countryCode string) string {
	return strings.ToLower(providerID) + "|" + strings.ToUpper(countryCode)
}

// ─── Catalog ──────────────────────────────────────────────────────────────────

// catalog is the provider rule table for Sokoni's mobile-money markets.
// Phone patterns accept local (07…) and international (+254… / 254…) forms.
// Amounts are in the local currency of the country.
var catalog = []domain.ProviderRule{
	{
		ProviderID:    "mpesa",
		CountryCode:   "KE",
		DisplayName:   "M-PESA (Safaricom)",
		PhonePattern:  `^(?:\+254|254|0)7\d{8}$`,
		PhonePrefixes: []string{"25470", "25471", "25472", "25474", "25479", "070", "071", "072", "074", "079"},
		MinAmount:     10,
		MaxAmount:     150000,
		FeePercent:    1.5,
		FeeFixed:      0,
		Instructions:  "You will receive an STK push on your Safaricom line. Enter your M-PESA PIN to confirm.",
	},
	{
		ProviderID:   "airtel_money",
		CountryCode:  "KE",
		DisplayName:  "Airtel Money Kenya",
		PhonePattern: `^(?:\+254|254|0)7\d{8}$`,
		MinAmount:    10,
		MaxAmount:    140000,
		FeePercent:   1.8,
		FeeFixed:     0,
		Instructions: "Dial *334# and approve the pending Airtel Money request.",
	},
	{
		ProviderID:   "mpesa",
		CountryCode:  "TZ",
		DisplayName:  "M-Pesa Tanzania (Vodacom)",
		PhonePattern: `^(?:\+255|255|0)7\d{8}$`,
		MinAmount:    1000,
		MaxAmount:    3000000,
		FeePercent:   1.6,
		FeeFixed:     100,
		Instructions: "Approve the USSD prompt on your Vodacom line and enter your M-Pesa PIN.",
	},
	{
		ProviderID:   "tigo_pesa",
		CountryCode:  "TZ",
		DisplayName:  "Tigo Pesa",
		PhonePattern: `^(?:\+255|255|0)(?:65|67|71)\d{7}$`,
		MinAmount:    1000,
		MaxAmount:    2000000,
		FeePercent:   2.0,
		FeeFixed:     100,
		Instructions: "Dial *150*01# and confirm the pending Tigo Pesa payment.",
	},
	{
		ProviderID:   "mtn_momo",
		CountryCode:  "UG",
		DisplayName:  "MTN Mobile Money Uganda",
		PhonePattern: `^(?:\+256|256|0)7[6-8]\d{7}$`,
		MinAmount:    500,
		MaxAmount:    4000000,
		FeePercent:   1.5,
		FeeFixed:     0,
		Instructions: "Approve the MTN MoMo prompt and enter your PIN.",
	},
	{
		ProviderID:   "airtel_money",
		CountryCode:  "UG",
		DisplayName:  "Airtel Money Uganda",
		PhonePattern: `^(?:\+256|256|0)7[045]\d{7}$`,
		MinAmount:    500,
		MaxAmount:    4000000,
		FeePercent:   1.7,
		FeeFixed:     0,
		Instructions: "Dial *185# and approve the pending Airtel Money request.",
	},
	{
		ProviderID:    "mtn_momo",
		CountryCode:   "GH",
		DisplayName:   "MTN Mobile Money Ghana",
		PhonePattern:  `^(?:\+233|233|0)(?:24|25|53|54|55|59)\d{7}$`,
		PhonePrefixes: []string{"23324", "23325", "23353", "23354", "23355", "23359", "024", "025", "053", "054", "055", "059"},
		MinAmount:     1,
		MaxAmount:     10000,
		FeePercent:    1.0,
		FeeFixed:      0,
		Instructions:  "Approve the MoMo prompt on your MTN line and enter your PIN.",
	},
	{
		ProviderID:   "telecel_cash",
		CountryCode:  "GH",
		DisplayName:  "Telecel Cash",
		PhonePattern: `^(?:\+233|233|0)(?:20|50)\d{7}$`,
		MinAmount:    1,
		MaxAmount:    5000,
		FeePercent:   1.2,
		FeeFixed:     0,
		Instructions: "Dial *110# and confirm the pending Telecel Cash payment.",
	},
	{
		ProviderID:   "opay",
		CountryCode:  "NG",
		DisplayName:  "OPay Nigeria",
		PhonePattern: `^(?:\+234|234|0)[789][01]\d{8}$`,
		MinAmount:    100,
		MaxAmount:    500000,
		FeePercent:   1.4,
		FeeFixed:     50,
		Instructions: "Confirm the payment in your OPay app.",
	},
}
