// Package config loads the service configuration from the environment.
// Every knob the pipeline exposes lives here; components receive their
// settings at construction time and never read ambient globals.
package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	Config struct {
		HTTP      HTTP
		Webhook   Webhook
		Risk      Risk
		RateLimit RateLimit
	}

	HTTP struct {
		Port           string   `env:"HTTP_PORT" env-default:"8080"`
		AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-default:"*"`
	}

	Webhook struct {
		// Secrets maps a source tag (one per upstream payment provider) to
		// its shared HMAC secret, e.g. "mpesa:s3cret,mtn_momo:0th3r".
		Secrets map[string]string `env:"WEBHOOK_SECRETS"`
		// ReplayToleranceSeconds bounds the signed-timestamp validity window.
		// 300s is the design default; override only with good reason.
		ReplayToleranceSeconds int `env:"WEBHOOK_REPLAY_TOLERANCE_SECONDS" env-default:"300"`
	}

	Risk struct {
		LargeAmount      float64  `env:"RISK_LARGE_AMOUNT" env-default:"1000"`
		VarianceRatio    float64  `env:"RISK_VARIANCE_RATIO" env-default:"0.9"`
		DailyAmountCap   float64  `env:"RISK_DAILY_AMOUNT_CAP" env-default:"5000"`
		ReviewETAMinutes int      `env:"RISK_REVIEW_ETA_MINUTES" env-default:"30"`
		SuspiciousIPs    []string `env:"RISK_SUSPICIOUS_IPS"`
	}

	RateLimit struct {
		AuthLimit            int `env:"RATE_AUTH_LIMIT" env-default:"5"`
		AuthWindowSeconds    int `env:"RATE_AUTH_WINDOW_SECONDS" env-default:"300"`
		PaymentLimit         int `env:"RATE_PAYMENT_LIMIT" env-default:"10"`
		PaymentWindowSeconds int `env:"RATE_PAYMENT_WINDOW_SECONDS" env-default:"600"`
		WebhookLimit         int `env:"RATE_WEBHOOK_LIMIT" env-default:"1000"`
		WebhookWindowSeconds int `env:"RATE_WEBHOOK_WINDOW_SECONDS" env-default:"3600"`
		GeneralLimit         int `env:"RATE_GENERAL_LIMIT" env-default:"100"`
		GeneralWindowSeconds int `env:"RATE_GENERAL_WINDOW_SECONDS" env-default:"3600"`
	}
)

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}
