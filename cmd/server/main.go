// Command server starts the Sokoni payment guard API.
//
// Usage:
//
//	go run ./cmd/server [flags]
//
// Flags:
//
//	-seed  Path to a seed traffic JSON file to replay on startup (default: data/seed.json)
//
// All other settings come from the environment; see internal/config.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rs/cors"

	"sokoni/payguard/internal/analysis"
	"sokoni/payguard/internal/api"
	"sokoni/payguard/internal/config"
	"sokoni/payguard/internal/domain"
	"sokoni/payguard/internal/events"
	"sokoni/payguard/internal/guard"
	"sokoni/payguard/internal/providers"
	"sokoni/payguard/internal/ratelimit"
	"sokoni/payguard/internal/risk"
	"sokoni/payguard/internal/signature"
)

func main() {
	seedFile := flag.String("seed", "data/seed.json", "path to seed traffic JSON file")
	flag.Parse()

	// Structured logging for the whole process.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Wire dependencies ─────────────────────────────────────────────────────
	store := events.New()
	for _, ip := range cfg.Risk.SuspiciousIPs {
		store.AddSuspiciousIP(ip, "seeded from configuration")
	}

	directory := providers.New()

	limiter := ratelimit.New(ratelimit.RulesFromConfig(
		cfg.RateLimit.AuthLimit, cfg.RateLimit.AuthWindowSeconds,
		cfg.RateLimit.PaymentLimit, cfg.RateLimit.PaymentWindowSeconds,
		cfg.RateLimit.WebhookLimit, cfg.RateLimit.WebhookWindowSeconds,
		cfg.RateLimit.GeneralLimit, cfg.RateLimit.GeneralWindowSeconds,
	), store)
	go limiter.StartSweeper(ctx, logger, 5*time.Minute)

	verifier := signature.New(
		cfg.Webhook.Secrets,
		time.Duration(cfg.Webhook.ReplayToleranceSeconds)*time.Second,
		store,
	)

	scorer := risk.New(store, risk.Config{
		LargeAmount:   cfg.Risk.LargeAmount,
		VarianceRatio: cfg.Risk.VarianceRatio,
	})

	worker := analysis.New(logger, store, 256)
	go worker.Start(ctx)

	g := guard.New(limiter, directory, scorer, verifier, store, worker, guard.Config{
		DailyAmountCap:   cfg.Risk.DailyAmountCap,
		ReviewETAMinutes: cfg.Risk.ReviewETAMinutes,
	}, logger)

	handler := api.NewHandler(g, store, directory)
	router := api.NewRouter(handler)

	// The storefront frontend calls this API cross-origin.
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	})

	// ── Replay seed traffic ───────────────────────────────────────────────────
	if err := replaySeedTraffic(g, *seedFile); err != nil {
		// Non-fatal: the API works fine without seed history.
		logger.Warn("seed traffic not replayed", "file", *seedFile, "reason", err.Error())
	}

	// ── Start HTTP server ─────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      c.Handler(router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server listening", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down...")
	cancel() // stops the sweeper and the analysis worker

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

// replaySeedTraffic reads a JSON file of payment attempts and runs each one
// through the guard so the API starts with historical context for the
// velocity and duplicate factors.
func replaySeedTraffic(g *guard.Guard, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	var attempts []domain.PaymentAttempt
	if err := json.Unmarshal(data, &attempts); err != nil {
		return err
	}

	// Replay in chronological order so velocity factors fire the way they
	// would have in real-time operation.
	sort.Slice(attempts, func(i, j int) bool {
		return attempts[i].Timestamp.Before(attempts[j].Timestamp)
	})

	counts := make(map[string]int)
	for i := range attempts {
		d := g.CheckPayment(&attempts[i])
		counts[d.Status]++
	}

	slog.Info("seed traffic replayed",
		"file", filePath,
		"attempts", len(attempts),
		"approved", counts[domain.StatusApproved],
		"challenged", counts[domain.StatusChallenged],
		"rejected", counts[domain.StatusRejected],
	)
	return nil
}
