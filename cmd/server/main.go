package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gyaneshwarpardhi/trackrelay/internal/api"
	"github.com/gyaneshwarpardhi/trackrelay/internal/config"
	"github.com/gyaneshwarpardhi/trackrelay/internal/engine"
	"github.com/gyaneshwarpardhi/trackrelay/internal/rate"
	"github.com/gyaneshwarpardhi/trackrelay/internal/session"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	cfgPath := flag.String("config", "configs/tracking.yaml", "Path to tracking YAML config")
	envFile := flag.String("env-file", "", "Optional .env file with TRACKING_* tokens")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	tokens, err := config.LoadTokens(envFiles...)
	if err != nil {
		slog.Error("failed to load tokens", "err", err)
		os.Exit(1)
	}
	slog.Info("tracking backends",
		"ga4", tokens.GA4ID != "",
		"mixpanel", tokens.MixpanelToken != "",
		"pixel", tokens.MetaID != "",
		"bugsnag", tokens.BugsnagAPIKey != "",
		"environment", tokens.Environment,
	)

	// ── Sessions ──────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cg := cfg.Backends.Coingecko
	rates := rate.NewCoingecko(cg.Endpoint, &http.Client{Timeout: time.Duration(cg.TimeoutMs) * time.Millisecond})
	sessions := session.NewManager(cfg, tokens, rates, session.HTTPBackends(&http.Client{}))
	go sessions.Run(ctx)

	// ── Engine ────────────────────────────────────────────────────────────────
	eng := engine.New(ctx, cfg.Engine)

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		if err := config.Validate(newCfg); err != nil {
			slog.Warn("hot-reload skipped: config invalid", "err", err)
			return
		}
		sessions.SwapConfig(newCfg)
		slog.Info("config hot-reloaded, applies to new sessions", "version", newCfg.Version)
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         *addr,
		Handler:      api.New(eng, sessions),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	eng.Shutdown() // track what is still queued
	cancel()       // stop the sweeper
	sessions.CloseAll()
	slog.Info("goodbye")
}
