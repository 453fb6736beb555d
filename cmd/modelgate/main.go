// Package main is the entry point for the modelgate server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"modelgate/config"
	"modelgate/internal/catalog"
	"modelgate/internal/health"
	"modelgate/internal/logging"
	"modelgate/internal/observability"
	"modelgate/internal/ratelimit"
	"modelgate/internal/server"
	"modelgate/internal/upstream"
	"modelgate/internal/usage"
	"modelgate/internal/validate"
	"modelgate/internal/version"
)

const shutdownGracePeriod = 30 * time.Second

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Structured logging: JSON in production, console lines in development
	var logger *slog.Logger
	if cfg.Server.Development() {
		logger = slog.New(logging.NewConsoleHandler(os.Stdout))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	slog.SetDefault(logger)

	logger.Info("starting modelgate",
		"version", version.Version,
		"commit", version.Commit,
		"environment", cfg.Server.Environment,
	)

	// Fail fast on any configuration violation before serving traffic
	if violations := cfg.Validate(); len(violations) > 0 {
		for _, v := range violations {
			logger.Error("invalid configuration", "violation", v)
		}
		os.Exit(1)
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.New(nil)
		logger.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	}

	cat := catalog.New(cfg.Models.Chat, cfg.Models.Embeddings)
	client := upstream.New(cfg.Upstream)
	probe := health.New(client, cfg.Upstream.HealthTimeout)
	limiter := ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Close()

	var recorder usage.Recorder = usage.NopRecorder{}
	if cfg.Usage.Enabled {
		recorder = usage.NewAsyncRecorder(logger, metrics, cfg.Usage.BufferSize)
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Error("failed to close usage recorder", "error", err)
		}
	}()

	handler := server.NewHandler(server.HandlerConfig{
		Upstream:          client,
		Validator:         validate.New(cat, cfg.Limits),
		Catalog:           cat,
		Recorder:          recorder,
		Probe:             probe,
		Metrics:           metrics,
		Logger:            logger,
		Development:       cfg.Server.Development(),
		StreamMaxDuration: cfg.Upstream.StreamMaxDuration,
		StreamIdleTimeout: cfg.Upstream.StreamIdleTimeout,
	})

	srv := server.New(handler, &server.Config{
		BodySizeLimit:   cfg.Server.BodySizeLimit,
		RateLimiter:     limiter,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
	})

	// Graceful shutdown: stop accepting, give in-flight requests a bounded
	// grace period, then force close.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	logger.Info("listening", "address", addr, "upstream", cfg.Upstream.BaseURL)

	if err := srv.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("server stopped gracefully")
		} else {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}
}
