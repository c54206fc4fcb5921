// Command wordloc serves three-word location sessions over HTTP and a
// websocket stream, publishing location changes to the configured sink.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/wordloc/internal/adapter/http"
	"github.com/couchcryptid/wordloc/internal/app"
	"github.com/couchcryptid/wordloc/internal/config"
	"github.com/couchcryptid/wordloc/internal/locate"
	"github.com/couchcryptid/wordloc/internal/observability"
	"github.com/couchcryptid/wordloc/internal/pipeline"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	aggregator := app.BuildAggregator(cfg, logger, metrics)
	logger.Info("geocoding providers registered", "providers", aggregator.Providers())

	loader, err := app.NewLoader(cfg, logger)
	if err != nil {
		logger.Error("failed to create location sink", "error", err)
		os.Exit(1)
	}

	checks := []sharedobs.ReadinessChecker{aggregator}
	var publisher locate.Publisher
	var p *pipeline.Pipeline
	if loader != nil {
		queue := pipeline.NewQueue(cfg.QueueSize, cfg.BatchFlushInterval, clock, logger, metrics)
		p = pipeline.New(queue, pipeline.NewTransformer(), loader, logger, metrics, cfg.BatchSize)
		publisher = queue
		checks = append(checks, p)
	}

	hub := httpadapter.NewHub(cfg.CORSOrigins, logger)
	opts := app.SessionOptions(cfg)
	registry := locate.NewRegistry(func(id string) *locate.Session {
		return locate.NewSession(id, aggregator, hub.View(id), publisher, opts, logger, metrics)
	}, cfg.SessionTTL, clock, logger, metrics)
	registry.OnExpire(hub.CloseSession)

	api := httpadapter.NewAPI(aggregator, registry, hub, cfg.ZoomLevel, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, api, httpadapter.AllReady(checks...), cfg.CORSOrigins, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	go registry.Run(ctx)

	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		if p == nil {
			return
		}
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-pipelineDone:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	if loader != nil {
		if err := loader.Close(); err != nil {
			logger.Error("location sink close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
