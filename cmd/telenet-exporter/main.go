package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/raterudder/telenet-exporter/pkg/exporter"
	"github.com/raterudder/telenet-exporter/pkg/log"
	"github.com/raterudder/telenet-exporter/pkg/telemetry"
	"github.com/raterudder/telenet-exporter/pkg/telenet"
)

func main() {
	// init packages
	tc := telenet.Configured()
	ec := exporter.Configured()
	otc := telemetry.Configured()

	// parse flags
	lflag.Configure()

	// lflag automatically sets llog's level, but we need to set the slog level
	level, err := log.LevelFromLLog()
	if err != nil {
		panic(err)
	}
	log.SetDefaultLogLevel(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	log.Ctx(ctx).DebugContext(ctx, "logger configured", slog.String("level", level.String()))

	if err := tc.Validate(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	shutdownTracing, err := telemetry.Setup(ctx, otc)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to set up tracing", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Ctx(shutdownCtx).WarnContext(shutdownCtx, "failed to flush traces", slog.Any("error", err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := exporter.NewCollector()
	reg.MustRegister(metrics)

	registry := exporter.NewMemoryRegistry()
	poller := exporter.NewPoller(func() (exporter.Fetcher, error) {
		return tc.NewClient()
	}, registry, metrics, ec.PollInterval)
	srv := exporter.NewServer(ec.ListenAddr, poller, registry, reg)

	// Run will block until context is canceled or error happens
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Run(ctx)
	})
	g.Go(func() error {
		return srv.Run(ctx)
	})
	if err := g.Wait(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "exporter failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "exporter exited cleanly")
}
