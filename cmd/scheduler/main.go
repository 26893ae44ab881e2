// Command talemon-scheduler runs Talemon's scheduler tick loop: zombie
// reclamation, candidate selection, per-domain admission, and dispatch
// (spec §4.2). Workers may be deployed separately and race the same table
// independently, so this binary carries no JobSink wiring of its own.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hazyhaar/talemon/internal/config"
	"github.com/hazyhaar/talemon/internal/observability"
	"github.com/hazyhaar/talemon/internal/ratelimit"
	"github.com/hazyhaar/talemon/internal/scheduler"
	"github.com/hazyhaar/talemon/internal/store"
)

func main() {
	configPath := flag.String("config", "talemon.yaml", "path to Talemon config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	log := observability.NewLogger(*logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, *configPath); err != nil {
		log.Error("scheduler: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, configPath string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}

	s, err := store.Open(cfg.Store.DSN, cfg.Store.MaxOpenConns, cfg.Store.MaxIdleConns)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := store.ApplySchema(ctx, s.DB); err != nil {
		return err
	}

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window)

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	obsSrv := observability.NewServer(cfg.Health.Addr, reg, s.DB, log)
	go func() {
		if err := obsSrv.Start(ctx); err != nil {
			log.Error("scheduler: observability server", "error", err)
		}
	}()

	sched := scheduler.New(s, limiter, nil, scheduler.Config{
		ZombieTimeout: cfg.Scheduler.ZombieTimeout,
		TickInterval:  cfg.Scheduler.TickInterval,
		BatchSize:     cfg.Scheduler.BatchSize,
	}, log, metrics)

	log.Info("scheduler starting", "tick_interval", cfg.Scheduler.TickInterval)
	sched.Run(ctx)
	return nil
}
