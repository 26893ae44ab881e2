// Command talemon-worker drives the browser capture protocol against
// leased pages (spec §4.3). It performs its own select/admit/dispatch
// cycle against the State Store (spec §4.2 step 4) and races any
// separately deployed scheduler for the same table; this binary has no
// JobSink wiring of its own.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hazyhaar/talemon/internal/browser"
	"github.com/hazyhaar/talemon/internal/config"
	"github.com/hazyhaar/talemon/internal/fingerprint"
	"github.com/hazyhaar/talemon/internal/objstore"
	"github.com/hazyhaar/talemon/internal/observability"
	"github.com/hazyhaar/talemon/internal/ratelimit"
	"github.com/hazyhaar/talemon/internal/store"
	"github.com/hazyhaar/talemon/internal/worker"
)

func main() {
	configPath := flag.String("config", "talemon.yaml", "path to Talemon config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	log := observability.NewLogger(*logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, *configPath); err != nil {
		log.Error("worker: fatal", "error", err)
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

	objs, err := objstore.NewS3Store(ctx, objstore.S3Config{
		Bucket:   cfg.Objstore.Bucket,
		Region:   cfg.Objstore.Region,
		Endpoint: cfg.Objstore.Endpoint,
	})
	if err != nil {
		return err
	}

	driver, err := browser.NewRodDriver(browser.Config{
		Remote:           cfg.Browser.Remote,
		ProfileDir:       cfg.Browser.ProfileDir,
		Extensions:       cfg.Browser.Extensions,
		MemoryLimit:      cfg.Browser.MemoryLimit,
		RecycleInterval:  cfg.Browser.RecycleInterval,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Stealth:          cfg.Browser.Stealth,
		Logger:           log,
	})
	if err != nil {
		return err
	}
	defer driver.Close()

	fpCfg := fingerprint.DefaultConfig()
	if len(cfg.Hasher.StripTags) > 0 {
		fpCfg.StripTags = cfg.Hasher.StripTags
	}
	if len(cfg.Hasher.AdSelectors) > 0 {
		fpCfg.AdSelectors = cfg.Hasher.AdSelectors
	}
	if len(cfg.Hasher.ExtractAttrs) > 0 {
		fpCfg.ExtractAttrs = cfg.Hasher.ExtractAttrs
	}

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window)

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	obsSrv := observability.NewServer(cfg.Health.Addr, reg, s.DB, log)
	go func() {
		if err := obsSrv.Start(ctx); err != nil {
			log.Error("worker: observability server", "error", err)
		}
	}()

	w := worker.New(worker.Config{
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
		PageTimeout:       cfg.Worker.PageTimeout,
		BatchSize:         cfg.Worker.BatchSize,
		Concurrency:       cfg.Worker.Concurrency,
	}, s, objs, driver, fpCfg, limiter, log, metrics)

	log.Info("worker starting", "concurrency", cfg.Worker.Concurrency)
	return w.Run(ctx)
}
