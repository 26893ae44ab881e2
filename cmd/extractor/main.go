// Command talemon-extractor drains the State Store's extraction backlog
// (spec §4.4): snapshots with no PageInfo row yet under the configured
// extractor version get their artifacts downloaded and run through the
// default structural extraction Func.
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
	"github.com/hazyhaar/talemon/internal/extractor"
	"github.com/hazyhaar/talemon/internal/objstore"
	"github.com/hazyhaar/talemon/internal/observability"
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
		log.Error("extractor: fatal", "error", err)
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

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	obsSrv := observability.NewServer(cfg.Health.Addr, reg, s.DB, log)
	go func() {
		if err := obsSrv.Start(ctx); err != nil {
			log.Error("extractor: observability server", "error", err)
		}
	}()

	ex := extractor.New(s, objs, extractor.DefaultFunc, extractor.Config{
		Version:      cfg.Extractor.Version,
		BatchSize:    cfg.Extractor.BatchSize,
		PollInterval: cfg.Extractor.PollInterval,
	}, log, metrics)

	log.Info("extractor starting", "version", cfg.Extractor.Version)
	return ex.Run(ctx)
}
