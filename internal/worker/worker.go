// Package worker implements Talemon's capture protocol (spec §4.3): given
// a leased Page, drive the browser, fingerprint the response, decide
// whether content changed, and commit the outcome atomically against the
// State Store and Object Store.
package worker

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/talemon/internal/browser"
	"github.com/hazyhaar/talemon/internal/fingerprint"
	"github.com/hazyhaar/talemon/internal/objstore"
	"github.com/hazyhaar/talemon/internal/observability"
	"github.com/hazyhaar/talemon/internal/ratelimit"
	"github.com/hazyhaar/talemon/internal/store"
)

// Config configures the worker's own dispatch loop and capture timeouts.
type Config struct {
	HeartbeatInterval time.Duration
	PageTimeout       time.Duration
	BatchSize         int
	Concurrency       int
	PollInterval      time.Duration
}

func (c *Config) defaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 60 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
}

// Worker runs the capture protocol against leased pages. It can be driven
// either by feeding it pages a scheduler already dispatched (ProcessPage)
// or, when run standalone, by its own Run loop performing the same
// select/admit/dispatch steps a scheduler would (spec §4.2: "workers may
// independently perform steps 2–4 against the same table").
type Worker struct {
	cfg     Config
	store   *store.Store
	objs    objstore.Store
	driver  browser.Driver
	fpCfg   fingerprint.Config
	limiter *ratelimit.Limiter
	log     *slog.Logger
	metrics *observability.Metrics
}

// New builds a Worker. limiter may be nil if the worker only ever
// processes pages a scheduler has already dispatched. metrics may be nil,
// in which case capture outcomes are logged but not published to
// Prometheus.
func New(cfg Config, s *store.Store, objs objstore.Store, driver browser.Driver, fpCfg fingerprint.Config, limiter *ratelimit.Limiter, log *slog.Logger, metrics *observability.Metrics) *Worker {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	return &Worker{cfg: cfg, store: s, objs: objs, driver: driver, fpCfg: fpCfg, limiter: limiter, log: log, metrics: metrics}
}

// Run polls for admissible candidates and processes them until ctx is
// cancelled, bounding concurrent captures to cfg.Concurrency.
func (w *Worker) Run(ctx context.Context) error {
	sem := make(chan struct{}, w.cfg.Concurrency)
	var wg sync.WaitGroup
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			pages, err := w.dispatchBatch(ctx)
			if err != nil {
				w.log.Error("worker: dispatch batch failed", "error", err)
				continue
			}
			for _, p := range pages {
				p := p
				sem <- struct{}{}
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer func() { <-sem }()
					if err := w.ProcessPage(ctx, p); err != nil {
						w.log.Error("worker: process page failed", "page_id", p.ID, "url", p.URL, "error", err)
					}
				}()
			}
		}
	}
}

// dispatchBatch selects and admits due pages exactly as the scheduler
// does, for standalone operation without a separate scheduler process
// (spec §4.2 steps 2–4).
func (w *Worker) dispatchBatch(ctx context.Context) ([]store.Page, error) {
	var dispatched []store.Page
	err := store.RunTx(ctx, w.store.DB, func(tx *sql.Tx) error {
		candidates, err := w.store.SelectCandidates(ctx, tx, w.cfg.BatchSize)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			if w.limiter != nil && !w.limiter.Admit(c.Domain) {
				if w.metrics != nil {
					w.metrics.RateLimitRejected.WithLabelValues(c.Domain).Inc()
				}
				continue
			}
			if err := w.store.Dispatch(ctx, tx, c.ID); err != nil {
				return err
			}
			dispatched = append(dispatched, c)
		}
		return nil
	})
	if w.metrics != nil && len(dispatched) > 0 {
		w.metrics.PagesDispatched.Add(float64(len(dispatched)))
	}
	return dispatched, err
}
