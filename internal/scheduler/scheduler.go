// Package scheduler implements Talemon's scheduler tick (spec §4.2): zombie
// reclamation, candidate selection with FOR UPDATE SKIP LOCKED, per-domain
// rate admission, and dispatch to PROCESSING. It runs as a long-lived
// ticker loop independent of the worker process — "visible" is realized
// either by direct in-process handoff (JobSink) or by workers
// independently racing the same table.
package scheduler

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/hazyhaar/talemon/internal/observability"
	"github.com/hazyhaar/talemon/internal/ratelimit"
	"github.com/hazyhaar/talemon/internal/store"
)

// Config configures one scheduler tick.
type Config struct {
	ZombieTimeout time.Duration
	TickInterval  time.Duration
	BatchSize     int
}

func (c *Config) defaults() {
	if c.ZombieTimeout <= 0 {
		c.ZombieTimeout = 5 * time.Minute
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 15 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
}

// JobSink receives a dispatched page for in-process handoff to a worker.
// Schedulers that share an address space with their workers use this;
// schedulers deployed separately from workers may pass a no-op sink,
// relying on workers to independently race the same table (spec §4.2
// step 4).
type JobSink func(ctx context.Context, page store.Page) error

// Scheduler runs the zombie-reclaim / select / admit / dispatch tick.
type Scheduler struct {
	store   *store.Store
	limiter *ratelimit.Limiter
	sink    JobSink
	cfg     Config
	log     *slog.Logger
	metrics *observability.Metrics
}

// New builds a Scheduler. sink may be nil if dispatched pages are picked
// up by workers polling the same table independently. metrics may be nil,
// in which case tick outcomes are logged but not published to Prometheus.
func New(s *store.Store, limiter *ratelimit.Limiter, sink JobSink, cfg Config, log *slog.Logger, metrics *observability.Metrics) *Scheduler {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{store: s, limiter: limiter, sink: sink, cfg: cfg, log: log, metrics: metrics}
}

// Run executes one tick immediately, then repeats every TickInterval
// until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick performs one scheduler cycle: reclaim, select, admit, dispatch
// (spec §4.2). It is idempotent — a tick that crashes mid-way leaves no
// partial side effects beyond rows already committed, and the next tick
// redoes the same work without duplication (reclamation is set-based;
// dispatch uses row locks released on transaction commit).
func (s *Scheduler) tick(ctx context.Context) {
	reclaimed, err := s.store.ReclaimZombies(ctx, s.cfg.ZombieTimeout)
	if err != nil {
		s.log.Error("scheduler: reclaim zombies", "error", err)
	} else if reclaimed > 0 {
		s.log.Info("scheduler: reclaimed zombie leases", "count", reclaimed)
		if s.metrics != nil {
			s.metrics.ZombiesReclaimed.Add(float64(reclaimed))
		}
	}

	dispatched, err := s.dispatchBatch(ctx)
	if err != nil {
		s.log.Error("scheduler: dispatch batch", "error", err)
		return
	}
	if len(dispatched) == 0 {
		return
	}
	s.log.Debug("scheduler: dispatched", "count", len(dispatched))

	if s.sink == nil {
		return
	}
	for _, p := range dispatched {
		if err := s.sink(ctx, p); err != nil {
			s.log.Warn("scheduler: sink rejected page", "page_id", p.ID, "error", err)
		}
	}
}

func (s *Scheduler) dispatchBatch(ctx context.Context) ([]store.Page, error) {
	var dispatched []store.Page
	err := store.RunTx(ctx, s.store.DB, func(tx *sql.Tx) error {
		candidates, err := s.store.SelectCandidates(ctx, tx, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			if s.limiter != nil && !s.limiter.Admit(c.Domain) {
				if s.metrics != nil {
					s.metrics.RateLimitRejected.WithLabelValues(c.Domain).Inc()
				}
				continue
			}
			if err := s.store.Dispatch(ctx, tx, c.ID); err != nil {
				return err
			}
			dispatched = append(dispatched, c)
		}
		return nil
	})
	if s.metrics != nil && len(dispatched) > 0 {
		s.metrics.PagesDispatched.Add(float64(len(dispatched)))
	}
	return dispatched, err
}
