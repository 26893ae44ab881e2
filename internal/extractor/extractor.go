// Package extractor implements Talemon's extraction stage (spec §4.4): it
// polls the State Store for snapshots with no PageInfo row yet under a
// given extractor version, downloads each snapshot's artifacts from the
// Object Store, runs a pluggable Func over them, and persists the result
// exactly once per (snapshot_id, extractor_version).
package extractor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hazyhaar/talemon/internal/idgen"
	"github.com/hazyhaar/talemon/internal/objstore"
	"github.com/hazyhaar/talemon/internal/observability"
	"github.com/hazyhaar/talemon/internal/store"
)

// Config controls the extractor's poll loop.
type Config struct {
	// Version identifies this extractor's output; changing it causes the
	// extractor to reprocess every snapshot from scratch rather than
	// colliding with a prior version's rows.
	Version string
	// BatchSize bounds how many snapshots PendingExtraction returns per
	// poll.
	BatchSize int
	// PollInterval is how long the loop sleeps after an empty batch.
	PollInterval time.Duration
}

func (c *Config) defaults() {
	if c.Version == "" {
		c.Version = "v1"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
}

// Extractor drains the State Store's extraction backlog for one extractor
// version.
type Extractor struct {
	store   *store.Store
	objs    objstore.Store
	fn      Func
	cfg     Config
	log     *slog.Logger
	metrics *observability.Metrics
}

// New builds an Extractor. fn is the extraction routine run against each
// pending snapshot's artifacts. metrics may be nil, in which case
// extraction outcomes are logged but not published to Prometheus.
func New(s *store.Store, objs objstore.Store, fn Func, cfg Config, log *slog.Logger, metrics *observability.Metrics) *Extractor {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{store: s, objs: objs, fn: fn, cfg: cfg, log: log, metrics: metrics}
}

// Run polls until ctx is cancelled, sleeping PollInterval whenever a poll
// finds nothing to do.
func (e *Extractor) Run(ctx context.Context) error {
	e.log.Info("extractor starting", "version", e.cfg.Version, "batch_size", e.cfg.BatchSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := e.pollOnce(ctx)
		if err != nil {
			e.log.Error("extractor: poll", "error", err)
		}
		if n > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.PollInterval):
		}
	}
}

// pollOnce runs a single extraction batch (spec §4.4 steps 1-2) and
// returns how many snapshots it attempted, so Run can decide whether to
// keep draining the backlog without sleeping.
func (e *Extractor) pollOnce(ctx context.Context) (int, error) {
	pending, err := e.store.PendingExtraction(ctx, e.cfg.Version, e.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("extractor: list pending: %w", err)
	}
	for _, u := range pending {
		if err := e.extractOne(ctx, u); err != nil {
			e.log.Error("extractor: extract snapshot", "snapshot_id", u.Snapshot.ID, "error", err)
		}
	}
	return len(pending), nil
}

// extractOne downloads one snapshot's artifact set, runs the extraction
// function, and inserts the result. InsertInfo's ON CONFLICT DO NOTHING
// makes this safe to race against another extractor instance working the
// same snapshot (spec §4.4 step 2, P7): whichever insert lands first wins,
// the loser's work is simply discarded.
func (e *Extractor) extractOne(ctx context.Context, u store.UnextractedSnapshot) error {
	runID := idgen.Prefixed("ext_", idgen.Default)()
	log := e.log.With("run_id", runID, "snapshot_id", u.Snapshot.ID, "page_url", u.PageURL)

	artifacts, err := e.download(ctx, u.Snapshot)
	if err != nil {
		return fmt.Errorf("download artifacts: %w", err)
	}

	data, err := e.fn(ctx, artifacts)
	if err != nil {
		return fmt.Errorf("run extractor func: %w", err)
	}

	if err := e.store.InsertInfo(ctx, u.Snapshot.ID, e.cfg.Version, data); err != nil {
		return fmt.Errorf("insert info: %w", err)
	}
	if e.metrics != nil {
		e.metrics.SnapshotsExtracted.WithLabelValues(e.cfg.Version).Inc()
	}
	log.Debug("extractor: snapshot extracted")
	return nil
}

func (e *Extractor) download(ctx context.Context, sn store.PageSnapshot) (Artifacts, error) {
	dom, err := e.getArtifact(ctx, sn.OSSPath+objstore.ArtifactCleanedDOM)
	if err != nil {
		return Artifacts{}, err
	}
	raw, err := e.getArtifact(ctx, sn.OSSPath+objstore.ArtifactRawHTML)
	if err != nil {
		return Artifacts{}, err
	}
	mhtml, err := e.getArtifact(ctx, sn.OSSPath+objstore.ArtifactMHTML)
	if err != nil {
		return Artifacts{}, err
	}
	shot, err := e.getArtifact(ctx, sn.OSSPath+objstore.ArtifactScreenshot)
	if err != nil {
		return Artifacts{}, err
	}

	total := uint64(len(dom) + len(raw) + len(mhtml) + len(shot))
	e.log.Debug("extractor: artifacts downloaded", "snapshot_id", sn.ID, "size", humanize.Bytes(total))

	return Artifacts{CleanedDOM: dom, RawHTML: raw, MHTML: mhtml, Screenshot: shot}, nil
}

func (e *Extractor) getArtifact(ctx context.Context, key string) ([]byte, error) {
	rc, err := e.objs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
