package worker

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hazyhaar/talemon/internal/browser"
	"github.com/hazyhaar/talemon/internal/fingerprint"
	"github.com/hazyhaar/talemon/internal/idgen"
	"github.com/hazyhaar/talemon/internal/objstore"
	"github.com/hazyhaar/talemon/internal/store"
)

// ProcessPage runs the full capture protocol (spec §4.3) against an
// already-leased page: heartbeat, fetch, HTTP gate, fingerprint, change
// decision, commit. It assumes page.Status is already PROCESSING with a
// fresh heartbeat — the caller (a scheduler or the worker's own dispatch
// loop) is responsible for the lease transition.
func (w *Worker) ProcessPage(ctx context.Context, page store.Page) error {
	attemptID := idgen.Prefixed("cap_", idgen.Default)()
	log := w.log.With("attempt_id", attemptID, "page_id", page.ID, "url", page.URL)

	hb := startHeartbeat(ctx, w.store, page.ID, w.cfg.HeartbeatInterval, log)
	defer hb.Stop()

	captureCtx, cancel := context.WithTimeout(ctx, w.cfg.PageTimeout)
	defer cancel()

	log.Debug("worker: capture attempt starting")
	captureStart := time.Now()
	capt, err := w.driver.Capture(captureCtx, page.URL)
	if w.metrics != nil {
		w.metrics.CaptureDuration.Observe(time.Since(captureStart).Seconds())
	}
	if err != nil {
		// Hard navigation failure: leave the lease in place. The
		// heartbeat will stop when this function returns, and the
		// scheduler's zombie reaper reclaims it after T_zombie (spec
		// §4.3 "Failure semantics").
		return fmt.Errorf("worker: capture %s: %w", page.URL, err)
	}

	if capt.HTTPStatus < 200 || capt.HTTPStatus >= 300 {
		return w.completeHTTPGateFailure(ctx, page, capt.HTTPStatus, "")
	}

	result, err := fingerprint.Compute(capt.RawHTML, w.fpCfg)
	if err != nil {
		return fmt.Errorf("worker: fingerprint %s: %w", page.URL, err)
	}

	now := time.Now()

	if page.LastCleanHash.Valid && page.LastCleanHash.String == result.CleanHash {
		return w.completeUnchanged(ctx, page, result, now)
	}
	return w.completeChanged(ctx, page, result, capt, now)
}

// completeHTTPGateFailure handles spec §4.3 step 3: a non-2xx navigation
// outcome is a normal terminal path, not a retryable failure.
func (w *Worker) completeHTTPGateFailure(ctx context.Context, page store.Page, httpStatus int, errMsg string) error {
	err := store.RunTx(ctx, w.store.DB, func(tx *sql.Tx) error {
		m := store.PageMonitor{
			PageID:           page.ID,
			MonitorTimestamp: time.Now(),
			ChangeDetected:   false,
			HTTPStatus:       sql.NullInt32{Int32: int32(httpStatus), Valid: true},
		}
		if errMsg != "" {
			m.ErrorMessage = sql.NullString{String: errMsg, Valid: true}
		}
		if err := store.InsertMonitor(ctx, tx, m); err != nil {
			return err
		}
		return w.store.ReleaseLease(ctx, tx, page.ID)
	})
	if err == nil && w.metrics != nil {
		w.metrics.MonitorsRecorded.WithLabelValues("http_failure").Inc()
	}
	return err
}

// completeUnchanged handles spec §4.3 step 5A: content is unchanged, OS
// is not touched, only an audit row is written.
func (w *Worker) completeUnchanged(ctx context.Context, page store.Page, result fingerprint.Result, now time.Time) error {
	err := store.RunTx(ctx, w.store.DB, func(tx *sql.Tx) error {
		m := store.PageMonitor{
			PageID:           page.ID,
			MonitorTimestamp: now,
			ContentHash:      sql.NullString{String: result.ContentHash, Valid: true},
			CleanHash:        sql.NullString{String: result.CleanHash, Valid: true},
			ChangeDetected:   false,
		}
		if err := store.InsertMonitor(ctx, tx, m); err != nil {
			return err
		}
		return w.store.CompleteCheck(ctx, tx, page.ID, result.CleanHash)
	})
	if err == nil && w.metrics != nil {
		w.metrics.MonitorsRecorded.WithLabelValues("unchanged").Inc()
	}
	return err
}

// completeChanged handles spec §4.3 step 5B: upload the full artifact set
// to the Object Store (write-ahead), then in a single SS transaction
// upsert the snapshot and write an audit row (P4: OS precedes SS).
func (w *Worker) completeChanged(ctx context.Context, page store.Page, result fingerprint.Result, capt browser.Capture, now time.Time) error {
	dir := objstore.SnapshotDir(page.Hash, now)
	artifacts := map[string][]byte{
		objstore.ArtifactCleanedDOM: result.CleanedDOM,
		objstore.ArtifactRawHTML:    capt.RawHTML,
		objstore.ArtifactMHTML:      capt.MHTML,
		objstore.ArtifactScreenshot: capt.Screenshot,
	}
	var total uint64
	for name, data := range artifacts {
		key := dir + name
		if err := w.objs.Put(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
			return fmt.Errorf("worker: upload %s: %w", key, err)
		}
		total += uint64(len(data))
	}
	w.log.Debug("worker: artifact set uploaded", "page_id", page.ID, "dir", dir, "size", humanize.Bytes(total))

	err := store.RunTx(ctx, w.store.DB, func(tx *sql.Tx) error {
		_, err := store.UpsertSnapshot(ctx, tx, page.ID, now, dir, result.ContentHash, result.CleanHash)
		if err != nil {
			return err
		}
		m := store.PageMonitor{
			PageID:           page.ID,
			MonitorTimestamp: now,
			ContentHash:      sql.NullString{String: result.ContentHash, Valid: true},
			CleanHash:        sql.NullString{String: result.CleanHash, Valid: true},
			ChangeDetected:   true,
		}
		if err := store.InsertMonitor(ctx, tx, m); err != nil {
			return err
		}
		return w.store.CompleteCheck(ctx, tx, page.ID, result.CleanHash)
	})
	if err == nil && w.metrics != nil {
		w.metrics.SnapshotsWritten.Inc()
		w.metrics.MonitorsRecorded.WithLabelValues("changed").Inc()
	}
	return err
}
