package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PageSnapshot is a persisted capture, written only when content change is
// detected (spec §3, PageSnapshot).
type PageSnapshot struct {
	ID                int64
	PageID            int64
	SnapshotTimestamp time.Time
	OSSPath           string
	ContentHash       string
	CleanHash         string
	CreatedAt         time.Time
}

const snapshotColumns = `id, page_id, snapshot_timestamp, oss_path, content_hash, clean_hash, created_at`

func scanSnapshot(row interface{ Scan(...any) error }) (PageSnapshot, error) {
	var sn PageSnapshot
	err := row.Scan(&sn.ID, &sn.PageID, &sn.SnapshotTimestamp, &sn.OSSPath,
		&sn.ContentHash, &sn.CleanHash, &sn.CreatedAt)
	return sn, err
}

// UpsertSnapshot inserts a PageSnapshot, silently doing nothing if a row
// with the same (page_id, clean_hash) already exists — the logical dedup
// constraint backing the effectively-once snapshot guarantee (spec §4.3).
// Returns the existing or newly created row.
func UpsertSnapshot(ctx context.Context, tx *sql.Tx, pageID int64, snapshotTS time.Time, ossPath, contentHash, cleanHash string) (PageSnapshot, error) {
	row := tx.QueryRowContext(ctx, `
		INSERT INTO page_snapshot (page_id, snapshot_timestamp, oss_path, content_hash, clean_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (page_id, clean_hash) DO NOTHING
		RETURNING `+snapshotColumns,
		pageID, snapshotTS, ossPath, contentHash, cleanHash)
	sn, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		// Conflict hit: a snapshot for this (page_id, clean_hash) already
		// exists. Fetch it so the caller still gets a usable row.
		return getSnapshotByPageAndCleanHash(ctx, tx, pageID, cleanHash)
	}
	if err != nil {
		return PageSnapshot{}, fmt.Errorf("store: upsert snapshot: %w", err)
	}
	return sn, nil
}

func getSnapshotByPageAndCleanHash(ctx context.Context, tx *sql.Tx, pageID int64, cleanHash string) (PageSnapshot, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM page_snapshot WHERE page_id = $1 AND clean_hash = $2`,
		pageID, cleanHash)
	sn, err := scanSnapshot(row)
	if err != nil {
		return PageSnapshot{}, fmt.Errorf("store: fetch existing snapshot: %w", err)
	}
	return sn, nil
}

// ListSnapshotsByPage returns every snapshot for a page, newest first.
// Used by tests asserting P2 (snapshot dedup).
func (s *Store) ListSnapshotsByPage(ctx context.Context, pageID int64) ([]PageSnapshot, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM page_snapshot WHERE page_id = $1 ORDER BY snapshot_timestamp DESC`,
		pageID)
	if err != nil {
		return nil, fmt.Errorf("store: list snapshots: %w", err)
	}
	defer rows.Close()

	var out []PageSnapshot
	for rows.Next() {
		sn, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list snapshots: scan: %w", err)
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}
