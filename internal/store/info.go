package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PageInfo is an extractor's structured output for a snapshot (spec §3,
// PageInfo).
type PageInfo struct {
	ID               int64
	SnapshotID       int64
	ExtractorVersion string
	Data             []byte // raw JSON document
	CreatedAt        time.Time
}

// UnextractedSnapshot is a row returned by PendingExtraction: a snapshot
// together with the hash and URL of the page it belongs to. The extractor
// locates OS artifacts through Snapshot.OSSPath and uses PageURL for
// logging.
type UnextractedSnapshot struct {
	Snapshot PageSnapshot
	PageHash string
	PageURL  string
}

// PendingExtraction returns up to limit snapshots with no PageInfo row yet
// for extractorVersion — an anti-join on (snapshot_id, extractor_version)
// (spec §4.4 step 1).
func (s *Store) PendingExtraction(ctx context.Context, extractorVersion string, limit int) ([]UnextractedSnapshot, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+snapshotColumnsPrefixed()+`, p.hash, p.url
		FROM page_snapshot ps
		JOIN page p ON p.id = ps.page_id
		LEFT JOIN page_info pi ON pi.snapshot_id = ps.id AND pi.extractor_version = $1
		WHERE pi.id IS NULL
		ORDER BY ps.snapshot_timestamp
		LIMIT $2`,
		extractorVersion, limit)
	if err != nil {
		return nil, fmt.Errorf("store: pending extraction: %w", err)
	}
	defer rows.Close()

	var out []UnextractedSnapshot
	for rows.Next() {
		var u UnextractedSnapshot
		if err := rows.Scan(&u.Snapshot.ID, &u.Snapshot.PageID, &u.Snapshot.SnapshotTimestamp,
			&u.Snapshot.OSSPath, &u.Snapshot.ContentHash, &u.Snapshot.CleanHash, &u.Snapshot.CreatedAt,
			&u.PageHash, &u.PageURL); err != nil {
			return nil, fmt.Errorf("store: pending extraction: scan: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func snapshotColumnsPrefixed() string {
	return "ps.id, ps.page_id, ps.snapshot_timestamp, ps.oss_path, ps.content_hash, ps.clean_hash, ps.created_at"
}

// InsertInfo stores an extractor's output exactly once per
// (snapshot_id, extractor_version); concurrent extractor runs racing to
// insert the same pair collapse to a single row (spec §4.4 step 2, P7).
func (s *Store) InsertInfo(ctx context.Context, snapshotID int64, extractorVersion string, data []byte) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO page_info (snapshot_id, extractor_version, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (snapshot_id, extractor_version) DO NOTHING`,
		snapshotID, extractorVersion, data)
	if err != nil {
		return fmt.Errorf("store: insert info for snapshot %d: %w", snapshotID, err)
	}
	return nil
}

// GetInfo looks up a specific extractor's output for a snapshot.
func (s *Store) GetInfo(ctx context.Context, snapshotID int64, extractorVersion string) (PageInfo, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, snapshot_id, extractor_version, data, created_at
		FROM page_info WHERE snapshot_id = $1 AND extractor_version = $2`,
		snapshotID, extractorVersion)
	var info PageInfo
	err := row.Scan(&info.ID, &info.SnapshotID, &info.ExtractorVersion, &info.Data, &info.CreatedAt)
	if err == sql.ErrNoRows {
		return PageInfo{}, ErrNotFound
	}
	if err != nil {
		return PageInfo{}, fmt.Errorf("store: get info: %w", err)
	}
	return info, nil
}
