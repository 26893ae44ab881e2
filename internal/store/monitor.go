package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PageMonitor is a per-attempt audit record, written on every worker
// attempt whether or not a snapshot was taken (spec §3, PageMonitor).
type PageMonitor struct {
	ID               int64
	PageID           int64
	MonitorTimestamp time.Time
	ContentHash      sql.NullString
	CleanHash        sql.NullString
	ChangeDetected   bool
	HTTPStatus       sql.NullInt32
	ErrorMessage     sql.NullString
	CreatedAt        time.Time
}

// InsertMonitor records one worker attempt. Called from inside the same
// transaction that updates Page, so the audit row and the lease release
// are atomic (spec §4.3 step 6).
func InsertMonitor(ctx context.Context, tx *sql.Tx, m PageMonitor) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO page_monitor (page_id, monitor_timestamp, content_hash, clean_hash,
			change_detected, http_status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (page_id, monitor_timestamp) DO NOTHING`,
		m.PageID, m.MonitorTimestamp, m.ContentHash, m.CleanHash,
		m.ChangeDetected, m.HTTPStatus, m.ErrorMessage)
	if err != nil {
		return fmt.Errorf("store: insert monitor for page %d: %w", m.PageID, err)
	}
	return nil
}

// ListMonitorsByPage returns every audit row for a page, newest first.
func (s *Store) ListMonitorsByPage(ctx context.Context, pageID int64) ([]PageMonitor, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, page_id, monitor_timestamp, content_hash, clean_hash,
			change_detected, http_status, error_message, created_at
		FROM page_monitor WHERE page_id = $1 ORDER BY monitor_timestamp DESC`,
		pageID)
	if err != nil {
		return nil, fmt.Errorf("store: list monitors: %w", err)
	}
	defer rows.Close()

	var out []PageMonitor
	for rows.Next() {
		var m PageMonitor
		if err := rows.Scan(&m.ID, &m.PageID, &m.MonitorTimestamp, &m.ContentHash,
			&m.CleanHash, &m.ChangeDetected, &m.HTTPStatus, &m.ErrorMessage, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: list monitors: scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
