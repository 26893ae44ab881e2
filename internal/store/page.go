package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Page statuses, matching the CHECK constraint in schema.sql.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusPaused     = "PAUSED"
)

// Page is a monitored URL and its scheduling state.
type Page struct {
	ID             int64
	URL            string
	Hash           string
	Domain         string
	Status         string
	LastCleanHash  sql.NullString
	LastCheckAt    sql.NullTime
	NextScheduleAt time.Time
	HeartbeatAt    sql.NullTime
	CheckInterval  time.Duration
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const pageColumns = `id, url, hash, domain, status, last_clean_hash, last_check_at,
	next_schedule_at, heartbeat_at, check_interval, created_at, updated_at`

func scanPage(row interface{ Scan(...any) error }) (Page, error) {
	var p Page
	err := row.Scan(&p.ID, &p.URL, &p.Hash, &p.Domain, &p.Status, &p.LastCleanHash,
		&p.LastCheckAt, &p.NextScheduleAt, &p.HeartbeatAt, &p.CheckInterval,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// GetByID looks up a page by its primary key.
func (s *Store) GetByID(ctx context.Context, id int64) (Page, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM page WHERE id = $1`, id)
	p, err := scanPage(row)
	if err == sql.ErrNoRows {
		return Page{}, ErrNotFound
	}
	if err != nil {
		return Page{}, fmt.Errorf("store: get page by id: %w", err)
	}
	return p, nil
}

// GetByURL looks up a page by its alternate key.
func (s *Store) GetByURL(ctx context.Context, url string) (Page, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM page WHERE url = $1`, url)
	p, err := scanPage(row)
	if err == sql.ErrNoRows {
		return Page{}, ErrNotFound
	}
	if err != nil {
		return Page{}, fmt.Errorf("store: get page by url: %w", err)
	}
	return p, nil
}

// ReclaimZombies converts every PROCESSING page whose heartbeat is older
// than zombieTimeout back to PENDING with a cleared heartbeat, in a single
// set-based statement. Safe to call repeatedly; a tick that reclaims
// nothing is a no-op. Returns the number of pages reclaimed.
func (s *Store) ReclaimZombies(ctx context.Context, zombieTimeout time.Duration) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE page
		SET status = $1, heartbeat_at = NULL, updated_at = now()
		WHERE status = $2 AND heartbeat_at < now() - make_interval(secs => $3)`,
		StatusPending, StatusProcessing, zombieTimeout.Seconds())
	if err != nil {
		return 0, fmt.Errorf("store: reclaim zombies: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: reclaim zombies: rows affected: %w", err)
	}
	return n, nil
}

// SelectCandidates locks, within tx, up to limit PENDING pages that are due
// (next_schedule_at <= now()), in randomized order, skipping rows already
// locked by a concurrent scheduler or worker. The caller must either
// Dispatch each returned page or let tx commit unmodified — either way the
// row lock is released at commit, so candidates the caller declines to
// dispatch (e.g. over their domain's rate limit) simply remain PENDING.
func (s *Store) SelectCandidates(ctx context.Context, tx *sql.Tx, limit int) ([]Page, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT `+pageColumns+`
		FROM page
		WHERE status = $1 AND next_schedule_at <= now()
		ORDER BY random()
		LIMIT $2
		FOR UPDATE SKIP LOCKED`,
		StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("store: select candidates: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: select candidates: scan: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: select candidates: %w", err)
	}
	return pages, nil
}

// Dispatch transitions a locked page to PROCESSING and stamps the lease
// heartbeat. Must be called within the same transaction that locked the
// row via SelectCandidates.
func (s *Store) Dispatch(ctx context.Context, tx *sql.Tx, pageID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE page
		SET status = $1, heartbeat_at = now(), updated_at = now()
		WHERE id = $2`,
		StatusProcessing, pageID)
	if err != nil {
		return fmt.Errorf("store: dispatch page %d: %w", pageID, err)
	}
	return nil
}

// Heartbeat extends a held lease. It writes conditionally on the page still
// being PROCESSING, so a worker whose lease was already reclaimed cannot
// resurrect it with a stray heartbeat write. Returns false if the
// condition did not hold (lease lost).
func (s *Store) Heartbeat(ctx context.Context, pageID int64) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE page
		SET heartbeat_at = now(), updated_at = now()
		WHERE id = $1 AND status = $2`,
		pageID, StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("store: heartbeat page %d: %w", pageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: heartbeat page %d: rows affected: %w", pageID, err)
	}
	return n > 0, nil
}

// ReleaseLease returns a leased page to PENDING without touching
// last_clean_hash, scheduling the next check after check_interval. Used on
// the HTTP-gate failure path (spec step 4.3.3), where no fingerprint was
// computed.
func (s *Store) ReleaseLease(ctx context.Context, tx *sql.Tx, pageID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE page
		SET status = $1, heartbeat_at = NULL, last_check_at = now(),
		    next_schedule_at = now() + check_interval, updated_at = now()
		WHERE id = $2`,
		StatusPending, pageID)
	if err != nil {
		return fmt.Errorf("store: release lease page %d: %w", pageID, err)
	}
	return nil
}

// CompleteCheck commits the outcome of a successful capture attempt: the
// page's fingerprint state advances to cleanHash (whether or not it
// changed from the previous value) and the lease is released. Used on both
// the unchanged and changed-content paths (spec step 4.3.6).
func (s *Store) CompleteCheck(ctx context.Context, tx *sql.Tx, pageID int64, cleanHash string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE page
		SET status = $1, heartbeat_at = NULL, last_check_at = now(),
		    last_clean_hash = $2, next_schedule_at = now() + check_interval,
		    updated_at = now()
		WHERE id = $3`,
		StatusPending, cleanHash, pageID)
	if err != nil {
		return fmt.Errorf("store: complete check page %d: %w", pageID, err)
	}
	return nil
}

// Pause marks a page PAUSED; PAUSED pages are never selected as candidates.
// Operator-driven, not part of the SC/WK protocol.
func (s *Store) Pause(ctx context.Context, pageID int64) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE page SET status = $1, updated_at = now() WHERE id = $2`,
		StatusPaused, pageID)
	if err != nil {
		return fmt.Errorf("store: pause page %d: %w", pageID, err)
	}
	return nil
}

// Resume returns a PAUSED page to PENDING, eligible for scheduling again.
func (s *Store) Resume(ctx context.Context, pageID int64) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE page SET status = $1, updated_at = now() WHERE id = $2`,
		StatusPending, pageID)
	if err != nil {
		return fmt.Errorf("store: resume page %d: %w", pageID, err)
	}
	return nil
}
