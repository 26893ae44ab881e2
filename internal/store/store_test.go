package store

import (
	"context"
	"database/sql"
	"testing"
	"time"
)

func TestReclaimZombies(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := New(db)

	id := insertTestPage(t, db, "https://example.com/zombie", "example.com")
	if _, err := db.ExecContext(ctx, `
		UPDATE page SET status = 'PROCESSING', heartbeat_at = now() - interval '10 minutes'
		WHERE id = $1`, id); err != nil {
		t.Fatalf("seed processing state: %v", err)
	}

	n, err := s.ReclaimZombies(ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("ReclaimZombies: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reclaimed, got %d", n)
	}

	p, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if p.Status != StatusPending {
		t.Fatalf("expected PENDING after reclaim, got %s", p.Status)
	}
	if p.HeartbeatAt.Valid {
		t.Fatalf("expected heartbeat_at cleared after reclaim")
	}
}

func TestReclaimZombies_LeavesFreshLeasesAlone(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := New(db)

	id := insertTestPage(t, db, "https://example.com/fresh", "example.com")
	if _, err := db.ExecContext(ctx, `
		UPDATE page SET status = 'PROCESSING', heartbeat_at = now() WHERE id = $1`, id); err != nil {
		t.Fatalf("seed processing state: %v", err)
	}

	n, err := s.ReclaimZombies(ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("ReclaimZombies: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 reclaimed for a fresh lease, got %d", n)
	}
}

func TestSelectCandidates_SkipsLockedRows(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := New(db)

	id := insertTestPage(t, db, "https://example.com/locked", "example.com")

	txA, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin txA: %v", err)
	}
	defer txA.Rollback()

	lockedA, err := s.SelectCandidates(ctx, txA, 10)
	if err != nil {
		t.Fatalf("SelectCandidates in txA: %v", err)
	}
	if len(lockedA) != 1 || lockedA[0].ID != id {
		t.Fatalf("expected txA to lock the seeded page, got %+v", lockedA)
	}

	txB, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin txB: %v", err)
	}
	defer txB.Rollback()

	lockedB, err := s.SelectCandidates(ctx, txB, 10)
	if err != nil {
		t.Fatalf("SelectCandidates in txB: %v", err)
	}
	if len(lockedB) != 0 {
		t.Fatalf("expected txB to skip the row locked by txA, got %+v", lockedB)
	}
}

func TestDispatchThenCompleteCheck(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := New(db)

	id := insertTestPage(t, db, "https://example.com/dispatch", "example.com")

	err := RunTx(ctx, db, func(tx *sql.Tx) error {
		candidates, err := s.SelectCandidates(ctx, tx, 10)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			if err := s.Dispatch(ctx, tx, c.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("dispatch tx: %v", err)
	}

	p, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if p.Status != StatusProcessing || !p.HeartbeatAt.Valid {
		t.Fatalf("expected PROCESSING with heartbeat set, got %+v", p)
	}

	err = RunTx(ctx, db, func(tx *sql.Tx) error {
		if err := InsertMonitor(ctx, tx, PageMonitor{
			PageID:           id,
			MonitorTimestamp: time.Now(),
			ChangeDetected:   true,
		}); err != nil {
			return err
		}
		return s.CompleteCheck(ctx, tx, id, "deadbeef")
	})
	if err != nil {
		t.Fatalf("complete tx: %v", err)
	}

	p, err = s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if p.Status != StatusPending || p.HeartbeatAt.Valid {
		t.Fatalf("expected lease released after completion, got %+v", p)
	}
	if !p.LastCleanHash.Valid || p.LastCleanHash.String != "deadbeef" {
		t.Fatalf("expected last_clean_hash updated, got %+v", p.LastCleanHash)
	}
}

// TestSnapshotDedup verifies P2: the unique (page_id, clean_hash)
// constraint collapses two upserts with the same hash into one row.
func TestSnapshotDedup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := New(db)

	id := insertTestPage(t, db, "https://example.com/dedup", "example.com")

	for i := 0; i < 2; i++ {
		err := RunTx(ctx, db, func(tx *sql.Tx) error {
			_, err := UpsertSnapshot(ctx, tx, id, time.Now().Add(time.Duration(i)*time.Second),
				"example.com-hash/250101.000000/", "content"+string(rune('a'+i)), "samehash")
			return err
		})
		if err != nil {
			t.Fatalf("upsert snapshot %d: %v", i, err)
		}
	}

	snaps, err := s.ListSnapshotsByPage(ctx, id)
	if err != nil {
		t.Fatalf("ListSnapshotsByPage: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected exactly one snapshot after duplicate upserts, got %d", len(snaps))
	}
}

// TestExtractorIdempotence verifies P7: inserting PageInfo twice for the
// same (snapshot_id, extractor_version) yields one row.
func TestExtractorIdempotence(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := New(db)

	pageID := insertTestPage(t, db, "https://example.com/extract", "example.com")
	var snapshotID int64
	err := RunTx(ctx, db, func(tx *sql.Tx) error {
		sn, err := UpsertSnapshot(ctx, tx, pageID, time.Now(), "x/250101.000000/", "c1", "clean1")
		if err != nil {
			return err
		}
		snapshotID = sn.ID
		return nil
	})
	if err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.InsertInfo(ctx, snapshotID, "v1", []byte(`{"title":"t"}`)); err != nil {
			t.Fatalf("InsertInfo %d: %v", i, err)
		}
	}

	info, err := s.GetInfo(ctx, snapshotID, "v1")
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if string(info.Data) == "" {
		t.Fatalf("expected info data to be populated")
	}

	pending, err := s.PendingExtraction(ctx, "v1", 10)
	if err != nil {
		t.Fatalf("PendingExtraction: %v", err)
	}
	for _, p := range pending {
		if p.Snapshot.ID == snapshotID {
			t.Fatalf("snapshot %d should not appear as pending once extracted", snapshotID)
		}
	}

	pendingV2, err := s.PendingExtraction(ctx, "v2", 10)
	if err != nil {
		t.Fatalf("PendingExtraction v2: %v", err)
	}
	found := false
	for _, p := range pendingV2 {
		if p.Snapshot.ID == snapshotID {
			found = true
		}
	}
	if !found {
		t.Fatalf("snapshot %d should be pending for a different extractor version", snapshotID)
	}
}
