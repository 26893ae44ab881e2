package extractor

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hazyhaar/talemon/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:17",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "talemon",
			"POSTGRES_PASSWORD": "talemon",
			"POSTGRES_DB":       "talemon",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("skipping: postgres testcontainer unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}

	dsn := "postgres://talemon:talemon@" + host + ":" + port.Port() + "/talemon?sslmode=disable"
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := store.ApplySchema(ctx, db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return store.New(db)
}

// seedSnapshot inserts a page and one page_snapshot row directly, bypassing
// the worker's write path since extractor tests only care about what is
// already persisted.
func seedSnapshot(t *testing.T, s *store.Store, url, domain string) store.PageSnapshot {
	t.Helper()
	var pageID int64
	err := s.DB.QueryRow(`
		INSERT INTO page (url, hash, domain, status, next_schedule_at, check_interval)
		VALUES ($1, $2, $3, 'PENDING', now(), interval '1 hour')
		RETURNING id`,
		url, sha1Hex(url), domain).Scan(&pageID)
	if err != nil {
		t.Fatalf("seed page: %v", err)
	}

	contentHash := sha1Hex(url + "-content")
	cleanHash := sha1Hex(url + "-clean")
	var sn store.PageSnapshot
	row := s.DB.QueryRow(`
		INSERT INTO page_snapshot (page_id, snapshot_timestamp, oss_path, content_hash, clean_hash)
		VALUES ($1, now(), $2, $3, $4)
		RETURNING id, page_id, snapshot_timestamp, oss_path, content_hash, clean_hash, created_at`,
		pageID, fmt.Sprintf("data/%s/000000.000000/", sha1Hex(url)), contentHash, cleanHash)
	if err := row.Scan(&sn.ID, &sn.PageID, &sn.SnapshotTimestamp, &sn.OSSPath,
		&sn.ContentHash, &sn.CleanHash, &sn.CreatedAt); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
	return sn
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return fmt.Sprintf("%x", sum)
}
