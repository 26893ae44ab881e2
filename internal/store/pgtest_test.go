package store

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return fmt.Sprintf("%x", sum)
}

// newTestDB starts a disposable Postgres container, applies the schema,
// and returns a connected *sql.DB. Skips the test if Docker is not
// reachable in the current environment, rather than failing it.
func newTestDB(t *testing.T) *sql.DB {
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
	if err := ApplySchema(ctx, db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

func insertTestPage(t *testing.T, db *sql.DB, url, domain string) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(`
		INSERT INTO page (url, hash, domain, status, next_schedule_at, check_interval)
		VALUES ($1, $2, $3, 'PENDING', now() - interval '1 minute', interval '1 hour')
		RETURNING id`,
		url, sha1Hex(url), domain).Scan(&id)
	if err != nil {
		t.Fatalf("insert test page: %v", err)
	}
	return id
}
