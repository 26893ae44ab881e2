package worker

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

func seedPage(t *testing.T, s *store.Store, url, domain string) store.Page {
	t.Helper()
	var id int64
	err := s.DB.QueryRow(`
		INSERT INTO page (url, hash, domain, status, next_schedule_at, check_interval)
		VALUES ($1, $2, $3, 'PROCESSING', now(), interval '1 hour')
		RETURNING id`,
		url, sha1Hex(url), domain).Scan(&id)
	if err != nil {
		t.Fatalf("seed page: %v", err)
	}
	if _, err := s.DB.Exec(`UPDATE page SET heartbeat_at = now() WHERE id = $1`, id); err != nil {
		t.Fatalf("seed heartbeat: %v", err)
	}
	p, err := s.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get seeded page: %v", err)
	}
	return p
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return fmt.Sprintf("%x", sum)
}
