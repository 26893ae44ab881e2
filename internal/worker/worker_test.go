package worker

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/talemon/internal/browser"
	"github.com/hazyhaar/talemon/internal/fingerprint"
	"github.com/hazyhaar/talemon/internal/objstore"
)

func newTestWorker(t *testing.T, driver *browser.FakeDriver, objs *objstore.MemoryStore) (*Worker, func()) {
	s := newTestStore(t)
	w := New(Config{HeartbeatInterval: time.Hour, PageTimeout: 5 * time.Second},
		s, objs, driver, fingerprint.DefaultConfig(), nil, nil, nil)
	return w, func() {}
}

func TestProcessPage_FirstCapture(t *testing.T) {
	driver := browser.NewFakeDriver()
	objs := objstore.NewMemoryStore()
	w, cleanup := newTestWorker(t, driver, objs)
	defer cleanup()

	s := w.store
	page := seedPage(t, s, "https://example.com/a", "example.com")

	driver.SetResponse(page.URL, browser.Capture{
		HTTPStatus:  200,
		RawHTML:     []byte("<html><body>Hello</body></html>"),
		RenderedDOM: []byte("<html><body>Hello</body></html>"),
		MHTML:       []byte("mhtml-bytes"),
		Screenshot:  []byte("png-bytes"),
	})

	if err := w.ProcessPage(context.Background(), page); err != nil {
		t.Fatalf("ProcessPage: %v", err)
	}

	snaps, err := s.ListSnapshotsByPage(context.Background(), page.ID)
	if err != nil {
		t.Fatalf("ListSnapshotsByPage: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}

	keys := objs.Keys()
	if len(keys) != 4 {
		t.Fatalf("expected 4 artifacts uploaded, got %d: %v", len(keys), keys)
	}

	monitors, err := s.ListMonitorsByPage(context.Background(), page.ID)
	if err != nil {
		t.Fatalf("ListMonitorsByPage: %v", err)
	}
	if len(monitors) != 1 || !monitors[0].ChangeDetected {
		t.Fatalf("expected one change_detected monitor row, got %+v", monitors)
	}

	p, err := s.GetByID(context.Background(), page.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if p.Status != "PENDING" || p.HeartbeatAt.Valid {
		t.Fatalf("expected lease released after capture, got %+v", p)
	}
	if !p.LastCleanHash.Valid {
		t.Fatalf("expected last_clean_hash to be set")
	}
}

func TestProcessPage_NoChangeRevisit(t *testing.T) {
	driver := browser.NewFakeDriver()
	objs := objstore.NewMemoryStore()
	w, cleanup := newTestWorker(t, driver, objs)
	defer cleanup()

	s := w.store
	page := seedPage(t, s, "https://example.com/b", "example.com")
	body := []byte("<html><body>Same</body></html>")
	driver.SetResponse(page.URL, browser.Capture{HTTPStatus: 200, RawHTML: body, RenderedDOM: body})

	if err := w.ProcessPage(context.Background(), page); err != nil {
		t.Fatalf("first ProcessPage: %v", err)
	}

	// Re-lease the page the way a scheduler would and revisit with identical content.
	p, err := s.GetByID(context.Background(), page.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if _, err := s.DB.Exec(`UPDATE page SET status='PROCESSING', heartbeat_at=now() WHERE id=$1`, p.ID); err != nil {
		t.Fatalf("re-lease: %v", err)
	}
	p, err = s.GetByID(context.Background(), page.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	if err := w.ProcessPage(context.Background(), p); err != nil {
		t.Fatalf("second ProcessPage: %v", err)
	}

	snaps, err := s.ListSnapshotsByPage(context.Background(), page.ID)
	if err != nil {
		t.Fatalf("ListSnapshotsByPage: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected no new snapshot on unchanged revisit, got %d", len(snaps))
	}

	monitors, err := s.ListMonitorsByPage(context.Background(), page.ID)
	if err != nil {
		t.Fatalf("ListMonitorsByPage: %v", err)
	}
	if len(monitors) != 2 {
		t.Fatalf("expected 2 monitor rows after 2 attempts, got %d", len(monitors))
	}
}

func TestProcessPage_HTTPFailure(t *testing.T) {
	driver := browser.NewFakeDriver()
	objs := objstore.NewMemoryStore()
	w, cleanup := newTestWorker(t, driver, objs)
	defer cleanup()

	s := w.store
	page := seedPage(t, s, "https://example.com/c", "example.com")
	driver.SetResponse(page.URL, browser.Capture{HTTPStatus: 503})

	if err := w.ProcessPage(context.Background(), page); err != nil {
		t.Fatalf("ProcessPage: %v", err)
	}

	snaps, err := s.ListSnapshotsByPage(context.Background(), page.ID)
	if err != nil {
		t.Fatalf("ListSnapshotsByPage: %v", err)
	}
	if len(snaps) != 0 {
		t.Fatalf("expected no snapshot on HTTP failure, got %d", len(snaps))
	}

	monitors, err := s.ListMonitorsByPage(context.Background(), page.ID)
	if err != nil {
		t.Fatalf("ListMonitorsByPage: %v", err)
	}
	if len(monitors) != 1 || monitors[0].ChangeDetected {
		t.Fatalf("expected one non-change monitor row, got %+v", monitors)
	}
	if !monitors[0].HTTPStatus.Valid || monitors[0].HTTPStatus.Int32 != 503 {
		t.Fatalf("expected http_status=503, got %+v", monitors[0].HTTPStatus)
	}
	if monitors[0].ContentHash.Valid {
		t.Fatalf("expected content_hash NULL on HTTP failure")
	}
}

func TestProcessPage_NavigationError_LeavesLeaseInPlace(t *testing.T) {
	driver := browser.NewFakeDriver()
	objs := objstore.NewMemoryStore()
	w, cleanup := newTestWorker(t, driver, objs)
	defer cleanup()

	s := w.store
	page := seedPage(t, s, "https://example.com/d", "example.com")
	driver.SetError(page.URL, context.DeadlineExceeded)

	if err := w.ProcessPage(context.Background(), page); err == nil {
		t.Fatalf("expected ProcessPage to return an error on navigation failure")
	}

	p, err := s.GetByID(context.Background(), page.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if p.Status != "PROCESSING" {
		t.Fatalf("expected lease to remain held after hard failure, got %s", p.Status)
	}
}
