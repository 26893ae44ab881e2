package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/talemon/internal/store"
)

// heartbeatLoop runs as an independent activity alongside the sequential
// capture pipeline, writing a conditional heartbeat every interval until
// stopped (spec §4.3 step 1, §9: "two concurrent activities communicating
// only via the SS"). It never reads capture state; it only knows the
// page it's leasing.
type heartbeatLoop struct {
	store    *store.Store
	pageID   int64
	interval time.Duration
	log      *slog.Logger

	stop chan struct{}
	done chan struct{}
}

func startHeartbeat(ctx context.Context, s *store.Store, pageID int64, interval time.Duration, log *slog.Logger) *heartbeatLoop {
	h := &heartbeatLoop{
		store:    s,
		pageID:   pageID,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go h.loop(ctx)
	return h
}

func (h *heartbeatLoop) loop(ctx context.Context) {
	defer close(h.done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		case <-ticker.C:
			held, err := h.store.Heartbeat(ctx, h.pageID)
			if err != nil {
				h.log.Error("worker: heartbeat write failed", "page_id", h.pageID, "error", err)
				continue
			}
			if !held {
				h.log.Warn("worker: lease lost, stopping heartbeat", "page_id", h.pageID)
				return
			}
		}
	}
}

// Stop signals the heartbeat goroutine to exit and waits for it.
func (h *heartbeatLoop) Stop() {
	close(h.stop)
	<-h.done
}
