package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lanshare/lanshare/internal/catalog"
	"github.com/lanshare/lanshare/internal/logging"
	"github.com/lanshare/lanshare/internal/storage"
)

// Reaper periodically removes catalog entries whose owning session has
// disconnected, deleting their backing bytes. It runs for the lifetime of
// the process and stops when its context is cancelled.
type Reaper struct {
	hub      *Hub
	backend  storage.Backend
	interval time.Duration
}

// NewReaper creates a reaper sweeping on the given interval.
func NewReaper(h *Hub, backend storage.Backend, interval time.Duration) *Reaper {
	return &Reaper{hub: h, backend: backend, interval: interval}
}

// Run blocks, sweeping on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logging.Info("reaper started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			logging.Info("reaper stopped")
			return
		case <-ticker.C:
			r.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep. Storage deletion failures are logged and
// never block metadata removal or the broadcast.
func (r *Reaper) SweepOnce(ctx context.Context) {
	removed := r.hub.Sweep(func(e catalog.Entry) {
		if err := r.backend.DeleteObject(ctx, e.StorageKey); err != nil {
			logging.Warn("failed to delete swept object",
				zap.String("key", e.StorageKey),
				zap.Error(err))
		}
	})
	if len(removed) > 0 {
		logging.Info("reaped orphaned entries", zap.Int("count", len(removed)))
	}
}
