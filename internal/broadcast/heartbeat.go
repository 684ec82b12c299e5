package broadcast

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultHeartbeatInterval = 15 * time.Second

// Heartbeat sends a keep-alive frame to every session on a fixed interval.
type Heartbeat struct {
	registry *Registry
	clock    clockwork.Clock
	interval time.Duration
	running  atomic.Bool
}

func NewHeartbeat(registry *Registry, clock clockwork.Clock, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Heartbeat{registry: registry, clock: clock, interval: interval}
}

// Run ticks until ctx is cancelled. Only one Run may be active per Heartbeat; a second
// call logs a warning and returns at once.
func (h *Heartbeat) Run(ctx context.Context) {
	if !h.running.CompareAndSwap(false, true) {
		slog.Warn("Heartbeat already running, ignoring second start")
		return
	}
	defer h.running.Store(false)

	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()

	slog.Info("Heartbeat started", "interval", h.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Heartbeat stopped")
			return
		case <-ticker.Chan():
			h.tick()
		}
	}
}

func (h *Heartbeat) tick() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Heartbeat tick panicked", "panic", r)
		}
	}()

	h.registry.metrics.Heartbeats.Inc()
	delivered, failed := h.registry.ForEach(func(s *Session) error {
		return s.enqueue(PingFrame)
	})
	if failed > 0 {
		slog.Debug("Heartbeat evicted sessions", "delivered", delivered, "evicted", failed)
	}
}
