package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/LucasSchemes/servidor-propaganda/internal/adapter/metrics"
	"github.com/LucasSchemes/servidor-propaganda/internal/domain"
	"github.com/jonboulle/clockwork"
)

const defaultPublishTimeout = 5 * time.Second

// SlideLister is the read side of the content store the Hub needs.
type SlideLister interface {
	List(ctx context.Context) ([]domain.Slide, error)
}

// Hub turns the current store snapshot into content frames and fans them out to the
// Registry's sessions.
type Hub struct {
	store          SlideLister
	registry       *Registry
	clock          clockwork.Clock
	metrics        *metrics.BroadcastMetrics
	publishTimeout time.Duration

	seq atomic.Uint64
}

func NewHub(store SlideLister, registry *Registry, clock clockwork.Clock, m *metrics.BroadcastMetrics) *Hub {
	if m == nil {
		m = registry.metrics
	}
	return &Hub{
		store:          store,
		registry:       registry,
		clock:          clock,
		metrics:        m,
		publishTimeout: defaultPublishTimeout,
	}
}

// Publish reads the store, filters it at the current time and enqueues the result to
// every registered session. Failures are logged and counted; nothing is returned
// because callers fire and forget.
func (h *Hub) Publish(ctx context.Context) {
	start := h.clock.Now()
	frame, count, err := h.buildFrame(ctx)
	if err != nil {
		h.metrics.Publishes.WithLabelValues("error").Inc()
		slog.ErrorContext(ctx, "Broadcast publish failed", "error", err)
		return
	}

	delivered, failed := h.registry.ForEach(func(s *Session) error {
		return s.enqueue(frame)
	})

	h.metrics.Publishes.WithLabelValues("ok").Inc()
	h.metrics.ValidSlides.Set(float64(count))
	h.metrics.PublishDuration.Observe(h.clock.Since(start).Seconds())
	slog.DebugContext(ctx, "Broadcast published",
		"slides", count, "delivered", delivered, "evicted", failed)
}

// Connect registers sink as a new session and sends it the full current state. The
// sync goes to that session only. When the store cannot be read the session is
// returned already closed.
func (h *Hub) Connect(ctx context.Context, sink Sink) *Session {
	s := h.registry.Register(sink)

	frame, count, err := h.buildFrame(ctx)
	if err != nil {
		// An unprimed session would drop every ping until the next publish. Closing it
		// lets the totem reconnect and retry the sync.
		h.metrics.Publishes.WithLabelValues("sync_error").Inc()
		slog.ErrorContext(ctx, "Initial sync failed", "session_id", s.ID(), "error", err)
		h.registry.evict(s, fmt.Errorf("initial sync: %w", err))
		return s
	}
	if err := s.enqueue(frame); err != nil {
		h.registry.evict(s, err)
		return s
	}

	slog.DebugContext(ctx, "Session synced", "session_id", s.ID(), "slides", count)
	return s
}

// Close closes every session. Sessions opened afterwards are not affected.
func (h *Hub) Close() {
	h.registry.CloseAll()
}

// buildFrame takes the sequence number before reading, so a frame built from an older
// read always carries a smaller sequence than one built from a newer read.
func (h *Hub) buildFrame(ctx context.Context) (Frame, int, error) {
	seq := h.seq.Add(1)

	ctx, cancel := context.WithTimeout(ctx, h.publishTimeout)
	defer cancel()

	snapshot, err := h.store.List(ctx)
	if err != nil {
		return Frame{}, 0, fmt.Errorf("read slides: %w", err)
	}

	valid := ValidSlides(snapshot, h.clock.Now())
	data, err := json.Marshal(valid)
	if err != nil {
		return Frame{}, 0, fmt.Errorf("encode slides: %w", err)
	}
	return contentFrame(seq, data), len(valid), nil
}
