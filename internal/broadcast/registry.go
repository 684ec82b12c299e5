package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/LucasSchemes/servidor-propaganda/internal/adapter/metrics"
)

// Registry is the set of open sessions shared by the connection handlers, the Hub and
// the Heartbeat. All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[SessionID]*Session
	nextID   atomic.Uint64

	metrics *metrics.BroadcastMetrics
}

func NewRegistry(m *metrics.BroadcastMetrics) *Registry {
	if m == nil {
		m = metrics.NewBroadcastMetrics(nil)
	}
	return &Registry{
		sessions: make(map[SessionID]*Session),
		metrics:  m,
	}
}

// Register wraps sink in a new active session and adds it to the set.
func (r *Registry) Register(sink Sink) *Session {
	id := SessionID(r.nextID.Add(1))
	s := newSession(id, sink, r.metrics, r.sessionClosed)

	r.mu.Lock()
	r.sessions[id] = s
	total := len(r.sessions)
	r.mu.Unlock()

	s.activate()

	r.metrics.SessionsOpened.Inc()
	r.metrics.ActiveSessions.Set(float64(total))
	slog.Debug("Session registered", "session_id", id, "total_sessions", total)
	return s
}

// Deregister removes and closes the session. Unknown or already removed ids are ignored.
func (r *Registry) Deregister(id SessionID) {
	s := r.remove(id)
	if s == nil {
		return
	}
	s.terminate(ErrEvicted)
}

// ForEach calls visit once for every session registered when the traversal starts.
// A session for which visit fails is deregistered right away; the traversal goes on.
// It returns how many visits succeeded and failed.
func (r *Registry) ForEach(visit func(s *Session) error) (delivered, failed int) {
	for _, s := range r.snapshot() {
		if err := visit(s); err != nil {
			failed++
			r.evict(s, err)
			continue
		}
		delivered++
	}
	return delivered, failed
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Get returns the session with the given id, if registered.
func (r *Registry) Get(id SessionID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// CloseAll closes every session. Used on shutdown.
func (r *Registry) CloseAll() {
	sessions := r.snapshot()
	for _, s := range sessions {
		s.terminate(ErrShutdown)
	}
	slog.Info("Closed all totem sessions", "sessions", len(sessions))
}

func (r *Registry) evict(s *Session, cause error) {
	if r.remove(s.id) == nil {
		return
	}
	s.terminate(fmt.Errorf("%w: %w", ErrEvicted, cause))
}

func (r *Registry) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (r *Registry) remove(id SessionID) *Session {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	total := len(r.sessions)
	r.mu.Unlock()

	if ok {
		r.metrics.ActiveSessions.Set(float64(total))
		return s
	}
	return nil
}

func (r *Registry) sessionClosed(s *Session, reason error) {
	r.remove(s.id)

	label := closeReason(reason)
	r.metrics.SessionsClosed.WithLabelValues(label).Inc()
	if label == "disconnect" || label == "shutdown" {
		slog.Debug("Session closed", "session_id", s.id, "reason", label)
		return
	}
	slog.Warn("Session closed", "session_id", s.id, "reason", label, "error", reason)
}

func closeReason(reason error) string {
	switch {
	case reason == nil:
		return "disconnect"
	case errors.Is(reason, ErrShutdown):
		return "shutdown"
	case errors.Is(reason, ErrEvicted):
		return "evicted"
	default:
		return "write_error"
	}
}
