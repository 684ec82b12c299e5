package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/LucasSchemes/servidor-propaganda/internal/adapter/metrics"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrEvicted       = errors.New("session evicted")
	ErrShutdown      = errors.New("server shutting down")
)

// SessionID identifies one connection. IDs come from a per-registry counter and are
// never reused.
type SessionID uint64

// State is a session's position in Connecting -> Active -> Closed.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Sink is the write side of one totem connection. WriteFrame may block, but must give
// up within the transport's write timeout. Close must unblock a pending WriteFrame.
type Sink interface {
	WriteFrame(f Frame) error
	Close() error
}

// Session owns one Sink for its lifetime. Frames are handed over without blocking and
// written by the session's own goroutine. At most one content frame and one ping wait
// for the writer: a newer content frame replaces an unwritten one, so a slow totem
// skips intermediate snapshots instead of falling behind.
type Session struct {
	id      SessionID
	sink    Sink
	wake    chan struct{}
	done    chan struct{}
	state   atomic.Int32
	metrics *metrics.BroadcastMetrics
	onClose func(s *Session, reason error)

	mu          sync.Mutex
	pending     Frame
	hasPending  bool
	pingPending bool
	lastSeq     uint64
	primed      bool
	closeErr    error

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newSession(id SessionID, sink Sink, m *metrics.BroadcastMetrics, onClose func(*Session, error)) *Session {
	return &Session{
		id:      id,
		sink:    sink,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		metrics: m,
		onClose: onClose,
	}
}

func (s *Session) ID() SessionID {
	return s.id
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed once the session reaches StateClosed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session closed: nil for a local Close, otherwise the write
// failure or eviction cause.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

func (s *Session) activate() bool {
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateActive)) {
		return false
	}
	s.wg.Add(1)
	go s.run()
	return true
}

// enqueue hands f to the writer goroutine without blocking. Keep-alives are held back
// until the first content frame is queued, and content frames older than the newest
// queued one are discarded.
func (s *Session) enqueue(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == StateClosed {
		return ErrSessionClosed
	}

	if f.IsKeepAlive() {
		switch {
		case !s.primed:
			s.metrics.FramesDropped.WithLabelValues("unprimed").Inc()
			return nil
		case s.pingPending:
			s.metrics.FramesDropped.WithLabelValues("coalesced").Inc()
			return nil
		}
		s.pingPending = true
	} else {
		if s.primed && f.seq <= s.lastSeq {
			s.metrics.FramesDropped.WithLabelValues("stale").Inc()
			return nil
		}
		if s.hasPending {
			s.metrics.FramesDropped.WithLabelValues("superseded").Inc()
		}
		s.pending = f
		s.hasPending = true
		s.primed = true
		s.lastSeq = f.seq
	}

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// take removes whatever is waiting, content before ping.
func (s *Session) take() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	var frames []Frame
	if s.hasPending {
		frames = append(frames, s.pending)
		s.pending = Frame{}
		s.hasPending = false
	}
	if s.pingPending {
		frames = append(frames, PingFrame)
		s.pingPending = false
	}
	return frames
}

func (s *Session) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for _, f := range s.take() {
			select {
			case <-s.done:
				return
			default:
			}
			if err := s.sink.WriteFrame(f); err != nil {
				s.terminate(fmt.Errorf("write %s frame: %w", f.Event, err))
				return
			}
			s.metrics.FramesSent.WithLabelValues(f.Event).Inc()
		}
	}
}

// terminate moves the session to StateClosed exactly once. It never waits for the
// writer goroutine, so it is safe to call from the writer itself or mid-broadcast.
func (s *Session) terminate(reason error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state.Store(int32(StateClosed))
		s.closeErr = reason
		s.mu.Unlock()

		close(s.done)
		if err := s.sink.Close(); err != nil {
			slog.Debug("Sink close failed", "session_id", s.id, "error", err)
		}
		if s.onClose != nil {
			s.onClose(s, reason)
		}
	})
}

// Close closes the session and waits for its writer goroutine to exit. Connection
// handlers call it before returning so the sink is never written after the handler ends.
func (s *Session) Close() {
	s.terminate(nil)
	s.wg.Wait()
}
