package broadcast

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/LucasSchemes/servidor-propaganda/internal/domain"
	"github.com/stretchr/testify/require"
)

var errSinkBroken = errors.New("broken pipe")

type fakeSink struct {
	mu      sync.Mutex
	frames  []Frame
	fail    bool
	closed  bool
	release chan struct{}
	once    sync.Once
}

func newFakeSink() *fakeSink {
	return &fakeSink{release: make(chan struct{})}
}

func newFailingSink() *fakeSink {
	s := newFakeSink()
	s.fail = true
	return s
}

func (s *fakeSink) WriteFrame(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("sink closed")
	}
	if s.fail {
		return errSinkBroken
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.once.Do(func() { close(s.release) })
	return nil
}

func (s *fakeSink) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

func (s *fakeSink) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSink) countEvent(event string) int {
	n := 0
	for _, f := range s.Frames() {
		if f.Event == event {
			n++
		}
	}
	return n
}

// lastContent returns the titles of the newest content frame, or nil if none arrived.
func (s *fakeSink) lastContent(t *testing.T) []string {
	t.Helper()
	frames := s.Frames()
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Event != EventMessage {
			continue
		}
		var slides []domain.Slide
		require.NoError(t, json.Unmarshal(frames[i].Data, &slides))
		return titles(slides)
	}
	return nil
}

// blockingSink holds every write until Close is called.
type blockingSink struct {
	fakeSink
}

func newBlockingSink() *blockingSink {
	return &blockingSink{fakeSink: fakeSink{release: make(chan struct{})}}
}

func (s *blockingSink) WriteFrame(f Frame) error {
	<-s.release
	return errors.New("sink closed")
}

// gateSink records each frame, then holds the writer until open is called.
type gateSink struct {
	fakeSink
	gate     chan struct{}
	openOnce sync.Once
}

func newGateSink() *gateSink {
	return &gateSink{fakeSink: fakeSink{release: make(chan struct{})}, gate: make(chan struct{})}
}

func (s *gateSink) WriteFrame(f Frame) error {
	if err := s.fakeSink.WriteFrame(f); err != nil {
		return err
	}
	select {
	case <-s.gate:
	case <-s.release:
	}
	return nil
}

// open lets the current and every later write through.
func (s *gateSink) open() {
	s.openOnce.Do(func() { close(s.gate) })
}
