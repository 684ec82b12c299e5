package httpserver

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/LucasSchemes/servidor-propaganda/internal/broadcast"
)

var errSinkClosed = errors.New("sink closed")

// sseSink writes frames as text/event-stream records. Content frames use the default
// event type, so they carry only data lines; keep-alives are "event: ping" with empty data.
type sseSink struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
	closed       atomic.Bool
}

func newSSESink(w http.ResponseWriter, writeTimeout time.Duration) *sseSink {
	return &sseSink{w: w, rc: http.NewResponseController(w), writeTimeout: writeTimeout}
}

// start sends the stream headers and flushes them so the client sees the stream open
// before the first frame.
func (s *sseSink) start() error {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	return s.flush()
}

func (s *sseSink) WriteFrame(f broadcast.Frame) error {
	if s.closed.Load() {
		return errSinkClosed
	}
	if s.writeTimeout > 0 {
		if err := s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if _, err := s.w.Write(encodeSSE(f)); err != nil {
		return err
	}
	return s.flush()
}

// Close stops further writes and cuts a blocked write short by expiring its deadline.
func (s *sseSink) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.rc.SetWriteDeadline(time.Now()); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func (s *sseSink) flush() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func encodeSSE(f broadcast.Frame) []byte {
	var buf bytes.Buffer
	if f.Event != broadcast.EventMessage {
		buf.WriteString("event: ")
		buf.WriteString(f.Event)
		buf.WriteByte('\n')
	}
	if len(f.Data) == 0 {
		buf.WriteString("data: \n")
	}
	for line := range bytes.Lines(f.Data) {
		buf.WriteString("data: ")
		buf.Write(bytes.TrimRight(line, "\r\n"))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}
