package httpserver

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/LucasSchemes/servidor-propaganda/internal/broadcast"
	"github.com/gorilla/websocket"
)

const wsReadLimit = 512

// wsSink sends content frames as text messages and keep-alives as ping control frames.
// Only the session's writer goroutine calls WriteFrame; Close may run concurrently.
type wsSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

func newWSSink(conn *websocket.Conn, writeTimeout time.Duration) *wsSink {
	return &wsSink{conn: conn, writeTimeout: writeTimeout}
}

func (s *wsSink) WriteFrame(f broadcast.Frame) error {
	deadline := time.Now().Add(s.writeTimeout)
	if f.IsKeepAlive() {
		return s.conn.WriteControl(websocket.PingMessage, nil, deadline)
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, f.Data)
}

func (s *wsSink) Close() error {
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(time.Second))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// newCheckOrigin allows requests without an Origin header (kiosk browsers, curl), origins
// listed for CORS, and localhost in development.
func newCheckOrigin(allowed []string, isDevelopment bool) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if slices.Contains(allowed, origin) || slices.Contains(allowed, "*") {
			return true
		}
		if isDevelopment && isLocalhostOrigin(origin) {
			return true
		}

		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}
