package httpserver

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

func (s *Server) registerEventRoutes() {
	s.echo.GET("/api/events", s.handleEvents)
	s.echo.GET("/api/events/ws", s.handleEventsWebSocket)
}

// handleEvents holds a Server-Sent Events stream open for one totem. The first frame is
// the full valid slide set; later frames follow every change, with pings in between.
func (s *Server) handleEvents(c echo.Context) error {
	ip := c.RealIP()
	release, err := s.limits.acquire(ip)
	if err != nil {
		return err
	}
	defer release()

	sink := newSSESink(c.Response(), s.config.SinkWriteTimeout)
	if err := sink.start(); err != nil {
		slog.WarnContext(c.Request().Context(), "Failed to open event stream", "remote_ip", ip, "error", err)
		return nil
	}

	ctx := c.Request().Context()
	session := s.hub.Connect(ctx, sink)
	defer session.Close()

	slog.InfoContext(ctx, "Totem connected", "session_id", session.ID(), "transport", "sse", "remote_ip", ip)
	start := time.Now()

	reason := "client_gone"
	select {
	case <-ctx.Done():
	case <-session.Done():
		reason = "session_closed"
	case <-s.closing:
		reason = "shutdown"
	}

	slog.InfoContext(ctx, "Totem disconnected",
		"session_id", session.ID(), "transport", "sse", "reason", reason, "duration", time.Since(start))
	return nil
}

// handleEventsWebSocket is the WebSocket variant of handleEvents. Client messages are
// read and discarded only to notice a closed connection.
func (s *Server) handleEventsWebSocket(c echo.Context) error {
	ip := c.RealIP()
	release, err := s.limits.acquire(ip)
	if err != nil {
		return err
	}
	defer release()

	upgrader := websocket.Upgrader{
		CheckOrigin: newCheckOrigin(s.config.CORSAllowedOrigins, !s.config.IsProduction()),
	}
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		slog.WarnContext(c.Request().Context(), "WebSocket upgrade failed", "remote_ip", ip, "error", err)
		return nil
	}

	ctx := c.Request().Context()
	session := s.hub.Connect(ctx, newWSSink(conn, s.config.SinkWriteTimeout))
	defer session.Close()

	slog.InfoContext(ctx, "Totem connected", "session_id", session.ID(), "transport", "websocket", "remote_ip", ip)
	start := time.Now()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadLimit(wsReadLimit)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	reason := "client_gone"
	select {
	case <-readDone:
	case <-session.Done():
		reason = "session_closed"
	case <-s.closing:
		reason = "shutdown"
	}

	slog.InfoContext(ctx, "Totem disconnected",
		"session_id", session.ID(), "transport", "websocket", "reason", reason, "duration", time.Since(start))
	return nil
}
