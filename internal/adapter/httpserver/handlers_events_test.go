package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/LucasSchemes/servidor-propaganda/internal/broadcast"
	"github.com/LucasSchemes/servidor-propaganda/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvents_FirstFrameIsEmptyArray(t *testing.T) {
	env := newTestEnv(t)

	stream := env.openStream(t)

	ev := stream.next(t)
	assert.Equal(t, broadcast.EventMessage, ev.Event)
	assert.Equal(t, "[]", ev.Data)
}

func TestEvents_FirstFrameCarriesCurrentSlides(t *testing.T) {
	env := newTestEnv(t)
	env.createSlide(t, "A", time.Hour)
	env.clock.Advance(time.Second)
	env.createSlide(t, "B", time.Hour)
	env.notifier.Wait()

	stream := env.openStream(t)

	assert.Equal(t, []string{"A", "B"}, stream.nextSlides(t))
}

func TestEvents_CreateThenDeletePushesFrames(t *testing.T) {
	env := newTestEnv(t)
	stream := env.openStream(t)
	require.Empty(t, stream.nextSlides(t))

	created := env.createSlide(t, "A", time.Hour)
	assert.Equal(t, []string{"A"}, stream.nextSlides(t))

	resp := env.do(t, http.MethodDelete, "/api/slides/"+created.ID.String(), "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, stream.nextSlides(t))
}

func TestEvents_UpdatePushesNewContent(t *testing.T) {
	env := newTestEnv(t)
	created := env.createSlide(t, "A", time.Hour)
	env.notifier.Wait()
	stream := env.openStream(t)
	require.Equal(t, []string{"A"}, stream.nextSlides(t))

	resp := env.do(t, http.MethodPut, "/api/slides/"+created.ID.String(), `{"title":"A2"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []string{"A2"}, stream.nextSlides(t))
}

func TestEvents_ExpiredSlidesAreNotPushedButStillListed(t *testing.T) {
	env := newTestEnv(t)
	stream := env.openStream(t)
	require.Empty(t, stream.nextSlides(t))

	env.createSlide(t, "A", time.Hour)
	require.Equal(t, []string{"A"}, stream.nextSlides(t))

	env.clock.Advance(time.Second)
	env.createSlide(t, "B", -time.Minute)
	assert.Equal(t, []string{"A"}, stream.nextSlides(t))

	listed := decodeJSON[[]domain.Slide](t, env.do(t, http.MethodGet, "/api/slides", ""))
	assert.Len(t, listed, 2)
}

func TestEvents_SlideExpiringBetweenPublishesDropsOut(t *testing.T) {
	env := newTestEnv(t)
	stream := env.openStream(t)
	require.Empty(t, stream.nextSlides(t))

	env.createSlide(t, "short", time.Minute)
	require.Equal(t, []string{"short"}, stream.nextSlides(t))

	env.clock.Advance(2 * time.Minute)
	env.createSlide(t, "long", time.Hour)

	assert.Equal(t, []string{"long"}, stream.nextSlides(t))
}

func TestEvents_EveryStreamReceivesPublishes(t *testing.T) {
	env := newTestEnv(t)
	streams := []*sseStream{env.openStream(t), env.openStream(t), env.openStream(t)}
	for _, s := range streams {
		require.Empty(t, s.nextSlides(t))
	}

	env.createSlide(t, "A", time.Hour)

	for _, s := range streams {
		assert.Equal(t, []string{"A"}, s.nextSlides(t))
	}
	assert.Equal(t, 3, env.registry.Len())
}

func TestEvents_HeartbeatSendsPing(t *testing.T) {
	env := newTestEnv(t)
	stream := env.openStream(t)
	require.Empty(t, stream.nextSlides(t))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	hb := broadcast.NewHeartbeat(env.registry, env.clock, 15*time.Second)
	go hb.Run(ctx)
	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))

	env.clock.Advance(15 * time.Second)

	ev := stream.next(t)
	assert.Equal(t, broadcast.EventPing, ev.Event)
	assert.Empty(t, ev.Data)
}

func TestEvents_ClientDisconnectDeregisters(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.http.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return env.registry.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()

	assert.Eventually(t, func() bool { return env.registry.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEvents_ShutdownEndsStreams(t *testing.T) {
	env := newTestEnv(t)
	stream := env.openStream(t)
	require.Empty(t, stream.nextSlides(t))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, env.srv.Shutdown(shutdownCtx))

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-stream.events:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return env.registry.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEvents_PerIPLimitReturns429(t *testing.T) {
	env := newTestEnv(t, withTotemLimits(100, 1))
	stream := env.openStream(t)
	require.Empty(t, stream.nextSlides(t))

	resp := env.do(t, http.MethodGet, "/api/events", "")

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_limited", decodeJSON[map[string]any](t, resp)["type"])
}

func TestEvents_GlobalLimitReturns503(t *testing.T) {
	env := newTestEnv(t, withTotemLimits(1, 10))
	stream := env.openStream(t)
	require.Empty(t, stream.nextSlides(t))

	resp := env.do(t, http.MethodGet, "/api/events", "")

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func dialTotemWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/api/events/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = resp.Body.Close()
		_ = conn.Close()
	})
	return conn
}

func readWSSlides(t *testing.T, conn *websocket.Conn) []string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)

	var slides []domain.Slide
	require.NoError(t, json.Unmarshal(data, &slides))
	titles := make([]string, 0, len(slides))
	for _, s := range slides {
		titles = append(titles, s.Title)
	}
	return titles
}

func TestEventsWebSocket_ReceivesSyncAndUpdates(t *testing.T) {
	env := newTestEnv(t)
	conn := dialTotemWS(t, env)

	assert.Empty(t, readWSSlides(t, conn))

	env.createSlide(t, "A", time.Hour)

	assert.Equal(t, []string{"A"}, readWSSlides(t, conn))
}

func TestEventsWebSocket_HeartbeatIsPingControlFrame(t *testing.T) {
	env := newTestEnv(t)
	conn := dialTotemWS(t, env)
	require.Empty(t, readWSSlides(t, conn))
	require.NoError(t, conn.SetReadDeadline(time.Time{}))

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go broadcast.NewHeartbeat(env.registry, env.clock, 15*time.Second).Run(ctx)
	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))

	env.clock.Advance(15 * time.Second)

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}

func TestEventsWebSocket_RejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/api/events/ws"

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)

	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, env.registry.Len())
}
