package httpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/LucasSchemes/servidor-propaganda/internal/adapter/memory"
	"github.com/LucasSchemes/servidor-propaganda/internal/app"
	"github.com/LucasSchemes/servidor-propaganda/internal/broadcast"
	"github.com/LucasSchemes/servidor-propaganda/internal/domain"
	"github.com/LucasSchemes/servidor-propaganda/internal/platform/config"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	srv      *Server
	http     *httptest.Server
	repo     *memory.SlideRepo
	users    *memory.UserRepo
	registry *broadcast.Registry
	hub      *broadcast.Hub
	clock    *clockwork.FakeClock
	notifier *app.LocalNotifier

	// adminToken is the bearer token of the first registered user.
	adminToken string
}

type envOption func(*config.Config)

func withTotemLimits(global, perIP int) envOption {
	return func(c *config.Config) {
		c.MaxTotemConnections = global
		c.MaxTotemConnectionsPerIP = perIP
	}
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                   "development",
		Port:                     "0",
		CORSAllowedOrigins:       []string{"http://localhost:5173"},
		HeartbeatInterval:        15 * time.Second,
		ReapInterval:             time.Hour,
		SinkWriteTimeout:         time.Second,
		SessionSecret:            "test-session-secret-0123456789abcdef",
		SessionMaxAge:            24 * time.Hour,
		MaxTotemConnections:      100,
		MaxTotemConnectionsPerIP: 100,
		TotemConnectRate:         1000,
		TotemConnectBurst:        1000,
		APIRateLimit:             1000,
		APIRateBurst:             1000,
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := testConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	clock := clockwork.NewFakeClockAt(testNow)
	repo := memory.NewSlideRepo()
	registry := broadcast.NewRegistry(nil)
	hub := broadcast.NewHub(repo, registry, clock, nil)
	notifier := app.NewLocalNotifier(hub)
	slides := app.NewSlideService(repo, notifier, clock)
	users := memory.NewUserRepo()
	auth := app.NewAuthService(users, clock)

	srv := NewServer(cfg, slides, auth, hub, Options{Clock: clock})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		hub.Close()
		ts.Close()
		notifier.Wait()
	})

	env := &testEnv{srv: srv, http: ts, repo: repo, users: users, registry: registry, hub: hub, clock: clock, notifier: notifier}
	env.adminToken = env.register(t, "admin", "admin-password").Token
	return env
}

// do sends the request as the admin user.
func (e *testEnv) do(t *testing.T, method, path, body string, headers ...string) *http.Response {
	t.Helper()
	return e.doAs(t, e.adminToken, method, path, body, headers...)
}

// doAs sends the request with token as bearer credentials; an empty token sends none.
// Explicit headers override the credentials.
func (e *testEnv) doAs(t *testing.T, token, method, path, body string, headers ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) register(t *testing.T, username, password string) authResponse {
	t.Helper()
	resp := e.doAs(t, "", http.MethodPost, "/api/auth/register", credentialsJSON(username, password))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeJSON[authResponse](t, resp)
}

func credentialsJSON(username, password string) string {
	b, _ := json.Marshal(credentialsRequest{Username: username, Password: password})
	return string(b)
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) createSlide(t *testing.T, title string, expiresIn time.Duration) domain.Slide {
	t.Helper()
	body := slideJSON(title, 10, "<p>"+title+"</p>", testNow.Add(expiresIn))
	resp := e.do(t, http.MethodPost, "/api/slides", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeJSON[domain.Slide](t, resp)
}

func slideJSON(title string, duration int, body string, expires time.Time) string {
	b, _ := json.Marshal(map[string]any{
		"title":           title,
		"durationSeconds": duration,
		"bodyContent":     body,
		"expiresAt":       expires.Format(time.RFC3339),
	})
	return string(b)
}

type sseEvent struct {
	Event string
	Data  string
}

// sseStream reads events from an open /api/events response in the background.
type sseStream struct {
	events chan sseEvent
	resp   *http.Response
}

func (e *testEnv) openStream(t *testing.T) *sseStream {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.http.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	s := &sseStream{events: make(chan sseEvent, 64), resp: resp}
	go s.read()
	t.Cleanup(func() {
		cancel()
		_ = resp.Body.Close()
	})
	return s
}

func (s *sseStream) read() {
	defer close(s.events)
	reader := bufio.NewReader(s.resp.Body)
	var ev sseEvent
	var data bytes.Buffer
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			ev.Data = data.String()
			if ev.Event == "" {
				ev.Event = broadcast.EventMessage
			}
			s.events <- ev
			ev, data = sseEvent{}, bytes.Buffer{}
		case strings.HasPrefix(line, "event: "):
			ev.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(line, "data: "))
		}
	}
}

func (s *sseStream) next(t *testing.T) sseEvent {
	t.Helper()
	select {
	case ev, ok := <-s.events:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return sseEvent{}
	}
}

func (s *sseStream) nextSlides(t *testing.T) []string {
	t.Helper()
	ev := s.next(t)
	require.Equal(t, broadcast.EventMessage, ev.Event)
	var slides []domain.Slide
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &slides))
	titles := make([]string, 0, len(slides))
	for _, sl := range slides {
		titles = append(titles, sl.Title)
	}
	return titles
}
