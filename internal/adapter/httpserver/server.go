// Package httpserver exposes the management API with its login sessions, the totem
// channels (SSE and WebSocket) and the operational endpoints over echo.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/LucasSchemes/servidor-propaganda/internal/adapter/metrics"
	"github.com/LucasSchemes/servidor-propaganda/internal/app"
	"github.com/LucasSchemes/servidor-propaganda/internal/broadcast"
	"github.com/LucasSchemes/servidor-propaganda/internal/domain"
	"github.com/LucasSchemes/servidor-propaganda/internal/platform/config"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
)

const (
	// sessionName is both the login cookie name and the securecookie name of bearer tokens.
	sessionName      = "token"
	sessionKeyUserID = "user_id"
	contextKeyUser   = "user"
)

type slideService interface {
	Create(ctx context.Context, in app.SlideInput) (*domain.Slide, error)
	List(ctx context.Context) ([]domain.Slide, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Slide, error)
	Update(ctx context.Context, id uuid.UUID, in app.SlideInput) (*domain.Slide, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type authService interface {
	Register(ctx context.Context, username, password string) (*domain.User, error)
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
	User(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type totemHub interface {
	Connect(ctx context.Context, sink broadcast.Sink) *broadcast.Session
}

// Options carries the optional collaborators of a Server.
type Options struct {
	HealthChecks   []HealthCheck
	HTTPMetrics    *metrics.HTTPMetrics
	MetricsHandler http.Handler
	Clock          clockwork.Clock
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	slides       slideService
	auth         authService
	sessionStore *sessions.CookieStore
	hub          totemHub
	limits       *totemLimits

	healthChecks   []HealthCheck
	httpMetrics    *metrics.HTTPMetrics
	metricsHandler http.Handler
	startTime      time.Time

	// closing is closed when shutdown begins, releasing long-lived totem handlers.
	closing   chan struct{}
	closeOnce sync.Once
}

func NewServer(cfg *config.Config, slides slideService, auth authService, hub totemHub, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:           e,
		config:         cfg,
		slides:         slides,
		auth:           auth,
		sessionStore:   setupSessionStore(cfg),
		hub:            hub,
		limits:         newTotemLimits(cfg, opts.Clock),
		healthChecks:   opts.HealthChecks,
		httpMetrics:    opts.HTTPMetrics,
		metricsHandler: opts.MetricsHandler,
		startTime:      opts.Clock.Now(),
		closing:        make(chan struct{}),
	}

	srv.registerRoutes()
	return srv
}

// Handler returns the root handler, for tests and custom listeners.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown releases every open totem stream, then drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func setupSessionStore(cfg *config.Config) *sessions.CookieStore {
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		slog.Warn("SESSION_SECRET not set, using a per-process key; logins end on restart")
		secret = securecookie.GenerateRandomKey(32)
	}

	sessionStore := sessions.NewCookieStore(secret)
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	// MaxAge also bounds how long the signed value, and so a bearer token, is accepted.
	sessionStore.MaxAge(int(cfg.SessionMaxAge.Seconds()))
	return sessionStore
}
