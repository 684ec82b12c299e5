package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/LucasSchemes/servidor-propaganda/internal/domain"
	apperrors "github.com/LucasSchemes/servidor-propaganda/internal/platform/errors"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
)

const maxCredentialsBodyBytes = 4 << 10

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// authResponse carries the bearer token as well as setting the cookie, for clients
// that cannot hold cookies.
type authResponse struct {
	ID       uuid.UUID   `json:"id"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
	Token    string      `json:"token"`
}

type meResponse struct {
	LoggedIn bool         `json:"loggedIn"`
	User     *domain.User `json:"user,omitempty"`
}

func (s *Server) registerAuthRoutes() {
	auth := s.echo.Group("/api/auth")
	auth.Use(newRateLimiter(s.config.APIRateLimit, s.config.APIRateBurst))

	auth.POST("/register", s.handleRegister)
	auth.POST("/login", s.handleLogin)
	auth.POST("/logout", s.handleLogout)
	auth.GET("/me", s.handleMe)
}

// requireUser rejects requests without a valid session with 401 and stores the
// session's user in the echo context.
func (s *Server) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := s.currentUser(c)
		if err != nil {
			return err
		}
		c.Set(contextKeyUser, user)
		return next(c)
	}
}

// requireAdmin must run after requireUser.
func requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := c.Get(contextKeyUser).(*domain.User)
		if !ok {
			return apperrors.UnauthorizedError("not logged in")
		}
		if !user.IsAdmin() {
			return apperrors.ForbiddenError("admin role required").WithField("user_id", user.ID.String())
		}
		return next(c)
	}
}

func (s *Server) handleRegister(c echo.Context) error {
	req, err := decodeCredentials(c)
	if err != nil {
		return err
	}

	user, err := s.auth.Register(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return s.respondWithSession(c, http.StatusCreated, user)
}

func (s *Server) handleLogin(c echo.Context) error {
	req, err := decodeCredentials(c)
	if err != nil {
		return err
	}

	user, err := s.auth.Authenticate(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}

	slog.InfoContext(c.Request().Context(), "User logged in", "user_id", user.ID, "username", user.Username)
	return s.respondWithSession(c, http.StatusOK, user)
}

func (s *Server) handleLogout(c echo.Context) error {
	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		// An unreadable cookie is replaced by the expired one below all the same.
		slog.DebugContext(c.Request().Context(), "Discarding unreadable session cookie", "error", err)
	}
	session.Options.MaxAge = -1
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to clear session", err)
	}

	if err := c.JSON(http.StatusOK, map[string]string{"message": "logged out"}); err != nil {
		return fmt.Errorf("failed to write logout response: %w", err)
	}
	return nil
}

// handleMe answers 200 either way; only a store failure is an error.
func (s *Server) handleMe(c echo.Context) error {
	user, err := s.currentUser(c)
	var structured *apperrors.Error
	if err != nil && (!errors.As(err, &structured) || structured.Type != apperrors.TypeUnauthorized) {
		return err
	}

	if err := c.JSON(http.StatusOK, meResponse{LoggedIn: user != nil, User: user}); err != nil {
		return fmt.Errorf("failed to write session response: %w", err)
	}
	return nil
}

// respondWithSession starts a fresh session for user, so no value from an earlier
// cookie survives the login, and writes the account with its bearer token.
func (s *Server) respondWithSession(c echo.Context, status int, user *domain.User) error {
	session := sessions.NewSession(s.sessionStore, sessionName)
	opts := *s.sessionStore.Options
	session.Options = &opts
	session.IsNew = true
	session.Values[sessionKeyUserID] = user.ID.String()

	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save session", err)
	}
	token, err := securecookie.EncodeMulti(sessionName, session.Values, s.sessionStore.Codecs...)
	if err != nil {
		return apperrors.InternalError("failed to issue token", err)
	}

	resp := authResponse{ID: user.ID, Username: user.Username, Role: user.Role, Token: token}
	if err := c.JSON(status, resp); err != nil {
		return fmt.Errorf("failed to write auth response: %w", err)
	}
	return nil
}

// currentUser resolves the session from the token cookie, then from an
// "Authorization: Bearer <token>" header, and loads its user.
func (s *Server) currentUser(c echo.Context) (*domain.User, error) {
	id, ok := s.cookieUserID(c)
	if !ok {
		id, ok = s.bearerUserID(c)
	}
	if !ok {
		return nil, apperrors.UnauthorizedError("not logged in")
	}
	return s.auth.User(c.Request().Context(), id)
}

func (s *Server) cookieUserID(c echo.Context) (uuid.UUID, bool) {
	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return uuid.Nil, false
	}
	return userIDFrom(session.Values)
}

func (s *Server) bearerUserID(c echo.Context) (uuid.UUID, bool) {
	scheme, token, found := strings.Cut(c.Request().Header.Get(echo.HeaderAuthorization), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return uuid.Nil, false
	}

	values := make(map[any]any)
	if err := securecookie.DecodeMulti(sessionName, strings.TrimSpace(token), &values, s.sessionStore.Codecs...); err != nil {
		return uuid.Nil, false
	}
	return userIDFrom(values)
}

func userIDFrom(values map[any]any) (uuid.UUID, bool) {
	raw, ok := values[sessionKeyUserID].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func decodeCredentials(c echo.Context) (credentialsRequest, error) {
	var req credentialsRequest
	body := http.MaxBytesReader(c.Response(), c.Request().Body, maxCredentialsBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return credentialsRequest{}, apperrors.ValidationError("request body must be a JSON object with username and password").
			WithField("decode_error", err.Error())
	}
	return req, nil
}
