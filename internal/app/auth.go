package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/LucasSchemes/servidor-propaganda/internal/domain"
	apperrors "github.com/LucasSchemes/servidor-propaganda/internal/platform/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxUsernameLength = 64
	// bcrypt rejects passwords longer than 72 bytes.
	maxPasswordBytes = 72
)

// AuthService registers accounts and checks credentials. Sessions live in the HTTP
// layer; this service only answers "who is this".
type AuthService struct {
	users domain.UserRepository
	clock clockwork.Clock
	cost  int

	dummyHash func() []byte
}

func NewAuthService(users domain.UserRepository, clock clockwork.Clock) *AuthService {
	s := &AuthService{users: users, clock: clock, cost: bcrypt.DefaultCost}
	s.dummyHash = sync.OnceValue(func() []byte {
		hash, _ := bcrypt.GenerateFromPassword([]byte("unused"), s.cost)
		return hash
	})
	return s
}

// NormalizeUsername is the stored form of a username: trimmed and lower-cased.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Register creates an account. The first account ever created is an admin, every
// later one a reader.
func (s *AuthService) Register(ctx context.Context, username, password string) (*domain.User, error) {
	name := NormalizeUsername(username)
	if err := validateCredentials(name, password); err != nil {
		return nil, err
	}
	if len(name) > maxUsernameLength {
		return nil, apperrors.ValidationError(fmt.Sprintf("username must be at most %d characters", maxUsernameLength)).
			WithField("field", "username")
	}
	if len(password) > maxPasswordBytes {
		return nil, apperrors.ValidationError(fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes)).
			WithField("field", "password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, domain.NewUser{
		Username:     name,
		PasswordHash: string(hash),
		CreatedAt:    s.clock.Now().UTC(),
	})
	if errors.Is(err, domain.ErrUsernameTaken) {
		return nil, apperrors.ConflictError("username already taken").WithField("username", name)
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "User registered", "user_id", user.ID, "username", user.Username, "role", user.Role)
	return user, nil
}

// Authenticate returns the account matching the credentials. Unknown usernames and
// wrong passwords give the same error.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	name := NormalizeUsername(username)
	if err := validateCredentials(name, password); err != nil {
		return nil, err
	}

	user, err := s.users.GetByUsername(ctx, name)
	if errors.Is(err, domain.ErrUserNotFound) {
		// Unknown usernames still pay for one comparison.
		_ = bcrypt.CompareHashAndPassword(s.dummyHash(), []byte(password))
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, invalidCredentials()
	}
	return user, nil
}

// User resolves a session's account. A session naming a deleted account is treated as
// unauthenticated.
func (s *AuthService) User(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, apperrors.UnauthorizedError("session user no longer exists").WithField("user_id", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return user, nil
}

func validateCredentials(username, password string) error {
	if username == "" || password == "" {
		return apperrors.ValidationError("username and password are required")
	}
	return nil
}

func invalidCredentials() error {
	return apperrors.UnauthorizedError("invalid username or password")
}
