package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Role is a user's permission level. The numeric values are part of the API.
type Role int

const (
	// RoleReader may log in but not manage slides.
	RoleReader Role = 0
	// RoleAdmin may manage slides. The first registered user gets it.
	RoleAdmin Role = 1
)

// User is an account of the management API.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// NewUser carries an account about to be inserted. The role is not part of it: the
// repository decides it.
type NewUser struct {
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// UserRepository stores accounts. Usernames are unique and stored already normalized.
type UserRepository interface {
	// Create inserts the account with RoleAdmin when no account exists yet and
	// RoleReader otherwise. The check and the insert are atomic.
	Create(ctx context.Context, user NewUser) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
}
