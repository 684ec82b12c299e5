package memory

import (
	"context"
	"sync"

	"github.com/LucasSchemes/servidor-propaganda/internal/domain"
	"github.com/google/uuid"
)

// UserRepo implements domain.UserRepository over two maps under one mutex.
type UserRepo struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]domain.User
	byUsername map[string]uuid.UUID
}

var _ domain.UserRepository = (*UserRepo)(nil)

func NewUserRepo() *UserRepo {
	return &UserRepo{
		byID:       make(map[uuid.UUID]domain.User),
		byUsername: make(map[string]uuid.UUID),
	}
}

func (r *UserRepo) Create(_ context.Context, in domain.NewUser) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byUsername[in.Username]; taken {
		return nil, domain.ErrUsernameTaken
	}

	role := domain.RoleReader
	if len(r.byID) == 0 {
		role = domain.RoleAdmin
	}
	user := domain.User{
		ID:           uuid.New(),
		Username:     in.Username,
		PasswordHash: in.PasswordHash,
		Role:         role,
		CreatedAt:    in.CreatedAt,
	}
	r.byID[user.ID] = user
	r.byUsername[user.Username] = user.ID
	return &user, nil
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &user, nil
}

func (r *UserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUsername[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	user := r.byID[id]
	return &user, nil
}
