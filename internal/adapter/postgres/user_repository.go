package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/LucasSchemes/servidor-propaganda/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	userColumns = "id, username, password_hash, role, created_at"

	// userCreateLockID serializes registrations so only one can see an empty table.
	// Value: 0x7573657273 ("users" in ASCII hex)
	userCreateLockID = 0x7573657273

	uniqueViolation = "23505"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

var _ domain.UserRepository = (*UserRepo)(nil)

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

// Create decides the role inside the insert while holding a transaction-scoped
// advisory lock, so two concurrent first registrations cannot both become admin.
func (r *UserRepo) Create(ctx context.Context, in domain.NewUser) (*domain.User, error) {
	var user *domain.User
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, userCreateLockID); err != nil {
			return fmt.Errorf("failed to lock users: %w", err)
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO users (username, password_hash, role, created_at)
			VALUES ($1, $2, CASE WHEN EXISTS (SELECT 1 FROM users) THEN $3::smallint ELSE $4::smallint END, $5)
			RETURNING `+userColumns,
			in.Username, in.PasswordHash, int16(domain.RoleReader), int16(domain.RoleAdmin), in.CreatedAt)

		var err error
		user, err = scanUser(row)
		return err
	})

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil, domain.ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
