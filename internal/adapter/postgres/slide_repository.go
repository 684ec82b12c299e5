package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LucasSchemes/servidor-propaganda/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const slideColumns = "id, title, duration_seconds, body_content, expires_at, created_at, updated_at"

type SlideRepo struct {
	pool *pgxpool.Pool
}

var _ domain.SlideRepository = (*SlideRepo)(nil)

func NewSlideRepo(pool *pgxpool.Pool) *SlideRepo {
	return &SlideRepo{pool: pool}
}

func scanSlide(row pgx.Row) (*domain.Slide, error) {
	var s domain.Slide
	if err := row.Scan(&s.ID, &s.Title, &s.DurationSeconds, &s.BodyContent, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

func (r *SlideRepo) Create(ctx context.Context, in domain.NewSlide) (*domain.Slide, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO slides (title, duration_seconds, body_content, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING `+slideColumns,
		in.Title, in.DurationSeconds, in.BodyContent, in.ExpiresAt, in.CreatedAt)

	slide, err := scanSlide(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert slide: %w", err)
	}
	return slide, nil
}

func (r *SlideRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Slide, error) {
	slide, err := scanSlide(r.pool.QueryRow(ctx, `SELECT `+slideColumns+` FROM slides WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSlideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slide: %w", err)
	}
	return slide, nil
}

func (r *SlideRepo) List(ctx context.Context) ([]domain.Slide, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+slideColumns+` FROM slides ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list slides: %w", err)
	}

	slides, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Slide, error) {
		s, err := scanSlide(row)
		if err != nil {
			return domain.Slide{}, err
		}
		return *s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan slides: %w", err)
	}
	return slides, nil
}

// Update writes only the supplied fields; COALESCE keeps the stored value for the rest.
func (r *SlideRepo) Update(ctx context.Context, id uuid.UUID, patch domain.SlidePatch) (*domain.Slide, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slides SET
			title            = COALESCE($2, title),
			duration_seconds = COALESCE($3, duration_seconds),
			body_content     = COALESCE($4, body_content),
			expires_at       = COALESCE($5, expires_at),
			updated_at       = $6
		WHERE id = $1
		RETURNING `+slideColumns,
		id, patch.Title, patch.DurationSeconds, patch.BodyContent, patch.ExpiresAt, patch.UpdatedAt)

	slide, err := scanSlide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSlideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update slide: %w", err)
	}
	return slide, nil
}

func (r *SlideRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM slides WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete slide: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSlideNotFound
	}
	return nil
}

func (r *SlideRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM slides WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired slides: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping reports whether the database answers. /health/ready calls it.
func (r *SlideRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
