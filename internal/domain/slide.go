package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Slide is a timed content unit shown on totems while ExpiresAt lies in the future.
type Slide struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	DurationSeconds int       `json:"durationSeconds"`
	BodyContent     string    `json:"bodyContent"`
	ExpiresAt       time.Time `json:"expiresAt"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ValidAt reports whether the slide may still be displayed at now.
func (s Slide) ValidAt(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// NewSlide carries the fields of a slide about to be inserted. CreatedAt is assigned by
// the caller so ordering follows the service clock rather than the database clock.
type NewSlide struct {
	Title           string
	DurationSeconds int
	BodyContent     string
	ExpiresAt       time.Time
	CreatedAt       time.Time
}

// SlidePatch is a partial update; nil fields are left untouched.
type SlidePatch struct {
	Title           *string
	DurationSeconds *int
	BodyContent     *string
	ExpiresAt       *time.Time
	UpdatedAt       time.Time
}

// Empty reports whether the patch changes no content field.
func (p SlidePatch) Empty() bool {
	return p.Title == nil && p.DurationSeconds == nil && p.BodyContent == nil && p.ExpiresAt == nil
}

// Apply returns a copy of s with the patch applied.
func (p SlidePatch) Apply(s Slide) Slide {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.DurationSeconds != nil {
		s.DurationSeconds = *p.DurationSeconds
	}
	if p.BodyContent != nil {
		s.BodyContent = *p.BodyContent
	}
	if p.ExpiresAt != nil {
		s.ExpiresAt = *p.ExpiresAt
	}
	if !p.UpdatedAt.IsZero() {
		s.UpdatedAt = p.UpdatedAt
	}
	return s
}

// SlideRepository is the durable content store. Point operations are expected to be
// atomic at the store layer; nothing above it adds locking.
type SlideRepository interface {
	Create(ctx context.Context, slide NewSlide) (*Slide, error)
	Get(ctx context.Context, id uuid.UUID) (*Slide, error)
	// List returns every stored slide, newest created first.
	List(ctx context.Context) ([]Slide, error)
	Update(ctx context.Context, id uuid.UUID, patch SlidePatch) (*Slide, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// DeleteExpired removes every slide whose ExpiresAt is strictly before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
