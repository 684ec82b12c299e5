// Package memory provides in-process slide and user stores for development and tests.
package memory

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/LucasSchemes/servidor-propaganda/internal/domain"
	"github.com/google/uuid"
)

// SlideRepo is a mutex-guarded map implementing domain.SlideRepository. Contents are
// lost on restart.
type SlideRepo struct {
	mu     sync.RWMutex
	slides map[uuid.UUID]domain.Slide
}

func NewSlideRepo() *SlideRepo {
	return &SlideRepo{slides: make(map[uuid.UUID]domain.Slide)}
}

func (r *SlideRepo) Create(_ context.Context, in domain.NewSlide) (*domain.Slide, error) {
	slide := domain.Slide{
		ID:              uuid.New(),
		Title:           in.Title,
		DurationSeconds: in.DurationSeconds,
		BodyContent:     in.BodyContent,
		ExpiresAt:       in.ExpiresAt,
		CreatedAt:       in.CreatedAt,
		UpdatedAt:       in.CreatedAt,
	}

	r.mu.Lock()
	r.slides[slide.ID] = slide
	r.mu.Unlock()
	return &slide, nil
}

func (r *SlideRepo) Get(_ context.Context, id uuid.UUID) (*domain.Slide, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slide, ok := r.slides[id]
	if !ok {
		return nil, domain.ErrSlideNotFound
	}
	return &slide, nil
}

func (r *SlideRepo) List(_ context.Context) ([]domain.Slide, error) {
	r.mu.RLock()
	out := make([]domain.Slide, 0, len(r.slides))
	for _, s := range r.slides {
		out = append(out, s)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Slide) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare(b.ID[:], a.ID[:])
	})
	return out, nil
}

func (r *SlideRepo) Update(_ context.Context, id uuid.UUID, patch domain.SlidePatch) (*domain.Slide, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slide, ok := r.slides[id]
	if !ok {
		return nil, domain.ErrSlideNotFound
	}
	slide = patch.Apply(slide)
	r.slides[id] = slide
	return &slide, nil
}

func (r *SlideRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slides[id]; !ok {
		return domain.ErrSlideNotFound
	}
	delete(r.slides, id)
	return nil
}

func (r *SlideRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.slides {
		if s.ExpiresAt.Before(now) {
			delete(r.slides, id)
			n++
		}
	}
	return n, nil
}
