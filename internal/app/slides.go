package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/LucasSchemes/servidor-propaganda/internal/domain"
	apperrors "github.com/LucasSchemes/servidor-propaganda/internal/platform/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// SlideInput carries client-supplied slide fields. A nil field was absent from the
// request body.
type SlideInput struct {
	Title           *string
	DurationSeconds *int
	BodyContent     *string
	ExpiresAt       *time.Time
}

// SlideService validates slide mutations, applies them to the store and announces every
// successful change.
type SlideService struct {
	repo     domain.SlideRepository
	notifier domain.ChangeNotifier
	clock    clockwork.Clock
}

func NewSlideService(repo domain.SlideRepository, notifier domain.ChangeNotifier, clock clockwork.Clock) *SlideService {
	return &SlideService{repo: repo, notifier: notifier, clock: clock}
}

// Create stores a new slide. All four content fields are required.
func (s *SlideService) Create(ctx context.Context, in SlideInput) (*domain.Slide, error) {
	if in.Title == nil || in.DurationSeconds == nil || in.BodyContent == nil || in.ExpiresAt == nil {
		return nil, apperrors.ValidationError("title, durationSeconds, bodyContent and expiresAt are required")
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	slide, err := s.repo.Create(ctx, domain.NewSlide{
		Title:           strings.TrimSpace(*in.Title),
		DurationSeconds: *in.DurationSeconds,
		BodyContent:     *in.BodyContent,
		ExpiresAt:       in.ExpiresAt.UTC(),
		CreatedAt:       s.clock.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("create slide: %w", err)
	}

	s.notifier.SlidesChanged(ctx)
	return slide, nil
}

// List returns every stored slide, expired ones included, newest first.
func (s *SlideService) List(ctx context.Context) ([]domain.Slide, error) {
	slides, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list slides: %w", err)
	}
	return slides, nil
}

func (s *SlideService) Get(ctx context.Context, id uuid.UUID) (*domain.Slide, error) {
	slide, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, translateRepoError(err, id, "get slide")
	}
	return slide, nil
}

// Update applies the supplied fields to an existing slide. At least one field is needed.
func (s *SlideService) Update(ctx context.Context, id uuid.UUID, in SlideInput) (*domain.Slide, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	patch := domain.SlidePatch{
		Title:           in.Title,
		DurationSeconds: in.DurationSeconds,
		BodyContent:     in.BodyContent,
		UpdatedAt:       s.clock.Now().UTC(),
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		patch.Title = &title
	}
	if in.ExpiresAt != nil {
		expires := in.ExpiresAt.UTC()
		patch.ExpiresAt = &expires
	}
	if patch.Empty() {
		return nil, apperrors.ValidationError("at least one of title, durationSeconds, bodyContent, expiresAt is required")
	}

	slide, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, translateRepoError(err, id, "update slide")
	}

	s.notifier.SlidesChanged(ctx)
	return slide, nil
}

func (s *SlideService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return translateRepoError(err, id, "delete slide")
	}

	s.notifier.SlidesChanged(ctx)
	return nil
}

// validateInput checks every supplied field; absent fields are not checked.
func validateInput(in SlideInput) error {
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return apperrors.ValidationError("title must not be empty").WithField("field", "title")
	}
	if in.DurationSeconds != nil && (*in.DurationSeconds <= 0 || *in.DurationSeconds > math.MaxInt32) {
		return apperrors.ValidationError("durationSeconds must be a positive integer of at most 2147483647").
			WithField("field", "durationSeconds").
			WithField("value", *in.DurationSeconds)
	}
	if in.BodyContent != nil && *in.BodyContent == "" {
		return apperrors.ValidationError("bodyContent must not be empty").WithField("field", "bodyContent")
	}
	if in.ExpiresAt != nil && in.ExpiresAt.IsZero() {
		return apperrors.ValidationError("expiresAt must be a valid timestamp").WithField("field", "expiresAt")
	}
	return nil
}

func translateRepoError(err error, id uuid.UUID, op string) error {
	if errors.Is(err, domain.ErrSlideNotFound) {
		return apperrors.NotFoundError("slide not found").WithField("slide_id", id.String())
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}
