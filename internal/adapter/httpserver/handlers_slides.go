package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/LucasSchemes/servidor-propaganda/internal/app"
	"github.com/LucasSchemes/servidor-propaganda/internal/domain"
	apperrors "github.com/LucasSchemes/servidor-propaganda/internal/platform/errors"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const maxSlideBodyBytes = 1 << 20

// slideRequest uses pointers so an absent field can be told apart from a zero value.
type slideRequest struct {
	Title           *string    `json:"title"`
	DurationSeconds *int       `json:"durationSeconds"`
	BodyContent     *string    `json:"bodyContent"`
	ExpiresAt       *time.Time `json:"expiresAt"`
}

func (r slideRequest) toInput() app.SlideInput {
	return app.SlideInput{
		Title:           r.Title,
		DurationSeconds: r.DurationSeconds,
		BodyContent:     r.BodyContent,
		ExpiresAt:       r.ExpiresAt,
	}
}

func (s *Server) registerSlideRoutes() {
	api := s.echo.Group("/api/slides")
	api.Use(newRateLimiter(s.config.APIRateLimit, s.config.APIRateBurst), s.requireUser, requireAdmin)

	api.POST("", s.handleCreateSlide)
	api.GET("", s.handleListSlides)
	api.GET("/:id", s.handleGetSlide)
	api.PUT("/:id", s.handleUpdateSlide)
	api.DELETE("/:id", s.handleDeleteSlide)
}

func (s *Server) handleCreateSlide(c echo.Context) error {
	req, err := decodeSlideRequest(c)
	if err != nil {
		return err
	}

	slide, err := s.slides.Create(c.Request().Context(), req.toInput())
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusCreated, slide); err != nil {
		return fmt.Errorf("failed to write slide response: %w", err)
	}
	return nil
}

func (s *Server) handleListSlides(c echo.Context) error {
	slides, err := s.slides.List(c.Request().Context())
	if err != nil {
		return err
	}
	if slides == nil {
		slides = []domain.Slide{}
	}
	if err := c.JSON(http.StatusOK, slides); err != nil {
		return fmt.Errorf("failed to write slides response: %w", err)
	}
	return nil
}

func (s *Server) handleGetSlide(c echo.Context) error {
	id, err := slideID(c)
	if err != nil {
		return err
	}

	slide, err := s.slides.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, slide); err != nil {
		return fmt.Errorf("failed to write slide response: %w", err)
	}
	return nil
}

func (s *Server) handleUpdateSlide(c echo.Context) error {
	id, err := slideID(c)
	if err != nil {
		return err
	}
	req, err := decodeSlideRequest(c)
	if err != nil {
		return err
	}

	slide, err := s.slides.Update(c.Request().Context(), id, req.toInput())
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, slide); err != nil {
		return fmt.Errorf("failed to write slide response: %w", err)
	}
	return nil
}

func (s *Server) handleDeleteSlide(c echo.Context) error {
	id, err := slideID(c)
	if err != nil {
		return err
	}

	if err := s.slides.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	if err := c.NoContent(http.StatusNoContent); err != nil {
		return fmt.Errorf("failed to write delete response: %w", err)
	}
	return nil
}

// slideID parses the :id path parameter. A malformed id cannot name a stored slide, so
// it is reported as not found.
func slideID(c echo.Context) (uuid.UUID, error) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.NotFoundError("slide not found").WithField("slide_id", raw)
	}
	return id, nil
}

func decodeSlideRequest(c echo.Context) (slideRequest, error) {
	var req slideRequest
	body := http.MaxBytesReader(c.Response(), c.Request().Body, maxSlideBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return slideRequest{}, apperrors.ValidationError("request body must be a JSON slide object").
			WithField("decode_error", err.Error())
	}
	return req, nil
}
