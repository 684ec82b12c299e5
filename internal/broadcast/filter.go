package broadcast

import (
	"bytes"
	"slices"
	"time"

	"github.com/LucasSchemes/servidor-propaganda/internal/domain"
)

// ValidSlides returns the slides of snapshot that are still valid at now, oldest created
// first. Slides created at the same instant are ordered by id so the result is
// deterministic. The snapshot is not modified; the result is never nil.
func ValidSlides(snapshot []domain.Slide, now time.Time) []domain.Slide {
	valid := make([]domain.Slide, 0, len(snapshot))
	for _, s := range snapshot {
		if s.ValidAt(now) {
			valid = append(valid, s)
		}
	}

	slices.SortStableFunc(valid, func(a, b domain.Slide) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	return valid
}
