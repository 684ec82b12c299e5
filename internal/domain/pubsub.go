package domain

import (
	"context"
)

// ChangeNotifier announces that the stored slide set changed. Implementations must not
// block the caller on delivery to display clients.
type ChangeNotifier interface {
	SlidesChanged(ctx context.Context)
}
