package renderer

import (
	"context"

	"github.com/transitclock/refresher/internal/domain"
)

// Renderer receives the rows produced at the end of each cycle.
type Renderer interface {
	Render(ctx context.Context, id domain.SubscriberID, rows []domain.Row) error
	// Clear drops whatever is displayed for a removed subscriber.
	Clear(ctx context.Context, id domain.SubscriberID) error
}
