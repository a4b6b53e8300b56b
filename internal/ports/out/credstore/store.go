package credstore

import (
	"context"

	"github.com/transitclock/refresher/internal/domain"
)

// Store persists upstream credentials per subscriber.
type Store interface {
	// Load returns ok=false when the subscriber has no credentials.
	Load(ctx context.Context, id domain.SubscriberID) (creds domain.Credentials, ok bool, err error)
	Save(ctx context.Context, id domain.SubscriberID, creds domain.Credentials) error
	// Delete is a no-op for unknown subscribers.
	Delete(ctx context.Context, id domain.SubscriberID) error
	// List returns every subscriber with stored credentials, ordered by id.
	List(ctx context.Context) ([]domain.SubscriberID, error)
}
