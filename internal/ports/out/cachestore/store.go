package cachestore

import (
	"context"

	"github.com/transitclock/refresher/internal/domain"
)

// Store persists the serialized estimate set of each subscriber.
// Records are opaque bytes and are always replaced wholesale.
type Store interface {
	Load(ctx context.Context, id domain.SubscriberID) (data []byte, ok bool, err error)
	Save(ctx context.Context, id domain.SubscriberID, data []byte) error
	Delete(ctx context.Context, id domain.SubscriberID) error
}
