package wakeup

import (
	"context"
	"time"

	"github.com/transitclock/refresher/internal/domain"
)

// Scheduler requests a future refresh trigger for a subscriber.
//
// Implementations keep at most one pending wake-up per subscriber:
// ScheduleAt replaces any earlier request atomically.
type Scheduler interface {
	ScheduleAt(ctx context.Context, id domain.SubscriberID, at time.Time) error
	Cancel(ctx context.Context, id domain.SubscriberID) error
}
