package refresh

import "github.com/transitclock/refresher/internal/domain"

// ConfigInput is the configuration entered for a subscriber.
type ConfigInput struct {
	URL      string
	Username string
	Password string
}

// CycleResult is what the I/O phase of a cycle hands to the renderer.
type CycleResult struct {
	Subscriber domain.SubscriberID
	CycleID    string
	Outcome    string
	Decision   domain.ScheduleDecision
	Rows       []domain.Row

	// Removed is set when the subscriber was torn down while the cycle ran.
	// Nothing was persisted, scheduled or should be rendered.
	Removed bool

	generation uint64
}
