package clock

import "time"

// Clock provides "now" to the refresh engine.
// Staleness and scheduling compare against it, so tests substitute a manual clock.
type Clock interface {
	Now() time.Time
}
