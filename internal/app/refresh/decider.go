package refresh

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/transitclock/refresher/internal/platform/timecodec"
)

// StalenessMode selects which cached departure the decider compares with now.
type StalenessMode string

const (
	// StalenessFirst inspects only the first stored estimate. The cache is
	// not sorted, so a later entry may already have departed unnoticed.
	StalenessFirst StalenessMode = "first"
	// StalenessEarliest inspects the earliest departure across the record.
	StalenessEarliest StalenessMode = "earliest"
)

var errEmptyCache = errors.New("empty cache")

// Decider decides whether a cached estimate set is stale.
type Decider struct {
	Mode StalenessMode
}

// NeedsRefresh reports whether a refresh is due. An empty, absent or
// undecodable record always needs one.
func (d Decider) NeedsRefresh(cached []byte, now time.Time) bool {
	stale, _ := d.Check(cached, now)
	return stale
}

// Check is NeedsRefresh with the reason a record could not be inspected.
// A non-nil error always comes with stale=true.
func (d Decider) Check(cached []byte, now time.Time) (stale bool, err error) {
	dep, err := d.referenceDeparture(cached)
	if err != nil {
		return true, err
	}
	return timecodec.Compare(now, dep) > 0, nil
}

func (d Decider) referenceDeparture(cached []byte) (time.Time, error) {
	if len(cached) == 0 {
		return time.Time{}, errEmptyCache
	}
	// Only departure_time is read so that an unrelated malformed field
	// elsewhere in the record does not force a refresh.
	var entries []struct {
		DepartureTime *string `json:"departure_time"`
	}
	if err := json.Unmarshal(cached, &entries); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrCorruptCache, err)
	}
	if len(entries) == 0 {
		return time.Time{}, errEmptyCache
	}

	n := 1
	if d.Mode == StalenessEarliest {
		n = len(entries)
	}
	var ref time.Time
	for i := 0; i < n; i++ {
		if entries[i].DepartureTime == nil {
			return time.Time{}, fmt.Errorf("%w: estimate %d has no departure_time", ErrCorruptCache, i)
		}
		t, err := timecodec.Parse(*entries[i].DepartureTime)
		if err != nil {
			return time.Time{}, err
		}
		if i == 0 || timecodec.Compare(t, ref) < 0 {
			ref = t
		}
	}
	return ref, nil
}
