package domain

import (
	"fmt"
	"strconv"
)

// SubscriberID identifies one independent widget instance.
// All cache, credential and schedule state is partitioned by it.
type SubscriberID int64

func (id SubscriberID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseSubscriberID parses the decimal form produced by String.
func ParseSubscriberID(s string) (SubscriberID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid subscriber id %q: %w", s, err)
	}
	return SubscriberID(v), nil
}

// LegID is the upstream identifier of a tracked leg.
type LegID int
