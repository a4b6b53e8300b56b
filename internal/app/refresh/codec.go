package refresh

import (
	"encoding/json"
	"fmt"

	"github.com/transitclock/refresher/internal/domain"
)

// EncodeEstimateSet produces the cache persisted form: a JSON array of
// estimate objects, each carrying its originating leg under "leg".
func EncodeEstimateSet(set domain.EstimateSet) ([]byte, error) {
	if set == nil {
		set = domain.EstimateSet{}
	}
	return json.Marshal(set)
}

// DecodeEstimateSet parses a cache record. Any failure is reported as ErrCorruptCache.
func DecodeEstimateSet(data []byte) (domain.EstimateSet, error) {
	var set domain.EstimateSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCache, err)
	}
	if set == nil {
		// "null" is not an array.
		return nil, fmt.Errorf("%w: not an array", ErrCorruptCache)
	}
	return set, nil
}
