package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/oapi-codegen/nullable"
)

// Leg is one tracked journey segment. Only the fields the engine needs are
// decoded; the upstream object is retained as-is so that it round-trips
// through the cache unchanged.
type Leg struct {
	ID            LegID
	LineShortName string
	Direction     string

	raw json.RawMessage
}

var errLegMissingID = errors.New("leg has no integer id")

func (l *Leg) UnmarshalJSON(b []byte) error {
	var w struct {
		ID            *int   `json:"id"`
		LineShortName string `json:"line_short_name"`
		Direction     string `json:"trip_direction"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.ID == nil {
		return errLegMissingID
	}
	l.ID = LegID(*w.ID)
	l.LineShortName = w.LineShortName
	l.Direction = w.Direction
	l.raw = append(json.RawMessage(nil), b...)
	return nil
}

func (l Leg) MarshalJSON() ([]byte, error) {
	if len(l.raw) > 0 {
		return l.raw, nil
	}
	return json.Marshal(struct {
		ID            LegID  `json:"id"`
		LineShortName string `json:"line_short_name"`
		Direction     string `json:"trip_direction"`
	}{l.ID, l.LineShortName, l.Direction})
}

// Estimate is one predicted departure/arrival pair for a leg. Times are kept
// in their wire form so that the original offset is preserved for display.
type Estimate struct {
	TransporterTripID json.RawMessage        `json:"transporter_trip_id,omitempty"`
	DepartureTime     string                 `json:"departure_time"`
	ArrivalTime       string                 `json:"arrival_time"`
	Delay             nullable.Nullable[int] `json:"delay,omitempty"`
	Leg               *Leg                   `json:"leg,omitempty"`
}

// EstimateSet is the merged result of one fetch cycle. An empty set is valid
// and means there are no known upcoming trips.
type EstimateSet []Estimate

// TripDetail is the per-estimate detail shown under a row.
type TripDetail struct {
	Range        string
	DelaySeconds *int
}

// Row is the rendering record for one distinct leg.
type Row struct {
	LegID          LegID
	LineShortName  string
	Direction      string
	DeparturesText string
	Trips          []TripDetail
}

// ScheduleDecision is derived every cycle and never persisted.
type ScheduleDecision struct {
	NeedsImmediateRefresh bool
	NextWakeup            *time.Time
}
