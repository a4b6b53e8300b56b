package refresh

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/transitclock/refresher/internal/domain"
	"github.com/transitclock/refresher/internal/platform/timecodec"
)

// DeparturesSeparator joins the clock times of one leg.
const DeparturesSeparator = " • "

var errMissingLeg = errors.New("estimate has no leg")

// Schedule is the result of grouping one estimate set.
type Schedule struct {
	// Rows holds one record per distinct leg, in order of first appearance.
	Rows []domain.Row
	// NextWakeup is nil when the set is empty.
	NextWakeup *time.Time
}

// ScheduleEngine groups estimates by leg and derives the next wake-up.
type ScheduleEngine struct {
	// PastDueRetry replaces a wake-up instant that is not after now.
	// Zero keeps the computed instant even if it has passed.
	PastDueRetry time.Duration
}

type legGroup struct {
	leg      domain.Leg
	clocks   []string
	trips    []domain.TripDetail
	earliest time.Time
}

// Compute groups set by leg id. Any malformed estimate fails the whole
// computation; callers treat that as "no schedule update this cycle".
// It never mutates set.
func (e ScheduleEngine) Compute(set domain.EstimateSet, now time.Time) (Schedule, error) {
	var (
		order  []domain.LegID
		groups = make(map[domain.LegID]*legGroup)
	)
	for i, est := range set {
		if est.Leg == nil {
			return Schedule{}, fmt.Errorf("estimate %d: %w", i, errMissingLeg)
		}
		dep, err := timecodec.Parse(est.DepartureTime)
		if err != nil {
			return Schedule{}, fmt.Errorf("estimate %d departure: %w", i, err)
		}

		g, ok := groups[est.Leg.ID]
		if !ok {
			g = &legGroup{leg: *est.Leg, earliest: dep}
			groups[est.Leg.ID] = g
			order = append(order, est.Leg.ID)
		}
		if timecodec.Compare(dep, g.earliest) < 0 {
			g.earliest = dep
		}
		g.clocks = append(g.clocks, timecodec.FormatClock(dep))
		g.trips = append(g.trips, tripDetail(est, dep))
	}

	out := Schedule{Rows: make([]domain.Row, 0, len(order))}
	var next time.Time
	for i, id := range order {
		g := groups[id]
		out.Rows = append(out.Rows, domain.Row{
			LegID:          id,
			LineShortName:  g.leg.LineShortName,
			Direction:      g.leg.Direction,
			DeparturesText: strings.Join(g.clocks, DeparturesSeparator),
			Trips:          g.trips,
		})
		if i == 0 || timecodec.Compare(g.earliest, next) < 0 {
			next = g.earliest
		}
	}
	if len(order) == 0 {
		return out, nil
	}

	if e.PastDueRetry > 0 && timecodec.Compare(next, now) <= 0 {
		next = now.Add(e.PastDueRetry)
	}
	out.NextWakeup = &next
	return out, nil
}

func tripDetail(est domain.Estimate, dep time.Time) domain.TripDetail {
	d := domain.TripDetail{Range: timecodec.FormatClock(dep)}
	if arr, err := timecodec.Parse(est.ArrivalTime); err == nil {
		d.Range = timecodec.FormatTripRange(dep, arr)
	}
	if v, err := est.Delay.Get(); err == nil {
		d.DelaySeconds = &v
	}
	return d
}
