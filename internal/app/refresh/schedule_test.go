package refresh

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitclock/refresher/internal/domain"
	"github.com/transitclock/refresher/internal/platform/timecodec"
)

func decodeSet(t *testing.T, s string) domain.EstimateSet {
	t.Helper()
	set, err := DecodeEstimateSet([]byte(s))
	require.NoError(t, err)
	return set
}

func TestScheduleEngine_EmptySetHasNoWakeup(t *testing.T) {
	t.Parallel()
	sched, err := ScheduleEngine{}.Compute(domain.EstimateSet{}, mustParse(t, "2024-05-01T09:00:00Z"))
	require.NoError(t, err)
	assert.Nil(t, sched.NextWakeup)
	assert.Empty(t, sched.Rows)
}

func TestScheduleEngine_EarliestAcrossLegs(t *testing.T) {
	t.Parallel()
	set := decodeSet(t, `[
		{"departure_time":"2024-05-01T10:40:00+02:00","arrival_time":"2024-05-01T11:00:00+02:00","leg":{"id":2,"line_short_name":"C3","trip_direction":"Vaulx"}},
		{"departure_time":"2024-05-01T10:10:00+02:00","arrival_time":"2024-05-01T10:30:00+02:00","leg":{"id":1,"line_short_name":"T1","trip_direction":"Debourg"}},
		{"departure_time":"2024-05-01T10:25:00+02:00","arrival_time":"2024-05-01T10:45:00+02:00","leg":{"id":2,"line_short_name":"C3","trip_direction":"Vaulx"}}
	]`)
	now := mustParse(t, "2024-05-01T09:00:00+02:00")

	sched, err := ScheduleEngine{PastDueRetry: time.Minute}.Compute(set, now)
	require.NoError(t, err)
	require.NotNil(t, sched.NextWakeup)
	assert.True(t, sched.NextWakeup.Equal(mustParse(t, "2024-05-01T10:10:00+02:00")))

	require.Len(t, sched.Rows, 2)
	// Rows follow first appearance; clock times keep per-estimate order.
	assert.Equal(t, domain.LegID(2), sched.Rows[0].LegID)
	assert.Equal(t, "C3", sched.Rows[0].LineShortName)
	assert.Equal(t, "Vaulx", sched.Rows[0].Direction)
	assert.Equal(t, "10:40 • 10:25", sched.Rows[0].DeparturesText)
	assert.Equal(t, "10:10", sched.Rows[1].DeparturesText)
	assert.Equal(t, "10:40 -> 11:00", sched.Rows[0].Trips[0].Range)
}

func TestScheduleEngine_TwoLegsT1BeforeT2(t *testing.T) {
	t.Parallel()
	t1 := mustParse(t, "2024-05-01T08:15:00Z")
	t2 := mustParse(t, "2024-05-01T10:30:00+01:00")
	set := domain.EstimateSet{
		{DepartureTime: timecodec.Format(t2), ArrivalTime: timecodec.Format(t2.Add(10 * time.Minute)), Leg: &domain.Leg{ID: 1}},
		{DepartureTime: timecodec.Format(t1), ArrivalTime: timecodec.Format(t1.Add(10 * time.Minute)), Leg: &domain.Leg{ID: 2}},
	}
	now := mustParse(t, "2024-05-01T07:00:00Z")
	require.True(t, now.Before(t1), "now precedes both departures")

	sched, err := NewService(nil, nil, nil, nil, nil, zerolog.Nop()).Engine.Compute(set, now)
	require.NoError(t, err)
	require.NotNil(t, sched.NextWakeup)
	assert.True(t, sched.NextWakeup.Equal(t1))

	// Once both have departed the earliest one is still reported by default.
	later := mustParse(t, "2024-05-01T12:00:00Z")
	sched, err = NewService(nil, nil, nil, nil, nil, zerolog.Nop()).Engine.Compute(set, later)
	require.NoError(t, err)
	require.NotNil(t, sched.NextWakeup)
	assert.True(t, sched.NextWakeup.Equal(t1))
}

func TestScheduleEngine_Idempotent(t *testing.T) {
	t.Parallel()
	set := decodeSet(t, `[
		{"departure_time":"2024-05-01T10:00:00+02:00","arrival_time":"2024-05-01T10:20:00+02:00","delay":60,"leg":{"id":1}},
		{"departure_time":"2024-05-01T10:30:00+02:00","arrival_time":"2024-05-01T10:50:00+02:00","delay":null,"leg":{"id":1}}
	]`)
	before, err := EncodeEstimateSet(set)
	require.NoError(t, err)
	now := mustParse(t, "2024-05-01T09:00:00+02:00")
	e := ScheduleEngine{PastDueRetry: time.Minute}

	a, err := e.Compute(set, now)
	require.NoError(t, err)
	b, err := e.Compute(set, now)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	after, err := EncodeEstimateSet(set)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after), "set must not be mutated")

	require.Len(t, a.Rows[0].Trips, 2)
	require.NotNil(t, a.Rows[0].Trips[0].DelaySeconds)
	assert.Equal(t, 60, *a.Rows[0].Trips[0].DelaySeconds)
	assert.Nil(t, a.Rows[0].Trips[1].DelaySeconds)
}

func TestScheduleEngine_MalformedFailsWholeComputation(t *testing.T) {
	t.Parallel()
	now := mustParse(t, "2024-05-01T09:00:00+02:00")

	set := decodeSet(t, `[
		{"departure_time":"2024-05-01T10:00:00+02:00","leg":{"id":1}},
		{"departure_time":"half past ten","leg":{"id":2}}
	]`)
	_, err := ScheduleEngine{}.Compute(set, now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, timecodec.ErrMalformedTimestamp))

	set = decodeSet(t, `[{"departure_time":"2024-05-01T10:00:00+02:00"}]`)
	_, err = ScheduleEngine{}.Compute(set, now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errMissingLeg))
}

func TestScheduleEngine_PastDueRetry(t *testing.T) {
	t.Parallel()
	set := decodeSet(t, `[{"departure_time":"2024-05-01T08:00:00+02:00","leg":{"id":1}}]`)
	now := mustParse(t, "2024-05-01T09:00:00+02:00")

	sched, err := ScheduleEngine{PastDueRetry: time.Minute}.Compute(set, now)
	require.NoError(t, err)
	require.NotNil(t, sched.NextWakeup)
	assert.True(t, sched.NextWakeup.Equal(now.Add(time.Minute)))

	sched, err = ScheduleEngine{}.Compute(set, now)
	require.NoError(t, err)
	assert.True(t, sched.NextWakeup.Equal(mustParse(t, "2024-05-01T08:00:00+02:00")))
}

func TestCodec_LegPassThrough(t *testing.T) {
	t.Parallel()
	in := `[{"transporter_trip_id":"86A-12","departure_time":"2024-05-01T10:00:00+02:00","arrival_time":"2024-05-01T10:20:00+02:00","delay":null,"leg":{"id":3,"from_stop":45,"to_stop":46,"from_stop_name":"Perrache","to_stop_name":"Bellecour","line_name":"Metro A","trip_direction":"Vaulx-en-Velin","line_short_name":"A"}}]`
	set := decodeSet(t, in)
	require.Len(t, set, 1)
	assert.Equal(t, "A", set[0].Leg.LineShortName)
	assert.Equal(t, "Vaulx-en-Velin", set[0].Leg.Direction)
	assert.True(t, set[0].Delay.IsNull())

	out, err := EncodeEstimateSet(set)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))

	var generic []map[string]any
	require.NoError(t, json.Unmarshal(out, &generic))
	assert.Equal(t, "Perrache", generic[0]["leg"].(map[string]any)["from_stop_name"])
}

func TestCodec_CorruptCache(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"No data", "{}", "null", `[{"leg":{"line_short_name":"A"}}]`} {
		_, err := DecodeEstimateSet([]byte(in))
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrCorruptCache), in)
	}
	b, err := EncodeEstimateSet(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))
}
