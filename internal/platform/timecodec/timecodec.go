// Package timecodec converts between the upstream offset-datetime wire form,
// absolute instants and the clock strings shown to users.
//
// Ordering and staleness decisions always compare absolute instants. The
// offset carried by the wire string is only used for display.
package timecodec

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedTimestamp is returned when a string is not an offset datetime.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

// Accepted layouts, most specific first. Seconds are optional on the wire,
// the offset is not.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
}

// Parse parses an offset datetime such as "2024-05-01T10:00:00+02:00".
// The returned time keeps the offset of the input.
func Parse(s string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
}

// Format renders t in the wire form, keeping its offset.
func Format(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// FormatClock renders the zero-padded 24-hour "HH:MM" of t in its own offset.
func FormatClock(t time.Time) string {
	return t.Format("15:04")
}

// FormatTripRange renders "HH:MM -> HH:MM".
func FormatTripRange(departure, arrival time.Time) string {
	return FormatClock(departure) + " -> " + FormatClock(arrival)
}

// Compare returns -1, 0 or +1 as a is before, equal to or after b in absolute terms.
func Compare(a, b time.Time) int {
	return a.Compare(b)
}
