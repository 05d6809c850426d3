package models

import (
	"fmt"
	"sort"
	"time"
)

// Interval is a candle interval in the wire format the venue accepts, e.g.
// "1m", "1h", "1d".
type Interval string

// Supported candle intervals and their lengths.
var intervalDurations = map[Interval]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
}

// ParseInterval validates an interval string and returns the typed form.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if _, ok := intervalDurations[iv]; !ok {
		return "", fmt.Errorf("unsupported interval %q (supported: %v)", s, SupportedIntervals())
	}
	return iv, nil
}

// IntervalFromMinutes maps a bar length in minutes onto the matching wire
// interval. Returns an error when no interval has that exact length.
func IntervalFromMinutes(minutes int) (Interval, error) {
	want := time.Duration(minutes) * time.Minute
	for iv, d := range intervalDurations {
		if d == want {
			return iv, nil
		}
	}
	return "", fmt.Errorf("no candle interval of %d minutes", minutes)
}

// SupportedIntervals returns all valid interval strings sorted by length.
func SupportedIntervals() []string {
	out := make([]string, 0, len(intervalDurations))
	for iv := range intervalDurations {
		out = append(out, string(iv))
	}
	sort.Slice(out, func(i, j int) bool {
		return intervalDurations[Interval(out[i])] < intervalDurations[Interval(out[j])]
	})
	return out
}

// Duration returns the interval length, or zero for an unknown interval.
func (i Interval) Duration() time.Duration {
	return intervalDurations[i]
}

// Millis returns the interval length in milliseconds, the unit candle
// timestamps are expressed in.
func (i Interval) Millis() int64 {
	return i.Duration().Milliseconds()
}

// Valid reports whether the interval is one of the supported values.
func (i Interval) Valid() bool {
	_, ok := intervalDurations[i]
	return ok
}

func (i Interval) String() string { return string(i) }
