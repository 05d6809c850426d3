package models

import (
	"errors"
	"fmt"
	"time"
)

// Gap represents a missing stretch of bars inside one candle series. Gaps are
// reported alongside the series, never silently filled.
type Gap struct {
	// ID is the unique gap identifier.
	ID string `json:"id"`

	// Coin is the wire coin string the series was fetched for.
	Coin string `json:"coin"`

	// Interval is the series candle interval.
	Interval Interval `json:"interval"`

	// FromTime is the open time (ms epoch) of the last bar before the gap.
	FromTime int64 `json:"from_time"`

	// ToTime is the open time (ms epoch) of the first bar after the gap.
	ToTime int64 `json:"to_time"`

	// MissingCount is the number of absent bars between FromTime and
	// ToTime: (ToTime-FromTime)/interval - 1.
	MissingCount int64 `json:"missing_count"`

	// DetectedAt is when the gap was found.
	DetectedAt time.Time `json:"detected_at"`
}

// Validate checks the gap's internal consistency.
func (g *Gap) Validate() error {
	if g.ID == "" {
		return errors.New("gap ID cannot be empty")
	}
	if g.Coin == "" {
		return errors.New("gap coin cannot be empty")
	}
	if !g.Interval.Valid() {
		return fmt.Errorf("gap interval %q is not supported", g.Interval)
	}
	if g.ToTime <= g.FromTime {
		return errors.New("gap to-time must be after from-time")
	}
	if g.MissingCount < 1 {
		return errors.New("gap must be missing at least one bar")
	}
	span := g.ToTime - g.FromTime
	if want := (g.MissingCount + 1) * g.Interval.Millis(); span != want {
		return fmt.Errorf("gap span %dms does not match %d missing bars of %s", span, g.MissingCount, g.Interval)
	}
	return nil
}

// Duration returns the wall-clock length of the missing stretch.
func (g *Gap) Duration() time.Duration {
	return time.Duration(g.MissingCount) * g.Interval.Duration()
}

// String implements fmt.Stringer.
func (g *Gap) String() string {
	return fmt.Sprintf("Gap{Coin: %s, Interval: %s, From: %d, To: %d, Missing: %d}",
		g.Coin, g.Interval, g.FromTime, g.ToTime, g.MissingCount)
}
