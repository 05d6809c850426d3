package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents one OHLCV bar. Timestamps are millisecond epochs keyed on
// the bar's open time; prices and volume stay in their exact wire string form
// with decimal accessors for arithmetic.
type Candle struct {
	// OpenTime is the bar open timestamp (ms epoch, inclusive). Within one
	// series open times are strictly increasing.
	OpenTime int64 `json:"open_time"`

	// CloseTime is OpenTime plus the interval length.
	CloseTime int64 `json:"close_time"`

	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`

	// TradeCount is the number of trades in the bar. Zero-trade bars are
	// carried-forward fills synthesized by the venue.
	TradeCount int `json:"trade_count"`

	Coin     string   `json:"coin"`
	Interval Interval `json:"interval"`

	// IsSynthetic marks a zero-trade bar whose prices carry forward the
	// prior close. Synthetic bars are kept in series output; callers decide
	// whether to treat them as real ticks.
	IsSynthetic bool `json:"is_synthetic,omitempty"`
}

// ValidationError reports a candle field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// Validate checks the candle's fields: parseable positive prices,
// non-negative volume and trade count, OHLC ordering, and consistent
// open/close times.
func (c *Candle) Validate() error {
	if c.OpenTime <= 0 {
		return &ValidationError{Field: "open_time", Message: "open time must be a positive ms epoch"}
	}
	if c.CloseTime <= c.OpenTime {
		return &ValidationError{Field: "close_time", Message: "close time must be after open time"}
	}

	open, err := decimal.NewFromString(c.Open)
	if err != nil {
		return &ValidationError{Field: "open", Message: fmt.Sprintf("invalid open price format: %v", err)}
	}
	high, err := decimal.NewFromString(c.High)
	if err != nil {
		return &ValidationError{Field: "high", Message: fmt.Sprintf("invalid high price format: %v", err)}
	}
	low, err := decimal.NewFromString(c.Low)
	if err != nil {
		return &ValidationError{Field: "low", Message: fmt.Sprintf("invalid low price format: %v", err)}
	}
	close, err := decimal.NewFromString(c.Close)
	if err != nil {
		return &ValidationError{Field: "close", Message: fmt.Sprintf("invalid close price format: %v", err)}
	}
	volume, err := decimal.NewFromString(c.Volume)
	if err != nil {
		return &ValidationError{Field: "volume", Message: fmt.Sprintf("invalid volume format: %v", err)}
	}

	if open.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{Field: "open", Message: "open price must be greater than 0"}
	}
	if high.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{Field: "high", Message: "high price must be greater than 0"}
	}
	if low.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{Field: "low", Message: "low price must be greater than 0"}
	}
	if close.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{Field: "close", Message: "close price must be greater than 0"}
	}
	if volume.LessThan(decimal.Zero) {
		return &ValidationError{Field: "volume", Message: "volume must be greater than or equal to 0"}
	}
	if c.TradeCount < 0 {
		return &ValidationError{Field: "trade_count", Message: "trade count must be greater than or equal to 0"}
	}

	if high.LessThan(decimal.Max(open, close)) {
		return &ValidationError{Field: "high", Message: "high price must be >= max(open, close)"}
	}
	if low.GreaterThan(decimal.Min(open, close)) {
		return &ValidationError{Field: "low", Message: "low price must be <= min(open, close)"}
	}

	if c.Coin == "" {
		return &ValidationError{Field: "coin", Message: "coin cannot be empty"}
	}
	if !c.Interval.Valid() {
		return &ValidationError{Field: "interval", Message: fmt.Sprintf("unsupported interval %q", c.Interval)}
	}
	return nil
}

// OpenDecimal returns the open price for precise arithmetic.
func (c *Candle) OpenDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Open)
}

// HighDecimal returns the high price for precise arithmetic.
func (c *Candle) HighDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.High)
}

// LowDecimal returns the low price for precise arithmetic.
func (c *Candle) LowDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Low)
}

// CloseDecimal returns the close price for precise arithmetic.
func (c *Candle) CloseDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Close)
}

// VolumeDecimal returns the volume for precise arithmetic.
func (c *Candle) VolumeDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Volume)
}

// IsFlat reports whether all four price fields are equal, the price shape of
// a carried-forward bar.
func (c *Candle) IsFlat() bool {
	return c.Open == c.High && c.High == c.Low && c.Low == c.Close
}

// OpenTimeUTC returns the open timestamp as a time.Time in UTC.
func (c *Candle) OpenTimeUTC() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// String implements fmt.Stringer.
func (c *Candle) String() string {
	return fmt.Sprintf("Candle{Coin: %s, Interval: %s, Open: %s, O: %s, H: %s, L: %s, C: %s, V: %s, N: %d}",
		c.Coin, c.Interval, c.OpenTimeUTC().Format(time.RFC3339), c.Open, c.High, c.Low, c.Close, c.Volume, c.TradeCount)
}
