// Package history retrieves arbitrarily long OHLCV series by paginating
// past the upstream per-request bar cap while preserving exact time order,
// annotating gaps and tagging synthetic bars.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	apperrors "github.com/opmau/hyperliquid-market-data/internal/errors"
	"github.com/opmau/hyperliquid-market-data/internal/exchange"
	"github.com/opmau/hyperliquid-market-data/internal/models"
)

// Status describes how a fetch ended.
type Status string

const (
	// StatusComplete means the requested span was covered (or history was
	// exhausted before reaching it).
	StatusComplete Status = "complete"
	// StatusPartial means retries ran out mid-span; the series holds the
	// prefix assembled before the failing window.
	StatusPartial Status = "partial"
	// StatusCancelled means cancellation was observed between windows; the
	// series holds the prefix assembled so far.
	StatusCancelled Status = "cancelled"
)

// Series is one assembled candle sequence with its data-quality findings
// attached. Warnings and gaps travel on the value so callers can inspect
// them programmatically; nothing is reported only through logs.
type Series struct {
	Coin     string          `json:"coin"`
	Interval models.Interval `json:"interval"`
	Candles  []models.Candle `json:"candles"`
	Gaps     []models.Gap    `json:"gaps"`
	Warnings []error         `json:"-"`
	Status   Status          `json:"status"`

	// Windows is the number of upstream requests issued.
	Windows int `json:"windows"`
}

// Complete reports whether the series covered the whole request.
func (s *Series) Complete() bool { return s.Status == StatusComplete }

// SyntheticCount returns how many bars are zero-trade fills.
func (s *Series) SyntheticCount() int {
	n := 0
	for i := range s.Candles {
		if s.Candles[i].IsSynthetic {
			n++
		}
	}
	return n
}

// Config tunes the fetcher. Zero values select the defaults.
type Config struct {
	// MaxRetries bounds per-window retry attempts on transient failures.
	MaxRetries int

	// InitialBackoff and MaxBackoff shape the per-window retry delays.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// WindowCap is the upstream per-request bar cap. Defaults to
	// exchange.CandleCap; tests shrink it.
	WindowCap int

	Logger *slog.Logger
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxRetries <= 0 {
		out.MaxRetries = 3
	}
	if out.InitialBackoff <= 0 {
		out.InitialBackoff = 500 * time.Millisecond
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = 30 * time.Second
	}
	if out.WindowCap <= 0 {
		out.WindowCap = exchange.CandleCap
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Fetcher assembles continuous candle series from a windowed candle source.
// Windows are fetched strictly sequentially: each window's start is the
// cursor left by the previous window's last bar, so there is nothing to
// parallelize without guessing bar counts in advance.
type Fetcher struct {
	source exchange.CandleSource
	cfg    Config
	logger *slog.Logger
}

// New creates a fetcher over a candle source.
func New(source exchange.CandleSource, cfg Config) *Fetcher {
	cfg = cfg.withDefaults()
	return &Fetcher{
		source: source,
		cfg:    cfg,
		logger: cfg.Logger.With("component", "history"),
	}
}

// exhaustedStreak is how many consecutive windows may come back without new
// bars before the span is treated as past the end of available history.
const exhaustedStreak = 2

// Fetch returns the gap-annotated, time-ordered series of bars whose open
// times lie in [startTime, endTime] (both inclusive, ms epoch).
//
// Spans wider than the upstream cap are split into sequential windows; after
// each window the cursor advances to the last returned open time plus one
// interval. Fetching stops at endTime or once exhaustedStreak consecutive
// windows yield nothing new.
//
// A span entirely outside available history produces an empty complete
// series, not an error. Transient window failures are retried with backoff;
// when retries run out the prefix assembled so far is returned with a
// PartialResultWarning instead of being discarded. Cancellation is observed
// between windows only and yields the prefix with StatusCancelled.
func (f *Fetcher) Fetch(ctx context.Context, coin string, interval models.Interval, startTime, endTime int64) (*Series, error) {
	if coin == "" {
		return nil, fmt.Errorf("coin cannot be empty")
	}
	if !interval.Valid() {
		return nil, fmt.Errorf("unsupported interval %q", interval)
	}
	if startTime <= 0 {
		return nil, fmt.Errorf("start time must be a positive ms epoch")
	}
	if endTime < startTime {
		return nil, fmt.Errorf("end time %d precedes start time %d", endTime, startTime)
	}

	intervalMs := interval.Millis()
	series := &Series{
		Coin:     coin,
		Interval: interval,
		Status:   StatusComplete,
	}

	cursor := startTime
	lastOpen := int64(0)
	emptyStreak := 0

	for cursor <= endTime {
		select {
		case <-ctx.Done():
			series.Status = StatusCancelled
			f.logger.Info("fetch cancelled between windows",
				"coin", coin, "cursor", cursor, "bars", len(series.Candles))
			return f.finalize(series, intervalMs)
		default:
		}

		// Size the window so even a dense response stays at the cap.
		windowEnd := cursor + int64(f.cfg.WindowCap-1)*intervalMs
		if windowEnd > endTime {
			windowEnd = endTime
		}

		window, err := f.fetchWindow(ctx, exchange.CandleRequest{
			Coin:      coin,
			Interval:  interval,
			StartTime: cursor,
			EndTime:   windowEnd,
		})
		series.Windows++
		if err != nil {
			series.Status = StatusPartial
			series.Warnings = append(series.Warnings, &apperrors.PartialResultWarning{
				Coin:     coin,
				FromTime: cursor,
				Cause:    err,
			})
			f.logger.Warn("window failed after retries, keeping prefix",
				"coin", coin, "cursor", cursor, "bars", len(series.Candles), "error", err)
			return f.finalize(series, intervalMs)
		}

		// Count only bars that advance past the previous window; a window
		// that repeats old bars counts as empty so a stalled upstream reads
		// as exhausted history rather than corrupting the sequence.
		newBars := 0
		for i := range window {
			if window[i].OpenTime > lastOpen {
				series.Candles = append(series.Candles, window[i])
				newBars++
			}
		}

		if newBars == 0 {
			emptyStreak++
			if emptyStreak >= exhaustedStreak {
				f.logger.Debug("history exhausted",
					"coin", coin, "cursor", cursor, "bars", len(series.Candles))
				break
			}
			cursor = windowEnd + intervalMs
			continue
		}

		emptyStreak = 0
		lastOpen = series.Candles[len(series.Candles)-1].OpenTime
		cursor = lastOpen + intervalMs
	}

	return f.finalize(series, intervalMs)
}

// FetchMinutes is Fetch with the interval given as a bar length in minutes.
func (f *Fetcher) FetchMinutes(ctx context.Context, coin string, barMinutes int, startTime, endTime int64) (*Series, error) {
	interval, err := models.IntervalFromMinutes(barMinutes)
	if err != nil {
		return nil, err
	}
	return f.Fetch(ctx, coin, interval, startTime, endTime)
}

// fetchWindow retrieves one window, retrying transient failures with
// exponential backoff up to the configured bound.
func (f *Fetcher) fetchWindow(ctx context.Context, req exchange.CandleRequest) ([]models.Candle, error) {
	var window []models.Candle
	attempts := 0

	operation := func() error {
		attempts++
		candles, err := f.source.FetchCandles(ctx, req)
		if err != nil {
			if !apperrors.Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		window = candles
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.cfg.InitialBackoff
	policy.MaxInterval = f.cfg.MaxBackoff
	retry := backoff.WithMaxRetries(backoff.WithContext(policy, ctx), uint64(f.cfg.MaxRetries))

	err := backoff.RetryNotify(operation, retry, func(err error, d time.Duration) {
		f.logger.Warn("candle window attempt failed, retrying",
			"coin", req.Coin,
			"start", req.StartTime,
			"end", req.EndTime,
			"error", err,
			"retry_delay", d)
	})
	if err != nil {
		return nil, &apperrors.DataUnavailableError{
			Coin:      req.Coin,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Attempts:  attempts,
			Cause:     err,
		}
	}
	return window, nil
}

// finalize validates ordering, annotates gaps and tags synthetic bars. An
// out-of-order or duplicate open time aborts the whole fetch: it cannot
// happen under correct pagination, so the assembled data is not trustworthy.
func (f *Fetcher) finalize(series *Series, intervalMs int64) (*Series, error) {
	for i := range series.Candles {
		c := &series.Candles[i]

		if i > 0 {
			prev := series.Candles[i-1].OpenTime
			if c.OpenTime <= prev {
				return nil, &apperrors.SeriesCorruptionError{
					Coin:     series.Coin,
					Index:    i,
					PrevOpen: prev,
					CurOpen:  c.OpenTime,
				}
			}
			if delta := c.OpenTime - prev; delta > intervalMs {
				series.Gaps = append(series.Gaps, models.Gap{
					ID:           uuid.NewString(),
					Coin:         series.Coin,
					Interval:     series.Interval,
					FromTime:     prev,
					ToTime:       c.OpenTime,
					MissingCount: delta/intervalMs - 1,
					DetectedAt:   time.Now().UTC(),
				})
			}
		}

		if c.TradeCount == 0 {
			c.IsSynthetic = true
		}
	}

	if len(series.Gaps) > 0 {
		f.logger.Debug("gaps detected in series",
			"coin", series.Coin, "gaps", len(series.Gaps))
	}
	return series, nil
}
