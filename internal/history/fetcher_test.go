package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/opmau/hyperliquid-market-data/internal/errors"
	"github.com/opmau/hyperliquid-market-data/internal/exchange"
	"github.com/opmau/hyperliquid-market-data/internal/models"
)

const baseOpen = int64(1_700_000_000_000)

// fakeSource records every window request and delegates to a handler.
type fakeSource struct {
	mu       sync.Mutex
	requests []exchange.CandleRequest
	handler  func(req exchange.CandleRequest) ([]models.Candle, error)
}

func (s *fakeSource) FetchCandles(ctx context.Context, req exchange.CandleRequest) ([]models.Candle, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.handler(req)
}

func (s *fakeSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func bar(coin string, interval models.Interval, open int64) models.Candle {
	return models.Candle{
		OpenTime:   open,
		CloseTime:  open + interval.Millis(),
		Open:       "100",
		High:       "101",
		Low:        "99",
		Close:      "100.5",
		Volume:     "10",
		TradeCount: 5,
		Coin:       coin,
		Interval:   interval,
	}
}

// denseHandler serves a bar at every interval slot of [availFrom, availTo],
// clipped to the requested window.
func denseHandler(interval models.Interval, availFrom, availTo int64) func(exchange.CandleRequest) ([]models.Candle, error) {
	step := interval.Millis()
	return func(req exchange.CandleRequest) ([]models.Candle, error) {
		var out []models.Candle
		for open := availFrom; open <= availTo; open += step {
			if open >= req.StartTime && open <= req.EndTime {
				out = append(out, bar(req.Coin, interval, open))
			}
		}
		return out, nil
	}
}

func quickConfig() Config {
	return Config{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		WindowCap:      10,
	}
}

func TestFetchSingleWindow(t *testing.T) {
	interval := models.Interval("1m")
	src := &fakeSource{handler: denseHandler(interval, baseOpen, baseOpen+100*interval.Millis())}
	f := New(src, quickConfig())

	end := baseOpen + 4*interval.Millis()
	series, err := f.Fetch(context.Background(), "BTC", interval, baseOpen, end)
	require.NoError(t, err)

	assert.Equal(t, StatusComplete, series.Status)
	assert.True(t, series.Complete())
	assert.Equal(t, 1, series.Windows)
	assert.Len(t, series.Candles, 5)
	assert.Empty(t, series.Gaps)
	assert.Empty(t, series.Warnings)
	assert.Equal(t, baseOpen, series.Candles[0].OpenTime)
	assert.Equal(t, end, series.Candles[4].OpenTime)
}

func TestFetchPaginatesPastWindowCap(t *testing.T) {
	interval := models.Interval("1m")
	step := interval.Millis()
	src := &fakeSource{handler: denseHandler(interval, baseOpen, baseOpen+1000*step)}
	f := New(src, quickConfig())

	// 25 bar slots against a 10-bar window cap.
	end := baseOpen + 24*step
	series, err := f.Fetch(context.Background(), "BTC", interval, baseOpen, end)
	require.NoError(t, err)

	assert.Equal(t, StatusComplete, series.Status)
	assert.Equal(t, 3, series.Windows)
	require.Len(t, series.Candles, 25)
	for i, c := range series.Candles {
		assert.Equal(t, baseOpen+int64(i)*step, c.OpenTime, "bar %d", i)
	}

	// Each follow-up window starts one interval past the previous last bar.
	require.Len(t, src.requests, 3)
	assert.Equal(t, baseOpen, src.requests[0].StartTime)
	assert.Equal(t, baseOpen+10*step, src.requests[1].StartTime)
	assert.Equal(t, baseOpen+20*step, src.requests[2].StartTime)
	assert.Equal(t, end, src.requests[2].EndTime)
}

func TestFetchDeduplicatesOverlappingWindows(t *testing.T) {
	interval := models.Interval("1m")
	step := interval.Millis()

	// The second window repeats the last bar of the first before the new
	// ones, the shape of an upstream that clips windows inclusively on both
	// sides.
	src := &fakeSource{}
	src.handler = func(req exchange.CandleRequest) ([]models.Candle, error) {
		from := req.StartTime - step
		if from < baseOpen {
			from = baseOpen
		}
		var out []models.Candle
		for open := from; open <= req.EndTime && open <= baseOpen+14*step; open += step {
			out = append(out, bar(req.Coin, interval, open))
		}
		return out, nil
	}
	f := New(src, quickConfig())

	series, err := f.Fetch(context.Background(), "BTC", interval, baseOpen, baseOpen+14*step)
	require.NoError(t, err)

	require.Len(t, series.Candles, 15)
	for i := 1; i < len(series.Candles); i++ {
		assert.Greater(t, series.Candles[i].OpenTime, series.Candles[i-1].OpenTime)
	}
}

func TestFetchStopsWhenHistoryExhausted(t *testing.T) {
	interval := models.Interval("1m")
	step := interval.Millis()

	// Ten bars exist; the request reaches fifty slots past them.
	src := &fakeSource{handler: denseHandler(interval, baseOpen, baseOpen+9*step)}
	f := New(src, quickConfig())

	series, err := f.Fetch(context.Background(), "BTC", interval, baseOpen, baseOpen+49*step)
	require.NoError(t, err)

	assert.Equal(t, StatusComplete, series.Status)
	assert.Len(t, series.Candles, 10)
	// One data window, then two empty windows before giving up.
	assert.Equal(t, 3, series.Windows)
}

func TestFetchEmptyRange(t *testing.T) {
	interval := models.Interval("1h")
	src := &fakeSource{handler: func(req exchange.CandleRequest) ([]models.Candle, error) {
		return nil, nil
	}}
	f := New(src, quickConfig())

	series, err := f.Fetch(context.Background(), "BTC", interval, baseOpen, baseOpen+100*interval.Millis())
	require.NoError(t, err)

	assert.Equal(t, StatusComplete, series.Status)
	assert.Empty(t, series.Candles)
	assert.Empty(t, series.Gaps)
	assert.Equal(t, 2, series.Windows)
}

func TestFetchAnnotatesGaps(t *testing.T) {
	interval := models.Interval("1m")
	step := interval.Millis()
	opens := []int64{baseOpen, baseOpen + step, baseOpen + 4*step, baseOpen + 5*step}

	src := &fakeSource{handler: func(req exchange.CandleRequest) ([]models.Candle, error) {
		var out []models.Candle
		for _, open := range opens {
			if open >= req.StartTime && open <= req.EndTime {
				out = append(out, bar(req.Coin, interval, open))
			}
		}
		return out, nil
	}}
	f := New(src, quickConfig())

	series, err := f.Fetch(context.Background(), "BTC", interval, baseOpen, baseOpen+5*step)
	require.NoError(t, err)

	assert.Len(t, series.Candles, 4)
	require.Len(t, series.Gaps, 1)

	gap := series.Gaps[0]
	assert.NotEmpty(t, gap.ID)
	assert.Equal(t, "BTC", gap.Coin)
	assert.Equal(t, baseOpen+step, gap.FromTime)
	assert.Equal(t, baseOpen+4*step, gap.ToTime)
	assert.Equal(t, int64(2), gap.MissingCount)
	assert.NoError(t, gap.Validate())
}

func TestFetchTagsSyntheticBars(t *testing.T) {
	interval := models.Interval("1m")
	step := interval.Millis()

	src := &fakeSource{handler: func(req exchange.CandleRequest) ([]models.Candle, error) {
		real := bar(req.Coin, interval, baseOpen)
		flat := models.Candle{
			OpenTime:  baseOpen + step,
			CloseTime: baseOpen + 2*step,
			Open:      "100.5", High: "100.5", Low: "100.5", Close: "100.5",
			Volume: "0", TradeCount: 0,
			Coin: req.Coin, Interval: interval,
		}
		return []models.Candle{real, flat}, nil
	}}
	f := New(src, quickConfig())

	series, err := f.Fetch(context.Background(), "BTC", interval, baseOpen, baseOpen+step)
	require.NoError(t, err)

	require.Len(t, series.Candles, 2)
	assert.False(t, series.Candles[0].IsSynthetic)
	assert.True(t, series.Candles[1].IsSynthetic)
	assert.Equal(t, 1, series.SyntheticCount())
}

func TestFetchKeepsPrefixOnRetryExhaustion(t *testing.T) {
	interval := models.Interval("1m")
	step := interval.Millis()
	dense := denseHandler(interval, baseOpen, baseOpen+9*step)

	src := &fakeSource{}
	src.handler = func(req exchange.CandleRequest) ([]models.Candle, error) {
		if req.StartTime > baseOpen+9*step {
			return nil, &apperrors.TransportError{Op: "candleSnapshot", Cause: apperrors.New("upstream down")}
		}
		return dense(req)
	}
	f := New(src, quickConfig())

	series, err := f.Fetch(context.Background(), "BTC", interval, baseOpen, baseOpen+24*step)
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, series.Status)
	assert.False(t, series.Complete())
	assert.Len(t, series.Candles, 10)

	require.Len(t, series.Warnings, 1)
	var partial *apperrors.PartialResultWarning
	require.ErrorAs(t, series.Warnings[0], &partial)
	assert.Equal(t, baseOpen+10*step, partial.FromTime)

	var unavailable *apperrors.DataUnavailableError
	require.ErrorAs(t, series.Warnings[0], &unavailable)
	assert.Equal(t, quickConfig().MaxRetries+1, unavailable.Attempts)
}

func TestFetchDoesNotRetryPermanentErrors(t *testing.T) {
	interval := models.Interval("1m")
	src := &fakeSource{handler: func(req exchange.CandleRequest) ([]models.Candle, error) {
		return nil, apperrors.New("malformed request")
	}}
	f := New(src, quickConfig())

	series, err := f.Fetch(context.Background(), "BTC", interval, baseOpen, baseOpen+60_000)
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, series.Status)
	assert.Empty(t, series.Candles)
	assert.Equal(t, 1, src.calls())
}

func TestFetchCancelledBetweenWindows(t *testing.T) {
	interval := models.Interval("1m")
	step := interval.Millis()
	ctx, cancel := context.WithCancel(context.Background())

	dense := denseHandler(interval, baseOpen, baseOpen+9*step)
	src := &fakeSource{}
	src.handler = func(req exchange.CandleRequest) ([]models.Candle, error) {
		// Cancel after serving the first window; the fetcher must notice
		// before issuing the next one.
		defer cancel()
		return dense(req)
	}
	f := New(src, quickConfig())

	series, err := f.Fetch(ctx, "BTC", interval, baseOpen, baseOpen+49*step)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, series.Status)
	assert.Len(t, series.Candles, 10)
	assert.Equal(t, 1, series.Windows)
}

func TestFetchRejectsDisorderedWindow(t *testing.T) {
	interval := models.Interval("1m")
	step := interval.Millis()
	src := &fakeSource{handler: func(req exchange.CandleRequest) ([]models.Candle, error) {
		return []models.Candle{
			bar(req.Coin, interval, baseOpen+step),
			bar(req.Coin, interval, baseOpen),
		}, nil
	}}
	f := New(src, quickConfig())

	series, err := f.Fetch(context.Background(), "BTC", interval, baseOpen, baseOpen+5*step)
	require.Error(t, err)
	assert.Nil(t, series)

	var corrupt *apperrors.SeriesCorruptionError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, "BTC", corrupt.Coin)
	assert.Equal(t, 1, corrupt.Index)
}

func TestFetchInputValidation(t *testing.T) {
	src := &fakeSource{handler: func(req exchange.CandleRequest) ([]models.Candle, error) {
		return nil, nil
	}}
	f := New(src, quickConfig())
	ctx := context.Background()

	tests := []struct {
		name     string
		coin     string
		interval models.Interval
		start    int64
		end      int64
	}{
		{"empty coin", "", "1m", baseOpen, baseOpen + 1},
		{"bad interval", "BTC", "7m", baseOpen, baseOpen + 1},
		{"zero start", "BTC", "1m", 0, baseOpen},
		{"end before start", "BTC", "1m", baseOpen, baseOpen - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Fetch(ctx, tt.coin, tt.interval, tt.start, tt.end)
			assert.Error(t, err)
		})
	}
	assert.Equal(t, 0, src.calls())
}

func TestFetchMinutes(t *testing.T) {
	interval := models.Interval("1h")
	src := &fakeSource{handler: denseHandler(interval, baseOpen, baseOpen+5*interval.Millis())}
	f := New(src, quickConfig())

	series, err := f.FetchMinutes(context.Background(), "BTC", 60, baseOpen, baseOpen+5*interval.Millis())
	require.NoError(t, err)
	assert.Equal(t, interval, series.Interval)
	assert.Len(t, series.Candles, 6)

	_, err = f.FetchMinutes(context.Background(), "BTC", 7, baseOpen, baseOpen+1)
	assert.Error(t, err)
}
