// Package exchange defines the market-metadata and market-data provider
// contract the registry and history components consume, plus the concrete
// client for the Hyperliquid info endpoint.
//
// The interfaces are small and composable; components depend only on the
// capability they use, and tests substitute mocks per capability.
package exchange

import (
	"context"
	"fmt"

	"github.com/opmau/hyperliquid-market-data/internal/models"
)

// CandleCap is the maximum number of bars the info endpoint returns per
// candle request. Requests spanning more bars must be paginated.
const CandleCap = 5000

// VenueLister enumerates the deployed venues.
type VenueLister interface {
	// FetchVenueList returns the raw venue descriptor array. Position 0 is
	// a nil entry standing in for the implicit primary venue; secondary
	// venues follow in deployment order.
	FetchVenueList(ctx context.Context) ([]*RawVenue, error)
}

// AssetLister fetches the perpetual asset listing of one venue.
type AssetLister interface {
	// FetchAssetListing returns the asset universe of the named venue.
	// An empty venue name selects the primary venue.
	FetchAssetListing(ctx context.Context, venue string) (*AssetListing, error)
}

// SpotMetaProvider fetches the spot token and pair tables.
type SpotMetaProvider interface {
	FetchSpotMeta(ctx context.Context) (*SpotMeta, error)
}

// CandleSource retrieves one bounded window of OHLCV bars.
//
// The response includes every bar whose open time lies in
// [req.StartTime, req.EndTime] — the end bound is inclusive at open-time
// granularity — and contains at most CandleCap bars, oldest first.
type CandleSource interface {
	FetchCandles(ctx context.Context, req CandleRequest) ([]models.Candle, error)
}

// MetaProvider combines the three metadata capabilities a registry refresh
// needs.
type MetaProvider interface {
	VenueLister
	AssetLister
	SpotMetaProvider
}

// Provider is the full collaborator surface.
type Provider interface {
	MetaProvider
	CandleSource
}

// RawVenue is one non-nil entry of the venue descriptor array.
type RawVenue struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

// RawAsset is one entry of a venue's perpetual universe, as listed.
type RawAsset struct {
	// Name may arrive venue-prefixed ("xyz:TSLA") on secondary venues.
	Name         string `json:"name"`
	SzDecimals   int    `json:"szDecimals"`
	MaxLeverage  int    `json:"maxLeverage"`
	IsDelisted   bool   `json:"isDelisted,omitempty"`
	OnlyIsolated bool   `json:"onlyIsolated,omitempty"`

	// PxDecimals, when present, is a precision the listing itself declares.
	// The registry recomputes precision and flags disagreement rather than
	// trusting this value.
	PxDecimals *int `json:"pxDecimals,omitempty"`
}

// AssetListing is one venue's perpetual universe with its margin token.
type AssetListing struct {
	Venue           string     `json:"venue"`
	CollateralToken int        `json:"collateral_token"`
	Assets          []RawAsset `json:"assets"`
}

// SpotMeta holds the spot token table and pair universe.
type SpotMeta struct {
	Tokens []models.SpotToken `json:"tokens"`
	Pairs  []models.SpotPair  `json:"pairs"`
}

// CandleRequest addresses one bounded candle window.
type CandleRequest struct {
	// Coin is the wire coin string: bare name for primary perps,
	// "venue:COIN" for secondary perps, pair name or "@index" for spot.
	Coin string `json:"coin"`

	Interval models.Interval `json:"interval"`

	// StartTime and EndTime bound the window by bar open time, both
	// inclusive, in ms epoch.
	StartTime int64 `json:"start_time"`
	EndTime   int64 `json:"end_time"`
}

// Validate checks the request parameters.
func (r *CandleRequest) Validate() error {
	if r.Coin == "" {
		return fmt.Errorf("coin cannot be empty")
	}
	if !r.Interval.Valid() {
		return fmt.Errorf("unsupported interval %q", r.Interval)
	}
	if r.StartTime <= 0 {
		return fmt.Errorf("start time must be a positive ms epoch")
	}
	if r.EndTime < r.StartTime {
		return fmt.Errorf("end time %d precedes start time %d", r.EndTime, r.StartTime)
	}
	return nil
}

// BarSpan returns how many bar slots the requested window covers.
func (r *CandleRequest) BarSpan() int64 {
	return (r.EndTime-r.StartTime)/r.Interval.Millis() + 1
}
