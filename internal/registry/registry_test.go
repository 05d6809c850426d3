package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/opmau/hyperliquid-market-data/internal/errors"
	"github.com/opmau/hyperliquid-market-data/internal/exchange"
	"github.com/opmau/hyperliquid-market-data/internal/models"
)

// fakeProvider serves a fixed three-venue universe: the primary venue plus
// the secondary venues alpha and beta, with alpha margined in HYPE and beta
// carrying an unresolvable collateral token index.
type fakeProvider struct {
	venueDelay time.Duration
	venueErr   error
	venueCalls atomic.Int64
}

func intPtr(v int) *int { return &v }

func (p *fakeProvider) FetchVenueList(ctx context.Context) ([]*exchange.RawVenue, error) {
	p.venueCalls.Add(1)
	if p.venueDelay > 0 {
		time.Sleep(p.venueDelay)
	}
	if p.venueErr != nil {
		return nil, p.venueErr
	}
	return []*exchange.RawVenue{
		nil,
		{Name: "alpha", FullName: "Alpha Markets"},
		{Name: "beta", FullName: "Beta Markets"},
	}, nil
}

func (p *fakeProvider) FetchAssetListing(ctx context.Context, venue string) (*exchange.AssetListing, error) {
	switch venue {
	case "":
		return &exchange.AssetListing{
			Venue: "",
			Assets: []exchange.RawAsset{
				{Name: "BTC", SzDecimals: 5, MaxLeverage: 40},
				{Name: "ETH", SzDecimals: 4, MaxLeverage: 25},
				{Name: "DOGE", SzDecimals: 0},
			},
		}, nil
	case "alpha":
		return &exchange.AssetListing{
			Venue:           "alpha",
			CollateralToken: 1,
			Assets: []exchange.RawAsset{
				{Name: "alpha:GOLD", SzDecimals: 2, MaxLeverage: 10, PxDecimals: intPtr(0)},
				{Name: "alpha:TSLA", SzDecimals: 1},
			},
		}, nil
	case "beta":
		return &exchange.AssetListing{
			Venue:           "beta",
			CollateralToken: 99,
			Assets: []exchange.RawAsset{
				{Name: "beta:GOLD", SzDecimals: 3, MaxLeverage: 15},
			},
		}, nil
	}
	return nil, &apperrors.TransportError{Op: "meta", Cause: apperrors.New("unknown venue " + venue)}
}

func (p *fakeProvider) FetchSpotMeta(ctx context.Context) (*exchange.SpotMeta, error) {
	return &exchange.SpotMeta{
		Tokens: []models.SpotToken{
			{Index: 0, Name: "USDC", SzDecimals: 2, IsCanonical: true},
			{Index: 1, Name: "HYPE", SzDecimals: 2, IsCanonical: true},
			{Index: 2, Name: "PURR", SzDecimals: 0, IsCanonical: true},
		},
		Pairs: []models.SpotPair{
			{Index: 0, Name: "PURR/USDC", Tokens: [2]int{2, 0}, IsCanonical: true},
			{Index: 107, Name: "@107", Tokens: [2]int{1, 0}},
		},
	}, nil
}

func refreshedRegistry(t *testing.T) (*Registry, *RefreshResult) {
	t.Helper()
	r := New(&fakeProvider{}, nil)
	result, err := r.Refresh(context.Background())
	require.NoError(t, err)
	return r, result
}

func TestRefreshCounts(t *testing.T) {
	_, result := refreshedRegistry(t)

	assert.Equal(t, 3, result.PrimaryCount)
	assert.Equal(t, 3, result.SecondaryCount)
	assert.Equal(t, 2, result.SpotCount)
	assert.Equal(t, 3, result.VenueCount)
	assert.Equal(t, 8, result.Total())
	assert.False(t, result.RefreshedAt.IsZero())
}

func TestRefreshAssignsDisjointIDRanges(t *testing.T) {
	r, _ := refreshedRegistry(t)
	snap, err := r.Snapshot()
	require.NoError(t, err)

	for _, d := range snap.Descriptors() {
		require.NoError(t, d.Validate(), "descriptor %s", d.Name)
		switch d.Class {
		case models.ClassPrimary:
			assert.Less(t, d.AssetID, models.SpotAssetBase)
		case models.ClassSpot:
			assert.GreaterOrEqual(t, d.AssetID, models.SpotAssetBase)
			assert.Less(t, d.AssetID, models.SecondaryAssetBase)
		case models.ClassSecondary:
			assert.GreaterOrEqual(t, d.AssetID, models.SecondaryAssetBase)
		}
	}
}

func TestRefreshBuildsDescriptors(t *testing.T) {
	r, _ := refreshedRegistry(t)

	tests := []struct {
		assetID    int
		name       string
		coin       string
		pxDecimals int
		collateral string
		leverage   int
	}{
		{0, "BTC-USDC", "BTC", 1, "USDC", 40},
		{1, "ETH-USDC", "ETH", 2, "USDC", 25},
		{2, "DOGE-USDC", "DOGE", 6, "USDC", 50},
		{110000, "GOLD-HYPE.alpha", "GOLD", 4, "HYPE", 10},
		{110001, "TSLA-HYPE.alpha", "TSLA", 5, "HYPE", 20},
		{120000, "GOLD-USDC.beta", "GOLD", 3, "USDC", 15},
		{10000, "PURR/USDC", "PURR/USDC", 8, "USDC", 1},
		{10107, "HYPE/USDC", "@107", 6, "USDC", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := r.Lookup(tt.assetID)
			require.NoError(t, err)
			assert.Equal(t, tt.name, d.Name)
			assert.Equal(t, tt.coin, d.Coin)
			assert.Equal(t, tt.pxDecimals, d.PxDecimals)
			assert.Equal(t, tt.collateral, d.Collateral)
			assert.Equal(t, tt.leverage, d.MaxLeverage)
		})
	}
}

func TestRefreshFlagsPrecisionMismatch(t *testing.T) {
	_, result := refreshedRegistry(t)

	var mismatches []*apperrors.PrecisionMismatchWarning
	for _, w := range result.Warnings {
		var pm *apperrors.PrecisionMismatchWarning
		if apperrors.As(w, &pm) {
			mismatches = append(mismatches, pm)
		}
	}
	require.Len(t, mismatches, 1)
	assert.Equal(t, 110000, mismatches[0].AssetID)
	assert.Equal(t, 0, mismatches[0].Declared)
	assert.Equal(t, 4, mismatches[0].Recomputed)
}

// danglingPairProvider lists a spot pair whose base token is absent from the
// token table.
type danglingPairProvider struct {
	*fakeProvider
}

func (danglingPairProvider) FetchSpotMeta(ctx context.Context) (*exchange.SpotMeta, error) {
	return &exchange.SpotMeta{
		Tokens: []models.SpotToken{
			{Index: 0, Name: "USDC", SzDecimals: 2, IsCanonical: true},
		},
		Pairs: []models.SpotPair{
			{Index: 5, Name: "GHOST/USDC", Tokens: [2]int{42, 0}, IsCanonical: true},
		},
	}, nil
}

func TestRefreshWarnsOnSkippedSpotPair(t *testing.T) {
	r := New(danglingPairProvider{&fakeProvider{}}, nil)
	result, err := r.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.SpotCount)
	_, err = r.Lookup(models.SpotAssetBase + 5)
	assert.Error(t, err)

	// The dropped pair is reported on the result, not only logged.
	var skipped *apperrors.SpotPairSkippedWarning
	found := false
	for _, w := range result.Warnings {
		if apperrors.As(w, &skipped) {
			found = true
		}
	}
	require.True(t, found)
	assert.Equal(t, "GHOST/USDC", skipped.Pair)
	assert.Equal(t, 5, skipped.PairIndex)
	assert.Equal(t, 42, skipped.TokenIndex)
}

func TestLookupUnknownAsset(t *testing.T) {
	r, _ := refreshedRegistry(t)

	_, err := r.Lookup(999)
	var unknown *apperrors.UnknownAssetError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, 999, unknown.AssetID)
}

func TestResolveSymbol(t *testing.T) {
	r, _ := refreshedRegistry(t)

	tests := []struct {
		symbol string
		assetID int
	}{
		{"BTC-USDC", 0},
		{"BTC", 0},
		{"GOLD-HYPE.alpha", 110000},
		{"alpha:GOLD", 110000},
		{"beta:GOLD", 120000},
		{"TSLA", 110001}, // bare coin, listed on exactly one venue
		{"PURR/USDC", 10000},
		{"HYPE/USDC", 10107},
		{"@107", 10107},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			d, err := r.ResolveSymbol(tt.symbol)
			require.NoError(t, err)
			assert.Equal(t, tt.assetID, d.AssetID)
		})
	}
}

func TestResolveSymbolFailures(t *testing.T) {
	r, _ := refreshedRegistry(t)

	tests := []struct {
		name         string
		symbol       string
		reasonSubstr string
	}{
		{"ambiguous bare coin", "GOLD", "ambiguous"},
		{"unknown venue", "zeta:FOO", `unknown venue "zeta"`},
		{"unlisted coin on known venue", "alpha:MISSING", "does not list"},
		{"unknown symbol", "NOPE", ""},
		{"empty symbol", "", "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.ResolveSymbol(tt.symbol)
			var resErr *apperrors.SymbolResolutionError
			require.ErrorAs(t, err, &resErr)
			assert.Equal(t, tt.symbol, resErr.Symbol)
			if tt.reasonSubstr != "" {
				assert.Contains(t, resErr.Reason, tt.reasonSubstr)
			}
		})
	}
}

func TestSnapshotBeforeRefresh(t *testing.T) {
	r := New(&fakeProvider{}, nil)

	_, err := r.Snapshot()
	assert.Error(t, err)

	_, err = r.Lookup(0)
	assert.Error(t, err)
}

func TestFailedRefreshKeepsPriorSnapshot(t *testing.T) {
	provider := &fakeProvider{}
	r := New(provider, nil)

	_, err := r.Refresh(context.Background())
	require.NoError(t, err)
	before, err := r.Snapshot()
	require.NoError(t, err)

	provider.venueErr = &apperrors.TransportError{Op: "perpDexs", Cause: apperrors.New("boom")}
	_, err = r.Refresh(context.Background())
	require.Error(t, err)

	after, err := r.Snapshot()
	require.NoError(t, err)
	assert.Same(t, before, after)

	d, err := r.Lookup(110000)
	require.NoError(t, err)
	assert.Equal(t, "GOLD-HYPE.alpha", d.Name)
}

func TestConcurrentRefreshCoalesces(t *testing.T) {
	provider := &fakeProvider{venueDelay: 50 * time.Millisecond}
	r := New(provider, nil)

	const callers = 8
	results := make([]*RefreshResult, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := r.Refresh(context.Background())
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), provider.venueCalls.Load())
	for _, result := range results {
		require.NotNil(t, result)
		assert.Equal(t, 8, result.Total())
	}
}

func TestEnsureFresh(t *testing.T) {
	provider := &fakeProvider{}
	r := New(provider, nil)

	require.NoError(t, r.EnsureFresh(context.Background(), 10*time.Minute))
	assert.Equal(t, int64(1), provider.venueCalls.Load())

	// A young snapshot is reused.
	require.NoError(t, r.EnsureFresh(context.Background(), 10*time.Minute))
	assert.Equal(t, int64(1), provider.venueCalls.Load())

	// Zero max age always rebuilds.
	require.NoError(t, r.EnsureFresh(context.Background(), 0))
	assert.Equal(t, int64(2), provider.venueCalls.Load())
}

func TestSnapshotTokenTable(t *testing.T) {
	r, _ := refreshedRegistry(t)
	snap, err := r.Snapshot()
	require.NoError(t, err)

	tok, ok := snap.Token(1)
	require.True(t, ok)
	assert.Equal(t, "HYPE", tok.Name)

	_, ok = snap.Token(42)
	assert.False(t, ok)

	assert.Equal(t, 8, snap.Len())
	assert.Equal(t, 3, snap.Venues().Len())
}
