// Package registry builds and serves the unified asset map: every perpetual
// on every venue plus every spot pair, keyed by a collision-free global
// asset ID, with price precision recomputed from a single formula.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/opmau/hyperliquid-market-data/internal/errors"
	"github.com/opmau/hyperliquid-market-data/internal/exchange"
	"github.com/opmau/hyperliquid-market-data/internal/models"
	"github.com/opmau/hyperliquid-market-data/internal/precision"
	"github.com/opmau/hyperliquid-market-data/internal/venues"
)

// Listing defaults applied when a venue reports absent or nonsensical
// values. Zero szDecimals is valid (whole-unit assets); only negatives are
// substituted.
const (
	defaultSzDecimals           = 4
	defaultPrimaryMaxLeverage   = 50
	defaultSecondaryMaxLeverage = 20

	// usdcTokenIndex is the spot token index of the default collateral.
	usdcTokenIndex = 0
)

// Registry holds the current asset snapshot and coordinates refreshes.
// Reads are lock-free against an atomically published snapshot; a refresh
// builds a complete replacement before publishing it, so readers never see a
// partially merged map. Concurrent refresh callers coalesce onto one
// in-flight rebuild.
type Registry struct {
	provider exchange.MetaProvider
	logger   *slog.Logger

	current atomic.Pointer[Snapshot]
	flight  singleflight.Group
}

// RefreshResult reports what a rebuild produced. Warnings carry every data
// inconsistency found during the merge; they are part of the result value so
// callers can inspect data quality programmatically.
type RefreshResult struct {
	PrimaryCount   int
	SecondaryCount int
	SpotCount      int
	VenueCount     int
	Warnings       []error
	RefreshedAt    time.Time
}

// Total returns the descriptor count across all classes.
func (r *RefreshResult) Total() int {
	return r.PrimaryCount + r.SecondaryCount + r.SpotCount
}

// New creates a registry over the given metadata provider. The registry
// starts empty; call Refresh before lookups.
func New(provider exchange.MetaProvider, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		provider: provider,
		logger:   logger.With("component", "registry"),
	}
}

// Refresh rebuilds the asset map from fresh venue listings and publishes it
// atomically. On any transport failure the previous snapshot stays in
// effect and the error is returned. Concurrent callers share a single
// in-flight rebuild and receive the same result.
func (r *Registry) Refresh(ctx context.Context) (*RefreshResult, error) {
	v, err, _ := r.flight.Do("refresh", func() (any, error) {
		return r.rebuild(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*RefreshResult), nil
}

func (r *Registry) rebuild(ctx context.Context) (*RefreshResult, error) {
	started := time.Now()

	rawVenues, err := r.provider.FetchVenueList(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh: venue list: %w", err)
	}
	catalog, warnings := venues.Build(rawVenues, r.logger)

	spotMeta, err := r.provider.FetchSpotMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh: spot meta: %w", err)
	}

	snap := newSnapshot(catalog)
	for _, t := range spotMeta.Tokens {
		snap.tokens[t.Index] = t
	}

	result := &RefreshResult{VenueCount: catalog.Len()}

	// Primary venue perpetuals occupy [0, 10000) in listing order.
	primaryListing, err := r.provider.FetchAssetListing(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("refresh: primary listing: %w", err)
	}
	n, w, err := r.mergeListing(snap, catalog.Primary(), primaryListing)
	if err != nil {
		return nil, err
	}
	result.PrimaryCount = n
	warnings = append(warnings, w...)

	// Secondary venues occupy [offset, offset+10000) each.
	for _, venue := range catalog.Secondary() {
		listing, err := r.provider.FetchAssetListing(ctx, venue.Name)
		if err != nil {
			return nil, fmt.Errorf("refresh: listing for %s: %w", venue.Name, err)
		}
		n, w, err := r.mergeListing(snap, venue, listing)
		if err != nil {
			return nil, err
		}
		result.SecondaryCount += n
		warnings = append(warnings, w...)
	}

	// Spot pairs occupy [10000, 100000) keyed by pair index.
	n, w, err = r.mergeSpot(snap, spotMeta)
	if err != nil {
		return nil, err
	}
	result.SpotCount = n
	warnings = append(warnings, w...)

	result.Warnings = warnings
	result.RefreshedAt = snap.builtAt

	r.current.Store(snap)

	r.logger.Info("registry refreshed",
		"primary", result.PrimaryCount,
		"secondary", result.SecondaryCount,
		"spot", result.SpotCount,
		"venues", result.VenueCount,
		"warnings", len(warnings),
		"duration", time.Since(started))
	return result, nil
}

// mergeListing registers one venue's perpetual universe.
func (r *Registry) mergeListing(snap *Snapshot, venue models.Venue, listing *exchange.AssetListing) (int, []error, error) {
	class := models.ClassPrimary
	defaultLeverage := defaultPrimaryMaxLeverage
	if !venue.IsPrimary() {
		class = models.ClassSecondary
		defaultLeverage = defaultSecondaryMaxLeverage
	}

	collateral := r.collateralName(snap, venue, listing.CollateralToken)

	var warnings []error
	added := 0
	for localIdx, raw := range listing.Assets {
		coin := stripVenuePrefix(raw.Name)
		if coin == "" {
			continue
		}

		szDecimals := raw.SzDecimals
		if szDecimals < 0 {
			szDecimals = defaultSzDecimals
		}
		maxLeverage := raw.MaxLeverage
		if maxLeverage <= 0 {
			maxLeverage = defaultLeverage
		}

		pxDecimals, err := precision.ResolvePx(class, szDecimals)
		if err != nil {
			return 0, warnings, fmt.Errorf("refresh: %s asset %q: %w", venue.Name, coin, err)
		}

		desc := &models.AssetDescriptor{
			AssetID:      venue.Offset + localIdx,
			Class:        class,
			Name:         displayName(venue.Name, coin, collateral),
			Coin:         coin,
			VenueName:    venue.Name,
			LocalIndex:   localIdx,
			Collateral:   collateral,
			SzDecimals:   szDecimals,
			PxDecimals:   pxDecimals,
			MaxLeverage:  maxLeverage,
			IsDelisted:   raw.IsDelisted,
			OnlyIsolated: raw.OnlyIsolated,
		}

		// A declared precision that disagrees with the formula is a known
		// listing defect; the recomputed value wins and the disagreement
		// is surfaced.
		if raw.PxDecimals != nil && *raw.PxDecimals != pxDecimals {
			warnings = append(warnings, &apperrors.PrecisionMismatchWarning{
				AssetID:    desc.AssetID,
				Name:       desc.Name,
				Declared:   *raw.PxDecimals,
				Recomputed: pxDecimals,
			})
		}

		if err := snap.add(desc, wireCoin(venue.Name, coin)); err != nil {
			return 0, warnings, err
		}
		added++
	}
	return added, warnings, nil
}

// mergeSpot registers the spot pair universe. Pair size precision comes from
// the base token; spot assets trade without leverage.
func (r *Registry) mergeSpot(snap *Snapshot, meta *exchange.SpotMeta) (int, []error, error) {
	var warnings []error
	added := 0
	for i := range meta.Pairs {
		pair := &meta.Pairs[i]

		base, ok := snap.tokens[pair.BaseToken()]
		if !ok {
			warnings = append(warnings, &apperrors.SpotPairSkippedWarning{
				Pair:       pair.Name,
				PairIndex:  pair.Index,
				TokenIndex: pair.BaseToken(),
			})
			r.logger.Warn("spot pair references unknown base token",
				"pair", pair.Name, "token", pair.BaseToken())
			continue
		}
		quoteName := "USDC"
		if quote, ok := snap.tokens[pair.QuoteToken()]; ok {
			quoteName = quote.Name
		}

		szDecimals := base.SzDecimals
		if szDecimals < 0 {
			szDecimals = defaultSzDecimals
		}
		pxDecimals, err := precision.ResolvePx(models.ClassSpot, szDecimals)
		if err != nil {
			return 0, warnings, fmt.Errorf("refresh: spot pair %q: %w", pair.Name, err)
		}

		coin := pair.Name
		if !pair.IsCanonical {
			coin = fmt.Sprintf("@%d", pair.Index)
		}

		desc := &models.AssetDescriptor{
			AssetID:     models.SpotAssetBase + pair.Index,
			Class:       models.ClassSpot,
			Name:        base.Name + "/" + quoteName,
			Coin:        coin,
			LocalIndex:  pair.Index,
			Collateral:  quoteName,
			SzDecimals:  szDecimals,
			PxDecimals:  pxDecimals,
			MaxLeverage: 1,
			IsCanonical: pair.IsCanonical,
		}

		if err := snap.add(desc, coin); err != nil {
			return 0, warnings, err
		}
		added++
	}
	return added, warnings, nil
}

// collateralName resolves a venue's margin token index to a token name. The
// primary venue always margins in USDC; unknown indices fall back to USDC.
func (r *Registry) collateralName(snap *Snapshot, venue models.Venue, tokenIndex int) string {
	if venue.IsPrimary() {
		tokenIndex = usdcTokenIndex
	}
	if t, ok := snap.tokens[tokenIndex]; ok {
		return t.Name
	}
	return "USDC"
}

// EnsureFresh refreshes when no snapshot exists yet or the current one is
// older than maxAge. Staleness inside maxAge is accepted; listings change
// rarely.
func (r *Registry) EnsureFresh(ctx context.Context, maxAge time.Duration) error {
	if snap := r.current.Load(); snap != nil && time.Since(snap.builtAt) < maxAge {
		return nil
	}
	_, err := r.Refresh(ctx)
	return err
}

// Snapshot returns the current asset map, or an error when no refresh has
// completed yet.
func (r *Registry) Snapshot() (*Snapshot, error) {
	snap := r.current.Load()
	if snap == nil {
		return nil, apperrors.New("registry has no snapshot yet; call Refresh first")
	}
	return snap, nil
}

// Lookup returns the descriptor for a global asset ID.
func (r *Registry) Lookup(assetID int) (*models.AssetDescriptor, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Lookup(assetID)
}

// ResolveSymbol maps a human-facing symbol to a descriptor. Accepted forms,
// tried in order:
//
//   - display names: "BTC-USDC", "GOLD-USDC.xyz", "HYPE/USDC"
//   - wire coins: "BTC", "xyz:GOLD", canonical spot pair names, "@107"
//   - bare secondary coins ("GOLD") when exactly one venue lists the coin
//
// Ambiguous or unmatched symbols fail with SymbolResolutionError.
func (r *Registry) ResolveSymbol(symbol string) (*models.AssetDescriptor, error) {
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap.ResolveSymbol(symbol)
}

// ResolveSymbol implements symbol resolution over one snapshot. See
// Registry.ResolveSymbol.
func (s *Snapshot) ResolveSymbol(symbol string) (*models.AssetDescriptor, error) {
	if symbol == "" {
		return nil, &apperrors.SymbolResolutionError{Symbol: symbol, Reason: "empty symbol"}
	}

	if d, ok := s.byName[symbol]; ok {
		return d, nil
	}
	if d, ok := s.byCoin[symbol]; ok {
		return d, nil
	}

	// venue:COIN with an unknown venue deserves a pointed message.
	if venueName, _, ok := strings.Cut(symbol, ":"); ok {
		if _, found := s.catalog.Lookup(venueName); !found {
			return nil, &apperrors.SymbolResolutionError{
				Symbol: symbol,
				Reason: fmt.Sprintf("unknown venue %q", venueName),
			}
		}
		return nil, &apperrors.SymbolResolutionError{
			Symbol: symbol,
			Reason: fmt.Sprintf("venue %q does not list this coin", venueName),
		}
	}

	// Bare coin fallback onto secondary venues.
	if matches := s.secondaryByCoin[symbol]; len(matches) == 1 {
		return matches[0], nil
	} else if len(matches) > 1 {
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Name
		}
		return nil, &apperrors.SymbolResolutionError{
			Symbol: symbol,
			Reason: "ambiguous across venues: " + strings.Join(names, ", "),
		}
	}

	return nil, &apperrors.SymbolResolutionError{Symbol: symbol}
}

// stripVenuePrefix drops a "venue:" prefix from a listed coin name.
// Secondary venue listings name their assets in the prefixed form.
func stripVenuePrefix(name string) string {
	if _, coin, ok := strings.Cut(name, ":"); ok {
		return coin
	}
	return name
}

// displayName builds the human-facing asset name: COIN-COLLATERAL for
// perpetuals, suffixed with .venue on secondary venues.
func displayName(venueName, coin, collateral string) string {
	name := coin
	if collateral != "" {
		name += "-" + collateral
	}
	if venueName != "" {
		name += "." + venueName
	}
	return name
}

// wireCoin builds the coin string the market-data API expects for a
// perpetual: the bare coin on the primary venue, venue-prefixed elsewhere.
func wireCoin(venueName, coin string) string {
	if venueName == "" {
		return coin
	}
	return venueName + ":" + coin
}
