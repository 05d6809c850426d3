// Package models provides the core data structures for the Hyperliquid
// market-data layer: venues, asset descriptors, spot metadata, candles and
// gaps, together with their validation rules.
package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AssetClass identifies which market an asset belongs to. The class decides
// both the identifier range the asset is numbered in and the maximum decimal
// budget used when deriving price precision.
type AssetClass int

const (
	// ClassPrimary is the default perpetuals venue, assets numbered from 0.
	ClassPrimary AssetClass = iota
	// ClassSecondary is an alternate deployed perpetuals venue, assets
	// numbered from the venue's offset (>= 100000).
	ClassSecondary
	// ClassSpot is the token-pair cash market, assets numbered from 10000.
	ClassSpot
)

// String returns the lowercase class name.
func (c AssetClass) String() string {
	switch c {
	case ClassPrimary:
		return "primary"
	case ClassSecondary:
		return "secondary"
	case ClassSpot:
		return "spot"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Identifier space boundaries. The three class ranges are disjoint:
// [0, SpotAssetBase) primary, [SpotAssetBase, SecondaryAssetBase) spot,
// [SecondaryAssetBase, ...) secondary venues.
const (
	// SpotAssetBase is added to a spot pair index to form its asset ID.
	SpotAssetBase = 10000

	// SecondaryAssetBase is the lowest asset ID of any secondary venue.
	SecondaryAssetBase = 100000

	// VenueOffsetStride separates consecutive secondary venue ranges.
	VenueOffsetStride = 10000
)

// Venue describes one deployment of the derivatives platform. The primary
// venue is implicit: VenueIndex 0, Offset 0, empty Name. Secondary venues are
// numbered 1..n in listing order and carry a stable asset ID offset.
type Venue struct {
	Name       string `json:"name"`
	FullName   string `json:"full_name,omitempty"`
	VenueIndex int    `json:"venue_index"`
	Offset     int    `json:"offset"`
}

// IsPrimary reports whether this is the implicit default venue.
func (v *Venue) IsPrimary() bool {
	return v.VenueIndex == 0
}

// AssetDescriptor is the unified description of one tradeable asset across
// all classes. AssetID is unique within the global identifier space.
type AssetDescriptor struct {
	// AssetID is the globally unique identifier. Primary assets use their
	// listing index, spot pairs use SpotAssetBase+pairIndex, secondary
	// assets use venueOffset+localIndex.
	AssetID int `json:"asset_id"`

	// Class selects the identifier range and the precision budget.
	Class AssetClass `json:"class"`

	// Name is the human-facing display name: "BTC-USDC" for primary perps,
	// "GOLD-USDC.xyz" for secondary venues, "HYPE/USDC" for spot pairs.
	Name string `json:"name"`

	// Coin is the base coin symbol as the venue lists it, without any
	// venue prefix (e.g. "BTC", "TSLA", or a spot pair name).
	Coin string `json:"coin"`

	// VenueName is empty for primary and spot assets.
	VenueName string `json:"venue_name,omitempty"`

	// LocalIndex is the position within the owning venue's listing, or the
	// spot pair index for spot assets.
	LocalIndex int `json:"local_index"`

	// Collateral is the quote/margin token name, e.g. "USDC".
	Collateral string `json:"collateral,omitempty"`

	// SzDecimals is the quantity precision digit count (>= 0).
	SzDecimals int `json:"sz_decimals"`

	// PxDecimals is the price precision digit count, always recomputed as
	// max(0, classMaxDecimals-SzDecimals).
	PxDecimals int `json:"px_decimals"`

	// MaxLeverage is 1 for spot assets.
	MaxLeverage int `json:"max_leverage"`

	IsDelisted   bool `json:"is_delisted,omitempty"`
	OnlyIsolated bool `json:"only_isolated,omitempty"`

	// IsCanonical is set for spot pairs with a stable human-readable name.
	// Non-canonical pairs are addressed on the wire as "@<index>".
	IsCanonical bool `json:"is_canonical,omitempty"`
}

// MinSize returns the smallest order size increment, 10^-SzDecimals.
func (d *AssetDescriptor) MinSize() decimal.Decimal {
	return decimal.New(1, -int32(d.SzDecimals))
}

// TickSize returns the smallest price increment, 10^-PxDecimals.
func (d *AssetDescriptor) TickSize() decimal.Decimal {
	return decimal.New(1, -int32(d.PxDecimals))
}

// PairIndex returns the spot pair index for spot assets, derived back from
// the asset ID.
func (d *AssetDescriptor) PairIndex() int {
	if d.Class != ClassSpot {
		return -1
	}
	return d.AssetID - SpotAssetBase
}

// Validate checks the descriptor's class/range invariants.
func (d *AssetDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("asset %d: name cannot be empty", d.AssetID)
	}
	if d.SzDecimals < 0 {
		return fmt.Errorf("asset %q: szDecimals must be >= 0, got %d", d.Name, d.SzDecimals)
	}
	if d.PxDecimals < 0 {
		return fmt.Errorf("asset %q: pxDecimals must be >= 0, got %d", d.Name, d.PxDecimals)
	}
	switch d.Class {
	case ClassPrimary:
		if d.AssetID < 0 || d.AssetID >= SpotAssetBase {
			return fmt.Errorf("asset %q: primary ID %d outside [0, %d)", d.Name, d.AssetID, SpotAssetBase)
		}
	case ClassSpot:
		if d.AssetID < SpotAssetBase || d.AssetID >= SecondaryAssetBase {
			return fmt.Errorf("asset %q: spot ID %d outside [%d, %d)", d.Name, d.AssetID, SpotAssetBase, SecondaryAssetBase)
		}
	case ClassSecondary:
		if d.AssetID < SecondaryAssetBase {
			return fmt.Errorf("asset %q: secondary ID %d below %d", d.Name, d.AssetID, SecondaryAssetBase)
		}
		if d.VenueName == "" {
			return fmt.Errorf("asset %q: secondary asset missing venue name", d.Name)
		}
	default:
		return fmt.Errorf("asset %q: unknown class %d", d.Name, int(d.Class))
	}
	return nil
}

// String implements fmt.Stringer for log output.
func (d *AssetDescriptor) String() string {
	return fmt.Sprintf("Asset{ID: %d, Class: %s, Name: %s, szDec: %d, pxDec: %d}",
		d.AssetID, d.Class, d.Name, d.SzDecimals, d.PxDecimals)
}

// SpotToken is one entry of the spot metadata token table, keyed by index
// rather than name (names are not unique across token generations).
type SpotToken struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	SzDecimals  int    `json:"sz_decimals"`
	WeiDecimals int    `json:"wei_decimals"`
	IsCanonical bool   `json:"is_canonical"`

	// Contract is the on-chain token contract reference, empty for native
	// tokens.
	Contract string `json:"contract,omitempty"`
}

// SpotPair is one entry of the spot metadata universe. Tokens holds exactly
// the [base, quote] token indices.
type SpotPair struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Tokens      [2]int `json:"tokens"`
	IsCanonical bool   `json:"is_canonical"`
}

// BaseToken returns the base token index of the pair.
func (p *SpotPair) BaseToken() int { return p.Tokens[0] }

// QuoteToken returns the quote token index of the pair.
func (p *SpotPair) QuoteToken() int { return p.Tokens[1] }
