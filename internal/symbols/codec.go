// Package symbols converts between asset descriptors and the exact wire
// coin strings the market-data API addresses them by.
package symbols

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/opmau/hyperliquid-market-data/internal/errors"
	"github.com/opmau/hyperliquid-market-data/internal/models"
	"github.com/opmau/hyperliquid-market-data/internal/registry"
)

// Codec encodes and decodes wire coin strings against one registry
// snapshot. Encode followed by Decode round-trips exactly for every
// descriptor in the snapshot; a mismatch is a defect, not an acceptable
// lossy mapping.
type Codec struct {
	snap *registry.Snapshot
}

// New binds a codec to a snapshot.
func New(snap *registry.Snapshot) *Codec {
	return &Codec{snap: snap}
}

// Encode returns the wire coin string for a descriptor:
//
//   - primary perp: the coin name verbatim ("BTC")
//   - secondary perp: "venue:COIN" ("xyz:GOLD")
//   - canonical spot pair: the pair's listed name
//   - non-canonical spot pair: "@<pairIndex>" ("@107")
func (c *Codec) Encode(d *models.AssetDescriptor) string {
	switch d.Class {
	case models.ClassSecondary:
		return d.VenueName + ":" + d.Coin
	case models.ClassSpot:
		if d.IsCanonical {
			return d.Coin
		}
		return fmt.Sprintf("@%d", d.PairIndex())
	default:
		return d.Coin
	}
}

// Decode maps a wire coin string back to its descriptor. It is the exact
// inverse of Encode over the bound snapshot.
func (c *Codec) Decode(wire string) (*models.AssetDescriptor, error) {
	if wire == "" {
		return nil, &apperrors.SymbolResolutionError{Symbol: wire, Reason: "empty wire coin"}
	}

	if d, ok := c.snap.ByWireCoin(wire); ok {
		return d, nil
	}

	// Give index-form misses a sharper diagnosis than a generic failure.
	if idxStr, ok := strings.CutPrefix(wire, "@"); ok {
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			return nil, &apperrors.SymbolResolutionError{
				Symbol: wire,
				Reason: "malformed spot pair index",
			}
		}
		return nil, &apperrors.SymbolResolutionError{
			Symbol: wire,
			Reason: fmt.Sprintf("no spot pair at index %d", idx),
		}
	}

	return nil, &apperrors.SymbolResolutionError{Symbol: wire}
}
