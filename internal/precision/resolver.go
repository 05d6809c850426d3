// Package precision derives the price-precision digit count for an asset
// from its class and quantity precision.
package precision

import (
	apperrors "github.com/opmau/hyperliquid-market-data/internal/errors"
	"github.com/opmau/hyperliquid-market-data/internal/models"
)

// Per-class decimal budgets. Perpetuals on any venue share the same budget;
// spot pairs get two more digits.
const (
	PerpMaxDecimals = 6
	SpotMaxDecimals = 8
)

// MaxDecimals returns the decimal budget for an asset class.
func MaxDecimals(class models.AssetClass) int {
	if class == models.ClassSpot {
		return SpotMaxDecimals
	}
	return PerpMaxDecimals
}

// ResolvePx computes pxDecimals = max(0, classMaxDecimals - szDecimals).
// The formula is the single source of truth for price precision: descriptors
// carrying a different precomputed value are defective and get recomputed.
//
// Negative szDecimals violates the caller contract and fails with
// InvalidPrecisionInputError rather than defaulting silently.
func ResolvePx(class models.AssetClass, szDecimals int) (int, error) {
	if szDecimals < 0 {
		return 0, &apperrors.InvalidPrecisionInputError{
			Class:      class.String(),
			SzDecimals: szDecimals,
		}
	}
	px := MaxDecimals(class) - szDecimals
	if px < 0 {
		px = 0
	}
	return px, nil
}
