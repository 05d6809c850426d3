package precision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/opmau/hyperliquid-market-data/internal/errors"
	"github.com/opmau/hyperliquid-market-data/internal/models"
)

func TestResolvePx(t *testing.T) {
	tests := []struct {
		name       string
		class      models.AssetClass
		szDecimals int
		want       int
	}{
		{"primary typical", models.ClassPrimary, 2, 4},
		{"primary whole-unit", models.ClassPrimary, 0, 6},
		{"primary at budget", models.ClassPrimary, 6, 0},
		{"primary over budget clamps", models.ClassPrimary, 8, 0},
		{"secondary same budget as primary", models.ClassSecondary, 2, 4},
		{"secondary over budget clamps", models.ClassSecondary, 7, 0},
		{"spot typical", models.ClassSpot, 2, 6},
		{"spot whole-unit", models.ClassSpot, 0, 8},
		{"spot at budget", models.ClassSpot, 8, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePx(tt.class, tt.szDecimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolvePxFormulaHolds(t *testing.T) {
	// pxDecimals = max(0, classMaxDecimals - szDecimals) for the whole
	// plausible szDecimals range.
	for _, class := range []models.AssetClass{models.ClassPrimary, models.ClassSecondary, models.ClassSpot} {
		for sz := 0; sz <= 8; sz++ {
			got, err := ResolvePx(class, sz)
			require.NoError(t, err)

			want := MaxDecimals(class) - sz
			if want < 0 {
				want = 0
			}
			assert.Equal(t, want, got, "class %s szDecimals %d", class, sz)
			assert.GreaterOrEqual(t, got, 0)
		}
	}
}

func TestResolvePxRejectsNegativeInput(t *testing.T) {
	_, err := ResolvePx(models.ClassPrimary, -1)
	require.Error(t, err)

	var invalid *apperrors.InvalidPrecisionInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, -1, invalid.SzDecimals)
	assert.Equal(t, "primary", invalid.Class)
}

func TestMaxDecimals(t *testing.T) {
	assert.Equal(t, 6, MaxDecimals(models.ClassPrimary))
	assert.Equal(t, 6, MaxDecimals(models.ClassSecondary))
	assert.Equal(t, 8, MaxDecimals(models.ClassSpot))
}
