package registry

import (
	"sort"
	"time"

	apperrors "github.com/opmau/hyperliquid-market-data/internal/errors"
	"github.com/opmau/hyperliquid-market-data/internal/models"
	"github.com/opmau/hyperliquid-market-data/internal/venues"
)

// Snapshot is one immutable, internally consistent build of the asset map.
// Snapshots are replaced wholesale on refresh; readers holding an old
// snapshot keep a coherent view.
type Snapshot struct {
	catalog *venues.Catalog

	byID   map[int]*models.AssetDescriptor
	byName map[string]*models.AssetDescriptor // display names
	byCoin map[string]*models.AssetDescriptor // wire coin strings

	// bare secondary coin -> descriptors, for prefix-less fallback lookups
	secondaryByCoin map[string][]*models.AssetDescriptor

	tokens  map[int]models.SpotToken
	builtAt time.Time
}

func newSnapshot(catalog *venues.Catalog) *Snapshot {
	return &Snapshot{
		catalog:         catalog,
		byID:            make(map[int]*models.AssetDescriptor),
		byName:          make(map[string]*models.AssetDescriptor),
		byCoin:          make(map[string]*models.AssetDescriptor),
		secondaryByCoin: make(map[string][]*models.AssetDescriptor),
		tokens:          make(map[int]models.SpotToken),
		builtAt:         time.Now().UTC(),
	}
}

// add registers a descriptor under its ID and lookup keys. An already
// occupied ID aborts the build.
func (s *Snapshot) add(d *models.AssetDescriptor, wireCoin string) error {
	if existing, ok := s.byID[d.AssetID]; ok {
		return &apperrors.AssetCollisionError{
			AssetID:  d.AssetID,
			Existing: existing.Name,
			Incoming: d.Name,
		}
	}
	s.byID[d.AssetID] = d
	s.byName[d.Name] = d
	s.byCoin[wireCoin] = d
	if d.Class == models.ClassSecondary {
		s.secondaryByCoin[d.Coin] = append(s.secondaryByCoin[d.Coin], d)
	}
	return nil
}

// Lookup returns the descriptor for an asset ID.
func (s *Snapshot) Lookup(assetID int) (*models.AssetDescriptor, error) {
	d, ok := s.byID[assetID]
	if !ok {
		return nil, &apperrors.UnknownAssetError{AssetID: assetID}
	}
	return d, nil
}

// ByWireCoin returns the descriptor registered under a wire coin string.
func (s *Snapshot) ByWireCoin(coin string) (*models.AssetDescriptor, bool) {
	d, ok := s.byCoin[coin]
	return d, ok
}

// Venues returns the venue catalog the snapshot was built against.
func (s *Snapshot) Venues() *venues.Catalog {
	return s.catalog
}

// Token returns a spot token by its table index.
func (s *Snapshot) Token(index int) (models.SpotToken, bool) {
	t, ok := s.tokens[index]
	return t, ok
}

// Descriptors returns every descriptor ordered by asset ID.
func (s *Snapshot) Descriptors() []*models.AssetDescriptor {
	out := make([]*models.AssetDescriptor, 0, len(s.byID))
	for _, d := range s.byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

// Len returns the descriptor count.
func (s *Snapshot) Len() int {
	return len(s.byID)
}

// BuiltAt returns when the snapshot was assembled.
func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}
