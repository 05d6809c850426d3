// Package venues builds the venue catalog: the ordered set of deployed
// venues with their stable asset-identifier offsets.
package venues

import (
	"log/slog"

	apperrors "github.com/opmau/hyperliquid-market-data/internal/errors"
	"github.com/opmau/hyperliquid-market-data/internal/exchange"
	"github.com/opmau/hyperliquid-market-data/internal/models"
)

// Catalog is an immutable, ordered view of all venues. Index 0 is always the
// implicit primary venue.
type Catalog struct {
	venues []models.Venue
	byName map[string]int
}

// Build numbers the non-nil entries of a raw venue listing and assigns each
// its identifier offset. The nil entry at position 0 stands for the implicit
// primary venue and is skipped for numbering; venueIndex counts 1, 2, 3...
// across the remaining non-nil entries in array order, and
// offset = 100000 + venueIndex*10000.
//
// A repeated venue name is reported as a DuplicateVenueError in the returned
// warning slice and the first occurrence is kept. Warnings never fail the
// build.
func Build(raw []*exchange.RawVenue, logger *slog.Logger) (*Catalog, []error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "venues")

	c := &Catalog{
		venues: []models.Venue{{VenueIndex: 0, Offset: 0}},
		byName: map[string]int{"": 0},
	}

	var warnings []error
	venueIndex := 0
	for pos, entry := range raw {
		if entry == nil {
			continue
		}
		venueIndex++

		if firstPos, seen := c.byName[entry.Name]; seen {
			warnings = append(warnings, &apperrors.DuplicateVenueError{
				Name:       entry.Name,
				FirstIndex: c.venues[firstPos].VenueIndex,
				DupIndex:   venueIndex,
			})
			continue
		}

		c.byName[entry.Name] = len(c.venues)
		c.venues = append(c.venues, models.Venue{
			Name:       entry.Name,
			FullName:   entry.FullName,
			VenueIndex: venueIndex,
			Offset:     models.SecondaryAssetBase + venueIndex*models.VenueOffsetStride,
		})

		logger.Debug("catalogued venue",
			"name", entry.Name,
			"position", pos,
			"venue_index", venueIndex,
			"offset", c.venues[len(c.venues)-1].Offset)
	}

	return c, warnings
}

// Primary returns the implicit default venue.
func (c *Catalog) Primary() models.Venue {
	return c.venues[0]
}

// Secondary returns the secondary venues in listing order.
func (c *Catalog) Secondary() []models.Venue {
	out := make([]models.Venue, len(c.venues)-1)
	copy(out, c.venues[1:])
	return out
}

// All returns every venue, primary first.
func (c *Catalog) All() []models.Venue {
	out := make([]models.Venue, len(c.venues))
	copy(out, c.venues)
	return out
}

// Lookup finds a venue by name. The empty name resolves to the primary
// venue.
func (c *Catalog) Lookup(name string) (models.Venue, bool) {
	i, ok := c.byName[name]
	if !ok {
		return models.Venue{}, false
	}
	return c.venues[i], true
}

// Len returns the venue count including the primary venue.
func (c *Catalog) Len() int {
	return len(c.venues)
}
