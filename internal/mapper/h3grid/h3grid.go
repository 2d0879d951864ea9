// Package h3grid maps envelopes onto covering H3 cells. The cells tag
// cached responses so invalidation events with a geometry can purge
// only the entries they touch.
package h3grid

import (
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/feathergis/queryfront/internal/geom"
)

// CellsForEnvelope returns the sorted, de-duplicated H3 cells covering
// env at resolution res. H3 works in geographic degrees, so envelopes
// in any CRS other than EPSG:4326 yield no cells; callers fall back to
// collection-wide tagging.
func CellsForEnvelope(env geom.Envelope, res int) ([]string, error) {
	if res < 0 || res > 15 {
		return nil, fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	if env.CRS != geom.WGS84 {
		return nil, nil
	}

	outer := h3.GeoLoop{
		{Lat: env.MinY, Lng: env.MinX},
		{Lat: env.MinY, Lng: env.MaxX},
		{Lat: env.MaxY, Lng: env.MaxX},
		{Lat: env.MaxY, Lng: env.MinX},
	}
	cells, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer}, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}

	out := make([]string, 0, len(cells))
	seen := make(map[string]struct{}, len(cells))
	for _, c := range cells {
		s := c.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}
