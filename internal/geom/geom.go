// Package geom defines the spatial types used by query normalization.
package geom

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/mo"
)

// CRSID identifies a coordinate reference system, e.g. "EPSG:4326".
type CRSID string

const WGS84 CRSID = "EPSG:4326"

func (c CRSID) String() string { return string(c) }

// Envelope is an axis-aligned bounding box in a given CRS.
// Invariant: MinX < MaxX and MinY < MaxY; a degenerate envelope is
// never constructed, ParseBbox returns None instead.
type Envelope struct {
	MinX, MinY float64
	MaxX, MaxY float64
	CRS        CRSID
}

// String representation matching the wfs/wms bbox parameter format.
func (e Envelope) String() string {
	return fmt.Sprintf("%g,%g,%g,%g,%s", e.MinX, e.MinY, e.MaxX, e.MaxY, e.CRS)
}

// ParseBbox parses "minx,miny,maxx,maxy" into an Envelope under crs.
// Parsing is deliberately lenient: anything that is not four parseable
// numbers with positive extent on both axes yields None, never an error.
// A broken bbox downgrades to "no spatial filter" rather than failing
// an otherwise valid query.
func ParseBbox(text string, crs CRSID) mo.Option[Envelope] {
	parts := strings.Split(strings.TrimSpace(text), ",")
	if len(parts) != 4 {
		return mo.None[Envelope]()
	}
	var vals [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return mo.None[Envelope]()
		}
		vals[i] = f
	}
	env := Envelope{MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3], CRS: crs}
	if env.MaxX <= env.MinX || env.MaxY <= env.MinY {
		return mo.None[Envelope]()
	}
	return mo.Some(env)
}
