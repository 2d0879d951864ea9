// Package invalidation applies cache-invalidation events published by
// writers of the underlying feature data and view definitions.
package invalidation

import (
	"fmt"
	"strings"
)

const (
	KindFeatureChange = "feature-change"
	KindViewChange    = "view-change"
)

// Event is one invalidation message. A feature-change with a bbox
// purges only spatially affected cached responses; without one it
// purges the whole collection. A view-change evicts the local view and
// purges the collection, since any cached query built on the view is
// stale.
type Event struct {
	Version    int       `json:"version"`
	Kind       string    `json:"kind"`
	Database   string    `json:"database"`
	Collection string    `json:"collection"`
	View       string    `json:"view,omitempty"`
	Bbox       []float64 `json:"bbox,omitempty"` // minx,miny,maxx,maxy in EPSG:4326
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	if strings.TrimSpace(e.Database) == "" || strings.TrimSpace(e.Collection) == "" {
		return fmt.Errorf("database and collection are required")
	}
	switch e.Kind {
	case KindFeatureChange:
		if len(e.Bbox) != 0 && len(e.Bbox) != 4 {
			return fmt.Errorf("bbox must have exactly 4 values")
		}
		if len(e.Bbox) == 4 && (e.Bbox[2] <= e.Bbox[0] || e.Bbox[3] <= e.Bbox[1]) {
			return fmt.Errorf("bbox must satisfy maxx>minx and maxy>miny")
		}
	case KindViewChange:
		if strings.TrimSpace(e.View) == "" {
			return fmt.Errorf("view is required for %s", KindViewChange)
		}
	default:
		return fmt.Errorf("kind must be %s|%s", KindFeatureChange, KindViewChange)
	}
	return nil
}
