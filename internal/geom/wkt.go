package geom

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// WKTFromGeoJSON converts a GeoJSON Polygon or MultiPolygon document into
// its WKT rendering. Other geometry types are rejected; intersection
// geometries are areas, not points or lines.
func WKTFromGeoJSON(doc string) (string, error) {
	var hdr struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}
	if err := json.Unmarshal([]byte(doc), &hdr); err != nil {
		return "", fmt.Errorf("parse geojson: %w", err)
	}
	switch strings.TrimSpace(hdr.Type) {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(hdr.Coordinates, &rings); err != nil {
			return "", fmt.Errorf("parse polygon coords: %w", err)
		}
		body, err := ringsToWKT(rings)
		if err != nil {
			return "", err
		}
		return "POLYGON" + body, nil
	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(hdr.Coordinates, &polys); err != nil {
			return "", fmt.Errorf("parse multipolygon coords: %w", err)
		}
		if len(polys) == 0 {
			return "", errors.New("empty multipolygon")
		}
		parts := make([]string, 0, len(polys))
		for _, rings := range polys {
			body, err := ringsToWKT(rings)
			if err != nil {
				return "", err
			}
			parts = append(parts, body)
		}
		return "MULTIPOLYGON(" + strings.Join(parts, ", ") + ")", nil
	default:
		return "", fmt.Errorf("unsupported geojson type %q", hdr.Type)
	}
}

// ringsToWKT renders one polygon's rings as "((x y, ...), (x y, ...))".
func ringsToWKT(rings [][][]float64) (string, error) {
	if len(rings) == 0 {
		return "", errors.New("empty polygon")
	}
	out := make([]string, 0, len(rings))
	for _, ring := range rings {
		if len(ring) < 4 {
			return "", errors.New("polygon ring has <4 points")
		}
		pts := make([]string, 0, len(ring))
		for _, xy := range ring {
			if len(xy) != 2 {
				return "", errors.New("coordinate must be [x,y]")
			}
			pts = append(pts, fmt.Sprintf("%.8f %.8f", xy[0], xy[1]))
		}
		out = append(out, "("+strings.Join(pts, ", ")+")")
	}
	return "(" + strings.Join(out, ", ") + ")", nil
}
