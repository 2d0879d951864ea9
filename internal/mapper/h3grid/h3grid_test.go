package h3grid

import (
	"sort"
	"testing"

	"github.com/feathergis/queryfront/internal/geom"
)

func TestCellsForEnvelope_CoversBbox(t *testing.T) {
	env := geom.Envelope{MinX: 18.05, MinY: 59.33, MaxX: 18.08, MaxY: 59.35, CRS: geom.WGS84}
	cells, err := CellsForEnvelope(env, 7)
	if err != nil {
		t.Fatalf("cells: %v", err)
	}
	if len(cells) == 0 {
		t.Fatal("expected at least one covering cell")
	}
	if !sort.StringsAreSorted(cells) {
		t.Fatalf("cells not sorted: %v", cells)
	}
	seen := map[string]struct{}{}
	for _, c := range cells {
		if _, dup := seen[c]; dup {
			t.Fatalf("duplicate cell %s", c)
		}
		seen[c] = struct{}{}
	}
}

func TestCellsForEnvelope_NonGeographicCRSYieldsNothing(t *testing.T) {
	env := geom.Envelope{MinX: 600000, MinY: 6500000, MaxX: 610000, MaxY: 6510000, CRS: "EPSG:3006"}
	cells, err := CellsForEnvelope(env, 7)
	if err != nil {
		t.Fatalf("cells: %v", err)
	}
	if cells != nil {
		t.Fatalf("expected no cells, got %d", len(cells))
	}
}

func TestCellsForEnvelope_ResolutionBounds(t *testing.T) {
	env := geom.Envelope{MinX: 0, MinY: 0, MaxX: 0.01, MaxY: 0.01, CRS: geom.WGS84}
	if _, err := CellsForEnvelope(env, -1); err == nil {
		t.Fatal("expected error for res -1")
	}
	if _, err := CellsForEnvelope(env, 16); err == nil {
		t.Fatal("expected error for res 16")
	}
}

func TestCellsForEnvelope_FinerResolutionMeansMoreCells(t *testing.T) {
	env := geom.Envelope{MinX: 18.05, MinY: 59.33, MaxX: 18.08, MaxY: 59.35, CRS: geom.WGS84}
	coarse, err := CellsForEnvelope(env, 6)
	if err != nil {
		t.Fatalf("coarse: %v", err)
	}
	fine, err := CellsForEnvelope(env, 8)
	if err != nil {
		t.Fatalf("fine: %v", err)
	}
	if len(fine) <= len(coarse) {
		t.Fatalf("res 8 gave %d cells, res 6 gave %d", len(fine), len(coarse))
	}
}
