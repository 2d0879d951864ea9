package config

import (
	"testing"
	"time"

	"github.com/feathergis/queryfront/internal/geom"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()
	if cfg.Addr != ":8080" {
		t.Fatalf("addr %q", cfg.Addr)
	}
	if cfg.DefaultCRS != geom.WGS84 {
		t.Fatalf("crs %q", cfg.DefaultCRS)
	}
	if cfg.CellRes != 7 {
		t.Fatalf("cell res %d", cfg.CellRes)
	}
	if cfg.Invalidation.Enabled {
		t.Fatal("invalidation should default off")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("ADDR", ":9999")
	t.Setenv("CELL_RES", "99")
	t.Setenv("COLLECTIONS", "geo/roads, geo/parks ,")
	t.Setenv("COLLECTION_CRS", "geo/roads=epsg:3006")
	t.Setenv("CACHE_TTL_OVERRIDES", "geo/roads=5m,broken,also=bad")
	t.Setenv("CACHE_ENABLED", "no")

	cfg := FromEnv()
	if cfg.Addr != ":9999" {
		t.Fatalf("addr %q", cfg.Addr)
	}
	if cfg.CellRes != 15 {
		t.Fatalf("cell res should clamp to 15, got %d", cfg.CellRes)
	}
	if len(cfg.Collections) != 2 || cfg.Collections[1] != "geo/parks" {
		t.Fatalf("collections %v", cfg.Collections)
	}
	if cfg.CollectionCRS["geo/roads"] != "EPSG:3006" {
		t.Fatalf("crs map %v", cfg.CollectionCRS)
	}
	if len(cfg.CacheTTLOvr) != 1 || cfg.CacheTTLOvr["geo/roads"] != 5*time.Minute {
		t.Fatalf("ttl map %v", cfg.CacheTTLOvr)
	}
	if cfg.CacheEnabled {
		t.Fatal("cache should be disabled")
	}
}

func TestTTLFor(t *testing.T) {
	cfg := Config{
		CacheTTLDefault: time.Minute,
		CacheTTLOvr:     map[string]time.Duration{"geo/roads": 5 * time.Minute},
	}
	if got := cfg.TTLFor("geo", "roads"); got != 5*time.Minute {
		t.Fatalf("override %v", got)
	}
	if got := cfg.TTLFor("geo", "parks"); got != time.Minute {
		t.Fatalf("default %v", got)
	}
}
