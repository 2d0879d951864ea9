package invalidation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/feathergis/queryfront/internal/cache/respcache"
	"github.com/feathergis/queryfront/internal/geom"
	"github.com/feathergis/queryfront/internal/mapper/h3grid"
	"github.com/feathergis/queryfront/internal/storage/redisstore"
)

func TestEventValidate(t *testing.T) {
	cases := []struct {
		name string
		ev   Event
		ok   bool
	}{
		{"feature change plain", Event{Version: 1, Kind: KindFeatureChange, Database: "geo", Collection: "roads"}, true},
		{"feature change with bbox", Event{Version: 1, Kind: KindFeatureChange, Database: "geo", Collection: "roads", Bbox: []float64{0, 0, 1, 1}}, true},
		{"view change", Event{Version: 1, Kind: KindViewChange, Database: "geo", Collection: "roads", View: "v1"}, true},
		{"wrong version", Event{Version: 2, Kind: KindFeatureChange, Database: "geo", Collection: "roads"}, false},
		{"missing collection", Event{Version: 1, Kind: KindFeatureChange, Database: "geo"}, false},
		{"unknown kind", Event{Version: 1, Kind: "truncate", Database: "geo", Collection: "roads"}, false},
		{"short bbox", Event{Version: 1, Kind: KindFeatureChange, Database: "geo", Collection: "roads", Bbox: []float64{0, 0, 1}}, false},
		{"degenerate bbox", Event{Version: 1, Kind: KindFeatureChange, Database: "geo", Collection: "roads", Bbox: []float64{1, 1, 1, 1}}, false},
		{"view change without view", Event{Version: 1, Kind: KindViewChange, Database: "geo", Collection: "roads"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.ev.Validate()
			if c.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !c.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

type recordingEvictor struct {
	evicted []string
}

func (r *recordingEvictor) Evict(database, collection, id string) {
	r.evicted = append(r.evicted, database+"/"+collection+"/"+id)
}

func newApplyRig(t *testing.T, cellRes int) (*Consumer, *respcache.Cache, *recordingEvictor) {
	t.Helper()
	mr := miniredis.RunT(t)
	cli, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	cache := respcache.New(cli)
	views := &recordingEvictor{}
	c := NewConsumer(Config{CellRes: cellRes}, nil, cache, views)
	return c, cache, views
}

func TestApply_ViewChange(t *testing.T) {
	c, cache, views := newApplyRig(t, 7)
	ctx := context.Background()

	if err := cache.Put(ctx, "resp:geo/roads:k", respcache.Entry{Body: []byte("x")}, "geo", "roads", nil, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	ev := Event{Version: 1, Kind: KindViewChange, Database: "geo", Collection: "roads", View: "v1"}
	if err := c.Apply(ctx, ev); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if len(views.evicted) != 1 || views.evicted[0] != "geo/roads/v1" {
		t.Fatalf("evictions %v", views.evicted)
	}
	if _, ok, _ := cache.Get(ctx, "resp:geo/roads:k"); ok {
		t.Fatal("cached response survived view change")
	}
}

func TestApply_FeatureChangeWithBboxPurgesByCell(t *testing.T) {
	const res = 7
	c, cache, _ := newApplyRig(t, res)
	ctx := context.Background()

	inside := geom.Envelope{MinX: 18.05, MinY: 59.33, MaxX: 18.08, MaxY: 59.35, CRS: geom.WGS84}
	faraway := geom.Envelope{MinX: -0.2, MinY: 51.48, MaxX: -0.1, MaxY: 51.52, CRS: geom.WGS84}

	insideCells, err := h3grid.CellsForEnvelope(inside, res)
	if err != nil {
		t.Fatalf("cells: %v", err)
	}
	farCells, err := h3grid.CellsForEnvelope(faraway, res)
	if err != nil {
		t.Fatalf("cells: %v", err)
	}

	if err := cache.Put(ctx, "resp:geo/roads:near", respcache.Entry{Body: []byte("n")}, "geo", "roads", insideCells, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := cache.Put(ctx, "resp:geo/roads:far", respcache.Entry{Body: []byte("f")}, "geo", "roads", farCells, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	ev := Event{
		Version: 1, Kind: KindFeatureChange,
		Database: "geo", Collection: "roads",
		Bbox: []float64{inside.MinX, inside.MinY, inside.MaxX, inside.MaxY},
	}
	if err := c.Apply(ctx, ev); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if _, ok, _ := cache.Get(ctx, "resp:geo/roads:near"); ok {
		t.Fatal("spatially affected entry survived")
	}
	if _, ok, _ := cache.Get(ctx, "resp:geo/roads:far"); !ok {
		t.Fatal("unaffected entry was purged")
	}
}

func TestApply_FeatureChangeWithoutBboxPurgesCollection(t *testing.T) {
	c, cache, _ := newApplyRig(t, 7)
	ctx := context.Background()

	if err := cache.Put(ctx, "resp:geo/roads:k", respcache.Entry{Body: []byte("x")}, "geo", "roads", nil, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	ev := Event{Version: 1, Kind: KindFeatureChange, Database: "geo", Collection: "roads"}
	if err := c.Apply(ctx, ev); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "resp:geo/roads:k"); ok {
		t.Fatal("cached response survived collection purge")
	}
}

func TestApply_RejectsInvalidEvent(t *testing.T) {
	c, _, _ := newApplyRig(t, 7)
	ev := Event{Version: 7, Kind: KindFeatureChange, Database: "geo", Collection: "roads"}
	if err := c.Apply(context.Background(), ev); err == nil {
		t.Fatal("expected error")
	}
}

func TestReadiness(t *testing.T) {
	c := NewConsumer(Config{}, nil, nil, nil)
	if ready, _ := c.Readiness(); ready {
		t.Fatal("consumer ready before assignment")
	}
	c.setAssignment(true, []int32{0, 2})
	ready, parts := c.Readiness()
	if !ready || len(parts) != 2 {
		t.Fatalf("ready=%v parts=%v", ready, parts)
	}
}
