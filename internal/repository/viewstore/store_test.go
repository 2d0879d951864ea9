package viewstore

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/samber/mo"

	"github.com/feathergis/queryfront/internal/query"
	"github.com/feathergis/queryfront/internal/repository"
	"github.com/feathergis/queryfront/internal/storage/redisstore"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cli, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	s, err := New(cli, 8)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return s, mr
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	def := query.ViewDefinition{
		Query:      mo.Some("region='EU'"),
		Projection: mo.Some([]string{"id", "name"}),
	}
	if err := s.Put(ctx, "geo", "roads", "v1", def); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(ctx, "geo", "roads", "v1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Query.MustGet() != "region='EU'" {
		t.Fatalf("query: got %+v", got.Query)
	}
	proj := got.Projection.MustGet()
	if len(proj) != 2 || proj[0] != "id" || proj[1] != "name" {
		t.Fatalf("projection: got %v", proj)
	}
}

func TestStore_MissingIsNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Get(context.Background(), "geo", "roads", "nope")
	if !errors.Is(err, repository.ErrViewNotFound) {
		t.Fatalf("expected ErrViewNotFound, got %v", err)
	}
}

func TestStore_LRUServesAfterRedisLoss(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	def := query.ViewDefinition{Query: mo.Some("a=1")}
	if err := s.Put(ctx, "geo", "roads", "v1", def); err != nil {
		t.Fatalf("put: %v", err)
	}

	// redis loses the key but the hot cache still answers
	mr.FlushAll()
	got, err := s.Get(ctx, "geo", "roads", "v1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Query.MustGet() != "a=1" {
		t.Fatalf("got %+v", got)
	}
}

func TestStore_EvictForcesRedisRead(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "geo", "roads", "v1", query.ViewDefinition{Query: mo.Some("a=1")}); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FlushAll()
	s.Evict("geo", "roads", "v1")

	if _, err := s.Get(ctx, "geo", "roads", "v1"); !errors.Is(err, repository.ErrViewNotFound) {
		t.Fatalf("expected ErrViewNotFound after evict+flush, got %v", err)
	}
}

func TestStore_DeleteRemovesEverywhere(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "geo", "roads", "v1", query.ViewDefinition{Query: mo.Some("a=1")}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Delete(ctx, "geo", "roads", "v1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "geo", "roads", "v1"); !errors.Is(err, repository.ErrViewNotFound) {
		t.Fatalf("expected ErrViewNotFound after delete, got %v", err)
	}
}

func TestStore_ViewWithoutSelector(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	def := query.ViewDefinition{Projection: mo.Some([]string{"id"})}
	if err := s.Put(ctx, "geo", "roads", "proj-only", def); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "geo", "roads", "proj-only")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Query.IsPresent() {
		t.Fatalf("expected no selector, got %+v", got.Query)
	}
}
