// Package viewstore persists named view definitions in Redis with an
// in-process LRU in front. Views are durable (no TTL); the LRU only
// spares the round trip for hot views and is evicted on invalidation
// events.
package viewstore

import (
	"context"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/feathergis/queryfront/internal/core/observability"
	"github.com/feathergis/queryfront/internal/query"
	"github.com/feathergis/queryfront/internal/repository"
	"github.com/feathergis/queryfront/internal/storage/redisstore"
)

type Store struct {
	cli *redisstore.Client
	hot *lru.Cache[string, query.ViewDefinition]
}

func New(cli *redisstore.Client, cacheSize int) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	hot, err := lru.New[string, query.ViewDefinition](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("view lru: %w", err)
	}
	return &Store{cli: cli, hot: hot}, nil
}

func key(database, collection, id string) string {
	return fmt.Sprintf("views:%s:%s:%s", database, collection, id)
}

func (s *Store) Get(ctx context.Context, database, collection, id string) (query.ViewDefinition, error) {
	k := key(database, collection, id)
	if def, ok := s.hot.Get(k); ok {
		observability.IncCacheHit("view")
		return def, nil
	}
	observability.IncCacheMiss("view")

	raw, err := s.cli.Get(ctx, k)
	if err != nil {
		return query.ViewDefinition{}, err
	}
	if raw == nil {
		return query.ViewDefinition{}, fmt.Errorf("%w: %s/%s/%s", repository.ErrViewNotFound, database, collection, id)
	}
	var def query.ViewDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return query.ViewDefinition{}, fmt.Errorf("decode view %q: %w", k, err)
	}
	s.hot.Add(k, def)
	return def, nil
}

func (s *Store) Put(ctx context.Context, database, collection, id string, def query.ViewDefinition) error {
	k := key(database, collection, id)
	payload, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode view %q: %w", k, err)
	}
	if err := s.cli.Set(ctx, k, payload, 0); err != nil {
		return err
	}
	s.hot.Add(k, def)
	return nil
}

func (s *Store) Delete(ctx context.Context, database, collection, id string) error {
	k := key(database, collection, id)
	s.hot.Remove(k)
	return s.cli.Del(ctx, k)
}

// Evict drops the view from the in-process LRU only. Used when an
// invalidation event reports the definition changed elsewhere; Redis
// already holds the new truth.
func (s *Store) Evict(database, collection, id string) {
	s.hot.Remove(key(database, collection, id))
}

func (s *Store) Ping(ctx context.Context) error {
	return s.cli.Ping(ctx)
}
