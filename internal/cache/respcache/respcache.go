// Package respcache caches serialized query responses in Redis. Every
// entry is indexed under its collection and, when the query carried an
// envelope, under the envelope's covering H3 cells, so invalidation
// can purge spatially instead of flushing whole collections.
package respcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/feathergis/queryfront/internal/core/observability"
	"github.com/feathergis/queryfront/internal/storage/redisstore"
)

// Entry is one cached response body with its content type.
type Entry struct {
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type Cache struct {
	cli *redisstore.Client
}

func New(cli *redisstore.Client) *Cache {
	return &Cache{cli: cli}
}

func collectionIndex(database, collection string) string {
	return fmt.Sprintf("respidx:%s/%s:all", database, collection)
}

func cellIndex(database, collection, cell string) string {
	return fmt.Sprintf("respidx:%s/%s:cell:%s", database, collection, cell)
}

func (c *Cache) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := c.cli.Get(ctx, key)
	if err != nil {
		return Entry{}, false, err
	}
	if raw == nil {
		observability.IncCacheMiss("response")
		return Entry{}, false, nil
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode cached response %q: %w", key, err)
	}
	observability.IncCacheHit("response")
	return e, true, nil
}

// Put stores the entry and registers it in the collection index and in
// each cell index. Index sets live twice as long as the entries they
// point at; a dangling member only costs a no-op DEL later.
func (c *Cache) Put(ctx context.Context, key string, e Entry, database, collection string, cells []string, ttl time.Duration) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cached response %q: %w", key, err)
	}
	if err := c.cli.Set(ctx, key, payload, ttl); err != nil {
		return err
	}
	idxTTL := 2 * ttl
	if err := c.cli.SAdd(ctx, collectionIndex(database, collection), idxTTL, key); err != nil {
		return err
	}
	for _, cell := range cells {
		if err := c.cli.SAdd(ctx, cellIndex(database, collection, cell), idxTTL, key); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateCollection purges every cached response for the collection.
func (c *Cache) InvalidateCollection(ctx context.Context, database, collection string) error {
	idx := collectionIndex(database, collection)
	keys, err := c.cli.SMembers(ctx, idx)
	if err != nil {
		return err
	}
	if err := c.cli.Del(ctx, keys...); err != nil {
		return err
	}
	return c.cli.Del(ctx, idx)
}

// InvalidateCells purges cached responses whose envelope touched any
// of the given cells.
func (c *Cache) InvalidateCells(ctx context.Context, database, collection string, cells []string) error {
	for _, cell := range cells {
		idx := cellIndex(database, collection, cell)
		keys, err := c.cli.SMembers(ctx, idx)
		if err != nil {
			return err
		}
		if err := c.cli.Del(ctx, keys...); err != nil {
			return err
		}
		if err := c.cli.Del(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}
