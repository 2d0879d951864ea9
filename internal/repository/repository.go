// Package repository defines the contracts the query front end
// executes against: collection metadata, stored view definitions, and
// query execution with streamed results.
package repository

import (
	"context"
	"errors"
	"io"

	"github.com/samber/mo"

	"github.com/feathergis/queryfront/internal/query"
)

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrViewNotFound       = errors.New("view not found")
)

// Result is one executed query: a record stream plus its content type
// and, when the backend reports it, the total match count.
type Result struct {
	Body        io.ReadCloser
	ContentType string
	Total       mo.Option[int64]
}

// Repository executes validated query descriptions. The format token
// is the client's requested serialization ("json", "gml", "csv", or a
// raw mime type); empty means the backend default. Not-found
// conditions surface as the sentinel errors above; everything else is
// a backend failure.
type Repository interface {
	Metadata(ctx context.Context, database, collection string) (query.Metadata, error)
	Query(ctx context.Context, qd query.QueryDescription, format string) (Result, error)
}

// ViewStore persists named view definitions per collection.
type ViewStore interface {
	Get(ctx context.Context, database, collection, id string) (query.ViewDefinition, error)
	Put(ctx context.Context, database, collection, id string, def query.ViewDefinition) error
	Delete(ctx context.Context, database, collection, id string) error
}
