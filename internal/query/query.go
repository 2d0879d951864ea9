// Package query turns raw request parameters and stored view
// definitions into one canonical, validated query description that the
// repository layer executes.
package query

import (
	"github.com/samber/mo"

	"github.com/feathergis/queryfront/internal/filter"
	"github.com/feathergis/queryfront/internal/geom"
)

// Metadata describes the target collection: where it lives, which CRS
// its geometries carry, and which attribute holds the geometry. Owned
// by the repository; read-only here.
type Metadata struct {
	Database       string
	Collection     string
	CRS            geom.CRSID
	GeometryColumn string
}

// QueryDescription is the final merged artifact handed to the
// repository for execution. Immutable, consumed exactly once.
type QueryDescription struct {
	Envelope        mo.Option[geom.Envelope]
	IntersectionWKT mo.Option[string]
	Selector        mo.Option[filter.Expression]
	Projection      []string
	Sort            SortSpec
	Start           int
	Limit           mo.Option[int]
	Metadata        Metadata
}

// Build merges a canonical request with its (possibly empty) view
// definition into a QueryDescription. The bbox text is parsed here,
// under the collection's CRS, with lenient semantics: a malformed bbox
// means no spatial envelope, never an error. Selector and projection
// merges follow the view-as-baseline rules; the sort spec pairs fields
// and directions positionally.
func Build(req CanonicalRequest, view ViewDefinition, md Metadata, p filter.Parser) (QueryDescription, error) {
	selector, err := MergeSelector(view, req.Selector, p)
	if err != nil {
		return QueryDescription{}, err
	}

	envelope := mo.None[geom.Envelope]()
	if text, ok := req.BboxText.Get(); ok {
		envelope = geom.ParseBbox(text, md.CRS)
	}

	return QueryDescription{
		Envelope:        envelope,
		IntersectionWKT: req.IntersectionWKT,
		Selector:        selector,
		Projection:      MergeProjection(view, req.Projection),
		Sort:            BuildSortSpec(req.SortFields, req.SortDirections),
		Start:           req.Start,
		Limit:           req.Limit,
		Metadata:        md,
	}, nil
}
