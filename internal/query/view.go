package query

import (
	"github.com/samber/mo"

	"github.com/feathergis/queryfront/internal/filter"
)

// ViewDefinition is a server-stored, named baseline applied to any
// query naming it: an optional selector plus an optional projection.
type ViewDefinition struct {
	Query      mo.Option[string]   `json:"query"`
	Projection mo.Option[[]string] `json:"projection"`
}

// EmptyView is the definition used when the request names no view.
var EmptyView = ViewDefinition{}

// MergeSelector combines the view's stored selector text with the
// request's parsed selector. The view filter is a baseline the request
// narrows further, so two present selectors conjoin with AND, view
// side first. A stored selector that fails to parse blocks execution
// and surfaces as an InvalidQueryError.
func MergeSelector(view ViewDefinition, request mo.Option[filter.Expression], p filter.Parser) (mo.Option[filter.Expression], error) {
	text, hasView := view.Query.Get()
	if !hasView {
		return request, nil
	}
	viewExpr, err := p.Parse(text)
	if err != nil {
		return mo.None[filter.Expression](), &InvalidQueryError{Reason: "stored view filter does not parse", Err: err}
	}
	if reqExpr, ok := request.Get(); ok {
		return mo.Some(filter.And(viewExpr, reqExpr)), nil
	}
	return mo.Some(viewExpr), nil
}

// MergeProjection concatenates the view's projection with the
// request's, view fields first, each in original order. Duplicates are
// kept; projection semantics belong to the repository downstream.
func MergeProjection(view ViewDefinition, request []string) []string {
	base := view.Projection.OrElse(nil)
	out := make([]string, 0, len(base)+len(request))
	out = append(out, base...)
	return append(out, request...)
}
