package query

import (
	"strings"

	"github.com/samber/mo"

	"github.com/feathergis/queryfront/internal/filter"
	"github.com/feathergis/queryfront/internal/params"
)

// CanonicalRequest is the validated, typed form of one incoming
// request's query string and body. Immutable after Normalize; it lives
// only until the QueryDescription is built.
type CanonicalRequest struct {
	BboxText        mo.Option[string]
	Selector        mo.Option[filter.Expression]
	Projection      []string
	ViewID          mo.Option[string]
	SortFields      []string
	SortDirections  []string
	Start           int
	Limit           mo.Option[int]
	IntersectionWKT mo.Option[string]
	Format          mo.Option[string]
	Filename        mo.Option[string]
}

// Normalizer holds the immutable parameter table: one typed extractor
// per recognized parameter name, constructed once and shared across
// requests. No ambient state; the parameter map is passed explicitly.
type Normalizer struct {
	parser filter.Parser

	bbox       params.Param[string]
	view       params.Param[string]
	limit      params.Param[int]
	start      params.Param[int]
	projection params.Param[[]string]
	sortBy     params.Param[[]string]
	sortDir    params.Param[[]string]
	queryText  params.Param[string]
	format     params.Param[string]
	filename   params.Param[string]
}

func NewNormalizer(p filter.Parser) *Normalizer {
	return &Normalizer{
		parser:     p,
		bbox:       params.Raw("bbox"),
		view:       params.String("with-view"),
		limit:      params.Int("limit"),
		start:      params.Int("start"),
		projection: params.List("projection"),
		sortBy:     params.List("sort"),
		sortDir:    params.List("sort-direction"),
		queryText:  params.String("query"),
		format:     params.Raw("fmt"),
		filename:   params.Raw("filename"),
	}
}

// Normalize extracts every recognized parameter from values and reads
// body as the optional intersection geometry (WKT). Numeric and
// list-valued parameters fail hard on malformed input; the bbox text
// is carried raw and parsed leniently later, once the collection's CRS
// is known.
func (n *Normalizer) Normalize(values params.Values, body string) (CanonicalRequest, error) {
	var req CanonicalRequest
	var err error

	if req.BboxText, err = extractNonBlank(n.bbox, values); err != nil {
		return CanonicalRequest{}, err
	}
	if req.ViewID, err = n.view.Extract(values); err != nil {
		return CanonicalRequest{}, err
	}
	if req.Limit, err = n.limit.Extract(values); err != nil {
		return CanonicalRequest{}, err
	}
	start, err := n.start.Extract(values)
	if err != nil {
		return CanonicalRequest{}, err
	}
	req.Start = start.OrElse(0)

	proj, err := n.projection.Extract(values)
	if err != nil {
		return CanonicalRequest{}, err
	}
	req.Projection = proj.OrElse(nil)

	sortFields, err := n.sortBy.Extract(values)
	if err != nil {
		return CanonicalRequest{}, err
	}
	req.SortFields = sortFields.OrElse(nil)

	sortDirs, err := n.sortDir.Extract(values)
	if err != nil {
		return CanonicalRequest{}, err
	}
	req.SortDirections = sortDirs.OrElse(nil)

	text, err := n.queryText.Extract(values)
	if err != nil {
		return CanonicalRequest{}, err
	}
	if raw, ok := text.Get(); ok {
		expr, perr := n.parser.Parse(raw)
		if perr != nil {
			return CanonicalRequest{}, &InvalidQueryError{Reason: "query filter does not parse", Err: perr}
		}
		req.Selector = mo.Some(expr)
	}

	if req.Format, err = extractNonBlank(n.format, values); err != nil {
		return CanonicalRequest{}, err
	}
	if req.Filename, err = extractNonBlank(n.filename, values); err != nil {
		return CanonicalRequest{}, err
	}

	if b := strings.TrimSpace(body); b != "" {
		req.IntersectionWKT = mo.Some(b)
	}
	return req, nil
}

// extractNonBlank folds a present-but-blank lenient parameter into
// absence instead of surfacing an empty string.
func extractNonBlank(p params.Param[string], values params.Values) (mo.Option[string], error) {
	v, err := p.Extract(values)
	if err != nil {
		return mo.None[string](), err
	}
	if s, ok := v.Get(); ok && s == "" {
		return mo.None[string](), nil
	}
	return v, nil
}
