// Package wfsrepo executes query descriptions against an upstream
// WFS 2.0 server (GeoServer-style /ows endpoint) and streams the
// response back.
package wfsrepo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"

	"github.com/feathergis/queryfront/internal/core/observability"
	"github.com/feathergis/queryfront/internal/geom"
	"github.com/feathergis/queryfront/internal/query"
	"github.com/feathergis/queryfront/internal/repository"
)

// Catalog maps collections to their metadata. The upstream holds the
// actual schemas; the catalog only carries what normalization needs:
// CRS, geometry column, and an optional allow-list.
type Catalog struct {
	DefaultCRS     geom.CRSID
	GeometryColumn string
	CRS            map[string]geom.CRSID // "database/collection" overrides
	Collections    []string              // allow-list; empty allows everything
}

type Repo struct {
	logger  *slog.Logger
	client  *http.Client
	owsURL  *url.URL
	catalog Catalog
}

// Endpoint derives the OWS endpoint from a server base URL.
func Endpoint(base string) string {
	return strings.TrimRight(base, "/") + "/ows"
}

func New(logger *slog.Logger, client *http.Client, ows string, catalog Catalog) (*Repo, error) {
	u, err := url.Parse(ows)
	if err != nil {
		return nil, fmt.Errorf("parse ows url: %w", err)
	}
	if catalog.DefaultCRS == "" {
		catalog.DefaultCRS = geom.WGS84
	}
	if catalog.GeometryColumn == "" {
		catalog.GeometryColumn = "geom"
	}
	return &Repo{logger: logger, client: client, owsURL: u, catalog: catalog}, nil
}

func (r *Repo) Metadata(_ context.Context, database, collection string) (query.Metadata, error) {
	ref := database + "/" + collection
	if len(r.catalog.Collections) > 0 {
		known := false
		for _, c := range r.catalog.Collections {
			if c == ref {
				known = true
				break
			}
		}
		if !known {
			return query.Metadata{}, fmt.Errorf("%w: %s", repository.ErrCollectionNotFound, ref)
		}
	}
	crs := r.catalog.DefaultCRS
	if c, ok := r.catalog.CRS[ref]; ok {
		crs = c
	}
	return query.Metadata{
		Database:       database,
		Collection:     collection,
		CRS:            crs,
		GeometryColumn: r.catalog.GeometryColumn,
	}, nil
}

func (r *Repo) Query(ctx context.Context, qd query.QueryDescription, format string) (repository.Result, error) {
	params := buildGetFeatureParams(qd, resolveOutputFormat(format))

	u := *r.owsURL
	u.RawQuery = params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return repository.Result{}, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Accept", params.Get("outputFormat"))

	r.logger.Debug("upstream GetFeature",
		"collection", qd.Metadata.Database+"/"+qd.Metadata.Collection,
		"url", r.owsURL.String())

	start := time.Now()
	resp, err := r.client.Do(req)
	observability.ObserveUpstreamLatency("wfs", time.Since(start).Seconds())
	if err != nil {
		return repository.Result{}, fmt.Errorf("upstream request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		_ = resp.Body.Close()
		return repository.Result{}, fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(b))
	}

	return repository.Result{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Total:       totalFromHeader(resp.Header),
	}, nil
}

// buildGetFeatureParams renders a QueryDescription as WFS 2.0
// GetFeature parameters. When a cql_filter is present the envelope
// folds into it as a BBOX predicate, since the upstream rejects bbox
// and cql_filter together.
func buildGetFeatureParams(qd query.QueryDescription, outputFormat string) url.Values {
	md := qd.Metadata
	params := url.Values{}
	params.Set("service", "WFS")
	params.Set("version", "2.0.0")
	params.Set("request", "GetFeature")
	params.Set("typeNames", md.Database+":"+md.Collection)

	var cql []string
	if sel, ok := qd.Selector.Get(); ok {
		cql = append(cql, sel.CQL())
	}
	if wkt, ok := qd.IntersectionWKT.Get(); ok {
		cql = append(cql, fmt.Sprintf("INTERSECTS(%s, %s)", md.GeometryColumn, wkt))
	}

	if env, ok := qd.Envelope.Get(); ok {
		if len(cql) > 0 {
			cql = append(cql, fmt.Sprintf("BBOX(%s, %g, %g, %g, %g)",
				md.GeometryColumn, env.MinX, env.MinY, env.MaxX, env.MaxY))
		} else {
			params.Set("bbox", env.String())
		}
	}

	if len(cql) == 1 {
		params.Set("cql_filter", cql[0])
	} else if len(cql) > 1 {
		params.Set("cql_filter", "("+strings.Join(cql, ") AND (")+")")
	}

	if len(qd.Projection) > 0 {
		params.Set("propertyName", strings.Join(qd.Projection, ","))
	}
	if len(qd.Sort) > 0 {
		parts := make([]string, 0, len(qd.Sort))
		for _, s := range qd.Sort {
			d := "A"
			if s.Dir == query.Desc {
				d = "D"
			}
			parts = append(parts, s.Field+" "+d)
		}
		params.Set("sortBy", strings.Join(parts, ","))
	}
	if qd.Start > 0 {
		params.Set("startIndex", strconv.Itoa(qd.Start))
	}
	if limit, ok := qd.Limit.Get(); ok {
		params.Set("count", strconv.Itoa(limit))
	}
	params.Set("outputFormat", outputFormat)
	return params
}

// resolveOutputFormat maps the client's fmt token to an upstream
// outputFormat. Raw mime types pass through.
func resolveOutputFormat(token string) string {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "", "json", "geojson":
		return "application/json"
	case "gml":
		return "application/gml+xml; version=3.2"
	case "csv":
		return "csv"
	default:
		if strings.Contains(token, "/") {
			return token
		}
		return "application/json"
	}
}

func totalFromHeader(h http.Header) mo.Option[int64] {
	// GeoServer reports the match count on a vendor header for some
	// output formats; absent is fine, the count is optional.
	if v := h.Get("X-Number-Matched"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return mo.Some(n)
		}
	}
	return mo.None[int64]()
}
