package wfsrepo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/samber/mo"

	"github.com/feathergis/queryfront/internal/filter"
	"github.com/feathergis/queryfront/internal/geom"
	"github.com/feathergis/queryfront/internal/query"
	"github.com/feathergis/queryfront/internal/repository"
)

func mustParse(t *testing.T, text string) filter.Expression {
	t.Helper()
	expr, err := filter.NewCQLParser().Parse(text)
	if err != nil {
		t.Fatalf("parse %q: %v", text, err)
	}
	return expr
}

func baseDescription() query.QueryDescription {
	return query.QueryDescription{
		Metadata: query.Metadata{
			Database:       "geo",
			Collection:     "roads",
			CRS:            geom.WGS84,
			GeometryColumn: "geom",
		},
	}
}

func TestEndpoint(t *testing.T) {
	if got := Endpoint("http://gs:8080/geoserver/"); got != "http://gs:8080/geoserver/ows" {
		t.Fatalf("got %q", got)
	}
	if got := Endpoint("http://gs:8080/geoserver"); got != "http://gs:8080/geoserver/ows" {
		t.Fatalf("got %q", got)
	}
}

func TestBuildParams_BboxAlone(t *testing.T) {
	qd := baseDescription()
	qd.Envelope = mo.Some(geom.Envelope{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10, CRS: geom.WGS84})

	p := buildGetFeatureParams(qd, "application/json")
	if got := p.Get("bbox"); got != "0,0,10,10,EPSG:4326" {
		t.Fatalf("bbox = %q", got)
	}
	if p.Get("cql_filter") != "" {
		t.Fatalf("unexpected cql_filter %q", p.Get("cql_filter"))
	}
	if got := p.Get("typeNames"); got != "geo:roads" {
		t.Fatalf("typeNames = %q", got)
	}
}

func TestBuildParams_BboxFoldsIntoCQL(t *testing.T) {
	qd := baseDescription()
	qd.Selector = mo.Some(mustParse(t, "status='open'"))
	qd.Envelope = mo.Some(geom.Envelope{MinX: 1, MinY: 2, MaxX: 3, MaxY: 4, CRS: geom.WGS84})

	p := buildGetFeatureParams(qd, "application/json")
	if p.Get("bbox") != "" {
		t.Fatalf("bbox must fold into cql, got %q", p.Get("bbox"))
	}
	want := "(status='open') AND (BBOX(geom, 1, 2, 3, 4))"
	if got := p.Get("cql_filter"); got != want {
		t.Fatalf("cql_filter = %q, want %q", got, want)
	}
}

func TestBuildParams_IntersectionAndSelector(t *testing.T) {
	qd := baseDescription()
	qd.Selector = mo.Some(mustParse(t, "status='open'"))
	qd.IntersectionWKT = mo.Some("POLYGON ((0 0, 1 0, 1 1, 0 0))")

	p := buildGetFeatureParams(qd, "application/json")
	want := "(status='open') AND (INTERSECTS(geom, POLYGON ((0 0, 1 0, 1 1, 0 0))))"
	if got := p.Get("cql_filter"); got != want {
		t.Fatalf("cql_filter = %q, want %q", got, want)
	}
}

func TestBuildParams_PagingProjectionSort(t *testing.T) {
	qd := baseDescription()
	qd.Projection = []string{"id", "name"}
	qd.Sort = query.SortSpec{
		{Field: "name", Dir: query.Desc},
		{Field: "id", Dir: query.Asc},
	}
	qd.Start = 40
	qd.Limit = mo.Some(20)

	p := buildGetFeatureParams(qd, "application/json")
	if got := p.Get("propertyName"); got != "id,name" {
		t.Fatalf("propertyName = %q", got)
	}
	if got := p.Get("sortBy"); got != "name D,id A" {
		t.Fatalf("sortBy = %q", got)
	}
	if got := p.Get("startIndex"); got != "40" {
		t.Fatalf("startIndex = %q", got)
	}
	if got := p.Get("count"); got != "20" {
		t.Fatalf("count = %q", got)
	}
}

func TestBuildParams_ZeroStartOmitted(t *testing.T) {
	p := buildGetFeatureParams(baseDescription(), "application/json")
	if _, ok := p["startIndex"]; ok {
		t.Fatal("startIndex should be omitted when zero")
	}
	if _, ok := p["count"]; ok {
		t.Fatal("count should be omitted when absent")
	}
}

func TestResolveOutputFormat(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", "application/json"},
		{"json", "application/json"},
		{"GeoJSON", "application/json"},
		{"gml", "application/gml+xml; version=3.2"},
		{"csv", "csv"},
		{"application/vnd.custom+json", "application/vnd.custom+json"},
		{"bogus", "application/json"},
	}
	for _, c := range cases {
		if got := resolveOutputFormat(c.in); got != c.want {
			t.Errorf("resolveOutputFormat(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestQuery_StreamsUpstreamResponse(t *testing.T) {
	var seen url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Number-Matched", "123")
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer srv.Close()

	repo, err := New(slog.Default(), srv.Client(), srv.URL+"/ows", Catalog{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	qd := baseDescription()
	qd.Envelope = mo.Some(geom.Envelope{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10, CRS: geom.WGS84})

	res, err := repo.Query(context.Background(), qd, "json")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer res.Body.Close()

	if seen.Get("request") != "GetFeature" || seen.Get("service") != "WFS" {
		t.Fatalf("upstream saw %v", seen)
	}
	if res.ContentType != "application/json" {
		t.Fatalf("content type %q", res.ContentType)
	}
	if res.Total.MustGet() != 123 {
		t.Fatalf("total %+v", res.Total)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != `{"type":"FeatureCollection","features":[]}` {
		t.Fatalf("body %q", body)
	}
}

func TestQuery_UpstreamErrorSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "layer not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	repo, err := New(slog.Default(), srv.Client(), srv.URL+"/ows", Catalog{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = repo.Query(context.Background(), baseDescription(), "json")
	if err == nil || !strings.Contains(err.Error(), "layer not found") {
		t.Fatalf("err = %v", err)
	}
}

func TestMetadata_AllowList(t *testing.T) {
	repo, err := New(slog.Default(), http.DefaultClient, "http://gs/ows", Catalog{
		Collections: []string{"geo/roads"},
		CRS:         map[string]geom.CRSID{"geo/roads": "EPSG:3006"},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	md, err := repo.Metadata(context.Background(), "geo", "roads")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if md.CRS != "EPSG:3006" {
		t.Fatalf("crs %q", md.CRS)
	}

	_, err = repo.Metadata(context.Background(), "geo", "secrets")
	if !errors.Is(err, repository.ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}
