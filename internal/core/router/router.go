// Package router holds the HTTP handlers: the feature-query endpoint
// that runs normalization end to end, and the view administration
// endpoints.
package router

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/feathergis/queryfront/internal/cache/querykey"
	"github.com/feathergis/queryfront/internal/cache/respcache"
	"github.com/feathergis/queryfront/internal/core/config"
	"github.com/feathergis/queryfront/internal/core/observability"
	"github.com/feathergis/queryfront/internal/filter"
	"github.com/feathergis/queryfront/internal/geom"
	"github.com/feathergis/queryfront/internal/logger"
	"github.com/feathergis/queryfront/internal/mapper/h3grid"
	"github.com/feathergis/queryfront/internal/params"
	"github.com/feathergis/queryfront/internal/query"
	"github.com/feathergis/queryfront/internal/repository"
)

type FeaturesHandler struct {
	logger *slog.Logger
	cfg    config.Config
	parser filter.Parser
	norm   *query.Normalizer
	repo   repository.Repository
	views  repository.ViewStore
	cache  *respcache.Cache // nil disables response caching
}

func NewFeatures(l *slog.Logger, cfg config.Config, parser filter.Parser, repo repository.Repository, views repository.ViewStore, cache *respcache.Cache) *FeaturesHandler {
	return &FeaturesHandler{
		logger: l,
		cfg:    cfg,
		parser: parser,
		norm:   query.NewNormalizer(parser),
		repo:   repo,
		views:  views,
		cache:  cache,
	}
}

const featuresRoute = "/features/{database}/{collection}"

func (h *FeaturesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	defer func() {
		observability.ObserveHTTP(r.Method, featuresRoute, sw.code, time.Since(start).Seconds())
	}()

	database := chi.URLParam(r, "database")
	collection := chi.URLParam(r, "collection")
	ctx := logger.WithCollection(r.Context(), database+"/"+collection)

	body, err := h.readBody(r)
	if err != nil {
		http.Error(sw, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	req, err := h.norm.Normalize(params.Values(r.URL.Query()), body)
	if err != nil {
		h.writeError(ctx, sw, err)
		return
	}

	md, err := h.repo.Metadata(ctx, database, collection)
	if err != nil {
		h.writeError(ctx, sw, err)
		return
	}

	view, err := h.fetchView(ctx, database, collection, req)
	if err != nil {
		if ctx.Err() != nil {
			return // client gone, nothing to write
		}
		h.writeError(ctx, sw, err)
		return
	}

	qd, err := query.Build(req, view, md, h.parser)
	if err != nil {
		h.writeError(ctx, sw, err)
		return
	}

	format := req.Format.OrElse("")
	filename, hasFilename := req.Filename.Get()

	cacheable := h.cache != nil && r.Method == http.MethodGet
	var key string
	if cacheable {
		key = querykey.Fingerprint(qd, format)
		if entry, ok, cerr := h.cache.Get(ctx, key); cerr != nil {
			h.logger.Warn("response cache lookup failed", "err", cerr)
		} else if ok {
			sw.Header().Set("Content-Type", entry.ContentType)
			if hasFilename {
				sw.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
			}
			_, _ = sw.Write(entry.Body)
			return
		}
	}

	res, err := h.repo.Query(ctx, qd, format)
	if err != nil {
		h.logger.Error("query execution failed", "err", err)
		http.Error(sw, "upstream error: "+err.Error(), http.StatusBadGateway)
		return
	}
	defer func() { _ = res.Body.Close() }()

	sw.Header().Set("Content-Type", res.ContentType)
	if hasFilename {
		sw.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	}
	if total, ok := res.Total.Get(); ok {
		sw.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	}

	if !cacheable {
		_, _ = io.Copy(sw, res.Body)
		return
	}

	capture := &cappedBuffer{max: h.cfg.CacheMaxBody}
	if _, err := io.Copy(io.MultiWriter(sw, capture), res.Body); err != nil {
		h.logger.Debug("response stream aborted", "err", err)
		return
	}
	if capture.overflow {
		return // too large to cache; already streamed out
	}
	h.storeResponse(qd, key, respcache.Entry{
		ContentType: res.ContentType,
		Body:        capture.buf.Bytes(),
	})
}

// fetchView resolves the named view in its own goroutine so request
// cancellation short-circuits before any merge work runs. No view name
// means the empty definition.
func (h *FeaturesHandler) fetchView(ctx context.Context, database, collection string, req query.CanonicalRequest) (query.ViewDefinition, error) {
	id, ok := req.ViewID.Get()
	if !ok {
		return query.EmptyView, nil
	}

	type result struct {
		def query.ViewDefinition
		err error
	}
	ch := make(chan result, 1)
	go func() {
		def, err := h.views.Get(ctx, database, collection, id)
		ch <- result{def: def, err: err}
	}()

	select {
	case <-ctx.Done():
		return query.ViewDefinition{}, ctx.Err()
	case res := <-ch:
		return res.def, res.err
	}
}

// storeResponse writes the captured body back to the cache, tagged
// with the envelope's covering cells. Runs on a detached context; the
// request may already be done.
func (h *FeaturesHandler) storeResponse(qd query.QueryDescription, key string, entry respcache.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var cells []string
	if env, ok := qd.Envelope.Get(); ok {
		if c, err := h3grid.CellsForEnvelope(env, h.cfg.CellRes); err == nil {
			cells = c
		} else {
			h.logger.Debug("cell mapping failed", "err", err)
		}
	}

	md := qd.Metadata
	ttl := h.cfg.TTLFor(md.Database, md.Collection)
	if err := h.cache.Put(ctx, key, entry, md.Database, md.Collection, cells, ttl); err != nil {
		h.logger.Warn("response cache store failed", "err", err)
	}
}

func (h *FeaturesHandler) readBody(r *http.Request) (string, error) {
	if r.Body == nil {
		return "", nil
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, h.cfg.BodyMaxBytes+1))
	if err != nil {
		return "", errors.New("read request body: " + err.Error())
	}
	if int64(len(b)) > h.cfg.BodyMaxBytes {
		return "", errors.New("request body exceeds limit")
	}
	text := string(b)
	if text == "" {
		return "", nil
	}
	// a GeoJSON body is converted to the WKT the pipeline carries
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/geo+json") {
		wkt, err := geom.WKTFromGeoJSON(text)
		if err != nil {
			return "", err
		}
		return wkt, nil
	}
	return text, nil
}

// writeError maps normalization and repository errors onto HTTP
// status codes. Validation failures are client errors; missing
// collections and views are 404s.
func (h *FeaturesHandler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var malformed *params.MalformedError
	var invalid *query.InvalidQueryError

	switch {
	case errors.As(err, &malformed):
		observability.IncQueryRejection("malformed_parameter")
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &invalid):
		observability.IncQueryRejection("invalid_query")
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, repository.ErrCollectionNotFound),
		errors.Is(err, repository.ErrViewNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		h.logger.ErrorContext(ctx, "request failed", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// cappedBuffer buffers writes up to max bytes and flags overflow
// instead of failing, so oversized responses still stream to the
// client uncached.
type cappedBuffer struct {
	buf      bytes.Buffer
	max      int
	overflow bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if !c.overflow {
		if c.buf.Len()+len(p) > c.max {
			c.overflow = true
			c.buf.Reset()
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}
