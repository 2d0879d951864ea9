package router

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/feathergis/queryfront/internal/core/observability"
	"github.com/feathergis/queryfront/internal/filter"
	"github.com/feathergis/queryfront/internal/query"
	"github.com/feathergis/queryfront/internal/repository"
)

// ViewsHandler administers stored view definitions.
type ViewsHandler struct {
	logger *slog.Logger
	parser filter.Parser
	views  repository.ViewStore
}

func NewViews(l *slog.Logger, parser filter.Parser, views repository.ViewStore) *ViewsHandler {
	return &ViewsHandler{logger: l, parser: parser, views: views}
}

const viewsRoute = "/views/{database}/{collection}/{view}"

func (h *ViewsHandler) Get(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	defer func() {
		observability.ObserveHTTP(r.Method, viewsRoute, sw.code, time.Since(start).Seconds())
	}()

	database, collection, id := viewParams(r)
	def, err := h.views.Get(r.Context(), database, collection, id)
	if err != nil {
		if errors.Is(err, repository.ErrViewNotFound) {
			http.Error(sw, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("view fetch failed", "err", err)
		http.Error(sw, "internal server error", http.StatusInternalServerError)
		return
	}
	sw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(sw).Encode(def)
}

// Put stores a view definition. The selector text is parsed up front;
// a view that cannot parse would block every query naming it.
func (h *ViewsHandler) Put(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	defer func() {
		observability.ObserveHTTP(r.Method, viewsRoute, sw.code, time.Since(start).Seconds())
	}()

	database, collection, id := viewParams(r)

	b, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		http.Error(sw, "read request body", http.StatusBadRequest)
		return
	}
	var def query.ViewDefinition
	if err := json.Unmarshal(b, &def); err != nil {
		http.Error(sw, "invalid view definition: "+err.Error(), http.StatusBadRequest)
		return
	}
	if text, ok := def.Query.Get(); ok {
		if _, err := h.parser.Parse(text); err != nil {
			http.Error(sw, "view filter does not parse: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	if err := h.views.Put(r.Context(), database, collection, id, def); err != nil {
		h.logger.Error("view store failed", "err", err)
		http.Error(sw, "internal server error", http.StatusInternalServerError)
		return
	}
	sw.WriteHeader(http.StatusNoContent)
}

func (h *ViewsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	defer func() {
		observability.ObserveHTTP(r.Method, viewsRoute, sw.code, time.Since(start).Seconds())
	}()

	database, collection, id := viewParams(r)
	if err := h.views.Delete(r.Context(), database, collection, id); err != nil {
		h.logger.Error("view delete failed", "err", err)
		http.Error(sw, "internal server error", http.StatusInternalServerError)
		return
	}
	sw.WriteHeader(http.StatusNoContent)
}

func viewParams(r *http.Request) (database, collection, id string) {
	return chi.URLParam(r, "database"), chi.URLParam(r, "collection"), chi.URLParam(r, "view")
}
