// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Pinger is a backing store that can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConsumerReporter reports the invalidation consumer's assignment.
type ConsumerReporter interface {
	Readiness() (ready bool, partitions []int32)
}

// Readiness reports ready when the store answers a ping and, when a
// consumer is configured, it holds a partition assignment.
func Readiness(store Pinger, consumer ConsumerReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status     string  `json:"status"`
			Store      string  `json:"store,omitempty"`
			Partitions []int32 `json:"partitions,omitempty"`
		}

		out := resp{Status: "ready"}
		ready := true

		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				ready = false
				out.Store = "unreachable"
			} else {
				out.Store = "ok"
			}
		}

		if consumer != nil {
			ok, parts := consumer.Readiness()
			if !ok {
				ready = false
			} else {
				out.Partitions = parts
			}
		}

		if !ready {
			out.Status = "not_ready"
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(out)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}
