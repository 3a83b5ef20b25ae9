// Package httpapi exposes read-only HTTP endpoints over a kvstore.Store:
// a liveness probe and basic occupancy statistics, routed with
// github.com/go-chi/chi/v5.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/emberkv/emberkv/pkg/kvstore"
)

// StatsProvider is implemented by kvstore.Store[string]; it is a narrow
// interface so httpapi does not need the store's generic keyspace type
// parameter.
type StatsProvider interface {
	Stats() kvstore.StoreStats
}

// NewRouter builds the chi router for the HTTP status API.
func NewRouter(store StatsProvider) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := store.Stats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	})

	return r
}
