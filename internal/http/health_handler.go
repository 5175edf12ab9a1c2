package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/fulfillment-service/internal/cache"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store Pinger
	cache cache.Cache
}

func NewHealthHandler(store Pinger, c cache.Cache) *HealthHandler {
	return &HealthHandler{store: store, cache: c}
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type ReadinessResponse struct {
	Status string              `json:"status"`
	Store  string              `json:"store"`
	Cache  string              `json:"cache"`
	Stats  cache.StatsSnapshot `json:"cache_stats"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "OK", Timestamp: time.Now().UTC()})
}

// Ready reports 503 only when the store is down; a down cache degrades
// performance but not correctness.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := ReadinessResponse{Status: "OK", Store: "up", Cache: "up", Stats: h.cache.Stats()}
	status := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		resp.Status = "UNAVAILABLE"
		resp.Store = "down"
		status = http.StatusServiceUnavailable
	}
	if err := h.cache.Ping(ctx); err != nil {
		resp.Cache = "down"
	}

	respondJSON(w, status, resp)
}
