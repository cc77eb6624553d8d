package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/store"
)

// AnalyticsHandler serves instructor-facing usage insights. Events are
// PII-free aggregates; no message text crosses this surface.
type AnalyticsHandler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewAnalyticsHandler creates the analytics handler.
func NewAnalyticsHandler(st *store.Store) *AnalyticsHandler {
	return &AnalyticsHandler{
		store:  st,
		logger: slog.Default().With("component", "analytics-handler"),
	}
}

// RegisterRoutes attaches the analytics endpoints to router.
func (h *AnalyticsHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/analytics/insights", h.HandleInsights).Methods(http.MethodGet)
}

type insightsResponse struct {
	EventCounts map[store.EventType]int `json:"event_counts"`
}

// HandleInsights returns event totals grouped by type over the retention
// window.
func (h *AnalyticsHandler) HandleInsights(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.EventCounts(r.Context())
	if err != nil {
		h.logger.Error("Failed to count analytics events", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong. Please try again later.")
		return
	}
	writeJSON(w, http.StatusOK, insightsResponse{EventCounts: counts})
}
