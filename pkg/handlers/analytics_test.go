package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/store"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/types"
)

func TestHandleInsights(t *testing.T) {
	st, err := store.NewStore(&store.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	router := mux.NewRouter()
	NewAnalyticsHandler(st).RegisterRoutes(router)

	t.Run("EmptyCounts", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/analytics/insights", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			EventCounts map[string]int `json:"event_counts"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Empty(t, resp.EventCounts)
	})

	t.Run("CountsByType", func(t *testing.T) {
		ctx := context.Background()
		session, err := st.CreateSession(ctx, types.PersonaDefault, 0, "")
		require.NoError(t, err)
		require.NoError(t, st.RecordQueryEvent(ctx, session.ID, "m1", "Default", 0, "global"))
		require.NoError(t, st.RecordQueryEvent(ctx, session.ID, "m2", "Default", 0, "global"))
		require.NoError(t, st.RecordResponseEvent(ctx, session.ID, "m2", "Default", 0, "global", store.ResponseMetrics{}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/analytics/insights", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			EventCounts map[string]int `json:"event_counts"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.EventCounts["query_received"])
		assert.Equal(t, 1, resp.EventCounts["response_sent"])
	})
}
