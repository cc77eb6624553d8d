package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	m.RecordQuery("global", OutcomeAnswered)
	m.RecordQuery("global", OutcomeAnswered)
	m.RecordQuery("selection", OutcomeInsufficientSelection)
	m.RecordCitations(3)
	m.RecordRetrieval(150 * time.Millisecond)
	m.RecordFirstToken(900 * time.Millisecond)
	m.RecordTurn(4 * time.Second)
	m.WSConnected()
	m.WSConnected()
	m.WSDisconnected()

	assert.Equal(t, float64(2),
		testutil.ToFloat64(m.queriesTotal.WithLabelValues("global", OutcomeAnswered)))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.queriesTotal.WithLabelValues("selection", OutcomeInsufficientSelection)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.wsConnections))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordQuery("global", OutcomeOutOfScope)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chat_queries_total")
}

func TestIndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := NewMetrics()
	b := NewMetrics()
	a.RecordQuery("global", OutcomeAnswered)
	assert.Equal(t, float64(0),
		testutil.ToFloat64(b.queriesTotal.WithLabelValues("global", OutcomeAnswered)))
}
