package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetrics_CountsByPattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics("clinic-service", reg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/statuses/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := m.Middleware(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/statuses/1", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/statuses/2", nil))

	got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "GET /api/v1/statuses/{id}", "404"))
	assert.Equal(t, 2.0, got)

	rw := httptest.NewRecorder()
	m.Handler().ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Contains(t, rw.Body.String(), "healpoint_http_requests_total")
}

func TestHTTPMetrics_NilSafe(t *testing.T) {
	var m *HTTPMetrics
	h := m.Middleware(http.NotFoundHandler())
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rw.Code)
}
