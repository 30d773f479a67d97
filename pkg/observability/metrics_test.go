package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1qh/nexvex/pkg/apperr"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	require.NotNil(t, metrics)

	assert.Panics(t, func() { NewMetrics(registry) }, "double registration must panic")
}

func TestMetrics_RecordOperation(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordOperation("tasks", "create", 10*time.Millisecond, nil)
	metrics.RecordOperation("tasks", "create", time.Millisecond, apperr.New(apperr.CodeForbidden))
	metrics.RecordOperation("tasks", "update", time.Millisecond, apperr.RateLimited(time.Second, 5, 0))
	metrics.RecordOperation("tasks", "read", time.Millisecond, errors.New("db down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OperationsTotal.WithLabelValues("tasks", "create", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OperationsTotal.WithLabelValues("tasks", "create", "FORBIDDEN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OperationsTotal.WithLabelValues("tasks", "read", "INTERNAL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthzDenialsTotal.WithLabelValues("tasks", "FORBIDDEN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitRejectionsTotal.WithLabelValues("tasks", "update")))
}

func TestMetrics_Cascade(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordCascadeRows("tasks", 3, 1)
	metrics.RecordCascadeRows("projects", 0, 0)
	metrics.RecordCascade(nil)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.CascadeRowsDeletedTotal.WithLabelValues("tasks")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CascadeRowFailuresTotal.WithLabelValues("tasks")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CascadeRunsTotal.WithLabelValues("success")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.CascadeRowsDeletedTotal), "zero counts create no series")
}

func TestMetrics_NilReceiver(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.RecordOperation("tasks", "create", time.Millisecond, nil)
		metrics.RecordCascade(errors.New("x"))
		metrics.RecordCascadeRows("tasks", 1, 1)
		metrics.RecordHookPanic("audit")
		metrics.RecordCacheLookup("public_orgs", true)
		metrics.UpdateDBStats(1, 2)
	})
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(metrics))
	router.HandleFunc("/orgs/{org_id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orgs/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/orgs/{org_id}", "404")))
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.RecordHookPanic("audit")

	server := httptest.NewServer(MetricsHandler(registry))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `nexvex_hook_panics_total{hook="audit"} 1`))
}
