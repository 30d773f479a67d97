package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/1qh/nexvex/pkg/observability"
)

// NewOpsRouter serves liveness, readiness and, when registry is set,
// Prometheus metrics. It runs on its own listener so probes and scrapes
// bypass authentication and request limits.
func NewOpsRouter(checker *observability.HealthChecker, registry *prometheus.Registry) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", checker.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/readyz", checker.Readiness).Methods(http.MethodGet)
	if registry != nil {
		router.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
	}
	return router
}
