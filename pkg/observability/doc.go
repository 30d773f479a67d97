// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Structured Logging
//
// Logger writes JSON through log/slog. Request middleware stores a logger in
// the context; FromContext returns it with the request, user and org ids
// attached:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).WithField("table", "notes").Info("document created")
//
// # Prometheus Metrics
//
// Metrics counts engine operations, authorization denials, rate limit
// rejections, cascade rows and cache lookups. Every recording method is safe
// on a nil *Metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordOperation("orgs", "create", time.Since(start), err)
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version).
//		AddCheck("storage", store.Ping, false).
//		AddRedis(redisClient)
//	router.HandleFunc("/readyz", checker.Readiness)
//
// A failing required dependency answers 503; a failing optional one reports
// "degraded" with 200.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "nexvex",
//	}, logger)
//	shutdown.Register("otel", providers.Shutdown)
//
// # Related Packages
//
//   - pkg/config: observability settings
//   - pkg/httputil: request logging and recovery middleware
package observability
