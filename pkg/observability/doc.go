// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Overview
//
// This package centralizes observability infrastructure including JSON logging, metrics
// collection, health checks, graceful shutdown, and distributed tracing integration.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.Infof("Server started on port %d", 8080)
//
// Context-aware logging:
//
//	logger.WithField("request_id", reqID).WithError(err).Error("Request failed")
//	observability.FromContext(ctx).Info("request scoped")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.ObservePermissionCheck("tenant", true, elapsed)
//	metrics.TenantEntersTotal.WithLabelValues("active").Inc()
//
// # Health Checks
//
// Configure health checker:
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	mux.HandleFunc("/healthz", checker.Liveness)
//	mux.HandleFunc("/readyz", checker.Readiness)
//
// # Tracing
//
// Initialize tracing:
//
//	shutdown, err := observability.SetupTracing(ctx, observability.TracingConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "caregrid-api",
//	})
//	defer shutdown(ctx)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request logging middleware
package observability
