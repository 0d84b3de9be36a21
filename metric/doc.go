// Package metric provides Prometheus-based metrics for the schema registry.
//
// MetricsRegistry owns a private prometheus.Registry with the registry-wide
// Metrics (schema operations, compatibility checks, notification fan-out,
// store and NATS health) plus the Go runtime collectors. Components register
// their own collectors through the MetricsRegistrar interface so duplicate
// names are rejected with an invalid-class error instead of a panic.
//
//	registry := metric.NewMetricsRegistry()
//	registry.CoreMetrics().RecordOperation("create", "ok", time.Since(start))
//
//	mux.Handle("/metrics", metric.Handler(registry))
//
// Server exposes the same handler on a dedicated port when the API and
// metrics listeners are split.
package metric
