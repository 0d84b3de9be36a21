package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric the registry exports.
const Namespace = "schemaregistry"

// Metrics contains the registry-wide metrics
type Metrics struct {
	SchemaOperations  *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	CompatChecks      *prometheus.CounterVec
	CommitRetries     prometheus.Counter

	NotificationsPublished *prometheus.CounterVec
	NotificationsDropped   *prometheus.CounterVec
	Subscribers            *prometheus.GaugeVec

	StoreHealthy  prometheus.Gauge
	NATSConnected prometheus.Gauge
}

// NewMetrics creates the registry-wide metrics
func NewMetrics() *Metrics {
	return &Metrics{
		SchemaOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "schema",
				Name:      "operations_total",
				Help:      "Schema operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),

		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "schema",
				Name:      "operation_duration_seconds",
				Help:      "Schema operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		CompatChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "compat",
				Name:      "checks_total",
				Help:      "Compatibility checks by result (compatible|breaking)",
			},
			[]string{"result"},
		),

		CommitRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "schema",
				Name:      "commit_retries_total",
				Help:      "Write workflows restarted because the latest pointer moved",
			},
		),

		NotificationsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "notify",
				Name:      "published_total",
				Help:      "Events accepted for dispatch by channel",
			},
			[]string{"channel"},
		),

		NotificationsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "notify",
				Name:      "dropped_total",
				Help:      "Events or subscribers dropped by channel and reason",
			},
			[]string{"channel", "reason"},
		),

		Subscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "notify",
				Name:      "subscribers",
				Help:      "Live subscribers by channel",
			},
			[]string{"channel"},
		),

		StoreHealthy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "store",
				Name:      "healthy",
				Help:      "Backing store health (0=unhealthy, 1=healthy)",
			},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SchemaOperations,
		m.OperationDuration,
		m.CompatChecks,
		m.CommitRetries,
		m.NotificationsPublished,
		m.NotificationsDropped,
		m.Subscribers,
		m.StoreHealthy,
		m.NATSConnected,
	}
}

// Record methods are no-ops on a nil *Metrics.

// RecordOperation counts an operation and observes its duration
func (m *Metrics) RecordOperation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SchemaOperations.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCompatCheck counts a compatibility check
func (m *Metrics) RecordCompatCheck(breaking bool) {
	if m == nil {
		return
	}
	result := "compatible"
	if breaking {
		result = "breaking"
	}
	m.CompatChecks.WithLabelValues(result).Inc()
}

// RecordCommitRetry counts a restarted write workflow
func (m *Metrics) RecordCommitRetry() {
	if m == nil {
		return
	}
	m.CommitRetries.Inc()
}

// RecordPublished counts an event accepted for dispatch
func (m *Metrics) RecordPublished(channel string) {
	if m == nil {
		return
	}
	m.NotificationsPublished.WithLabelValues(channel).Inc()
}

// RecordDropped counts a dropped event or subscriber
func (m *Metrics) RecordDropped(channel, reason string) {
	if m == nil {
		return
	}
	m.NotificationsDropped.WithLabelValues(channel, reason).Inc()
}

// RecordSubscribers sets the live subscriber count for a channel
func (m *Metrics) RecordSubscribers(channel string, n int) {
	if m == nil {
		return
	}
	m.Subscribers.WithLabelValues(channel).Set(float64(n))
}

// RecordStoreHealth updates store health
func (m *Metrics) RecordStoreHealth(healthy bool) {
	if m == nil {
		return
	}
	m.StoreHealthy.Set(boolGauge(healthy))
}

// RecordNATSStatus updates NATS connection status
func (m *Metrics) RecordNATSStatus(connected bool) {
	if m == nil {
		return
	}
	m.NATSConnected.Set(boolGauge(connected))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
