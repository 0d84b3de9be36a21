package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/schemaregistry/metric"
)

type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

func newCacheMetrics(registry metric.MetricsRegistrar, backend string) (*cacheMetrics, error) {
	labels := prometheus.Labels{"backend": backend}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "cache",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	m := &cacheMetrics{
		hits:      counter("hits_total", "Total number of cache hits"),
		misses:    counter("misses_total", "Total number of cache misses"),
		evictions: counter("evictions_total", "Total number of expired entries evicted"),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "cache",
			Name:        "size",
			Help:        "Entries in the cache at the last stats read",
			ConstLabels: labels,
		}),
	}

	component := "cache_" + backend
	if err := registry.RegisterCounter(component, "hits", m.hits); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "misses", m.misses); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, "evictions", m.evictions); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(component, "size", m.size); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *cacheMetrics) recordHit()          { m.hits.Inc() }
func (m *cacheMetrics) recordMiss()         { m.misses.Inc() }
func (m *cacheMetrics) recordEviction()     { m.evictions.Inc() }
func (m *cacheMetrics) updateSize(size int) { m.size.Set(float64(size)) }
