package cache

import (
	"context"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/schemaregistry/metric"
)

func TestCacheMetricsIntegration(t *testing.T) {
	ctx := context.Background()
	registry := metric.NewMetricsRegistry()

	c := New(NewMemoryBackend(0), WithMetrics(registry))
	defer c.Close()

	c.Set(ctx, "ns", "key1", []byte("value1"), 0)
	c.Set(ctx, "ns", "key2", []byte("value2"), 0)

	_, found := c.Get(ctx, "ns", "key1")
	assert.True(t, found)
	_, found = c.Get(ctx, "ns", "key3")
	assert.False(t, found)

	_ = c.Stats(ctx)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily)
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	hits := byName["schemaregistry_cache_hits_total"]
	require.NotNil(t, hits)
	assert.Equal(t, 1.0, hits.GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, "backend", hits.GetMetric()[0].GetLabel()[0].GetName())
	assert.Equal(t, "memory", hits.GetMetric()[0].GetLabel()[0].GetValue())

	misses := byName["schemaregistry_cache_misses_total"]
	require.NotNil(t, misses)
	assert.Equal(t, 1.0, misses.GetMetric()[0].GetCounter().GetValue())

	size := byName["schemaregistry_cache_size"]
	require.NotNil(t, size)
	assert.Equal(t, 2.0, size.GetMetric()[0].GetGauge().GetValue())
}

func TestCacheMetricsDuplicateRegistration(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	first := New(NewMemoryBackend(0), WithMetrics(registry))
	defer first.Close()
	second := New(NewMemoryBackend(0), WithMetrics(registry))
	defer second.Close()

	assert.NotNil(t, first.metrics)
	assert.Nil(t, second.metrics, "second cache runs without metrics")

	second.Set(context.Background(), "ns", "k", []byte("v"), 0)
	_, ok := second.Get(context.Background(), "ns", "k")
	assert.True(t, ok)
}
