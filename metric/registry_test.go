package metric

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/schemaregistry/errors"
)

func gatheredNames(t *testing.T, r *MetricsRegistry) map[string]bool {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NotNil(t, registry.PrometheusRegistry())
	require.NotNil(t, registry.CoreMetrics())

	registry.CoreMetrics().RecordOperation("create", "ok", time.Millisecond)
	names := gatheredNames(t, registry)
	assert.True(t, names["schemaregistry_schema_operations_total"])
	assert.True(t, names["go_goroutines"])
}

func TestMetricsRegistry_Register(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "c"})
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "g"})
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_vec", Help: "v"}, []string{"l"})
	gvec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "test_gvec", Help: "gv"}, []string{"l"})
	hvec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "test_hvec", Help: "h"}, []string{"l"})

	require.NoError(t, registry.RegisterCounter("cache", "test_counter", counter))
	require.NoError(t, registry.RegisterGauge("cache", "test_gauge", gauge))
	require.NoError(t, registry.RegisterCounterVec("cache", "test_vec", vec))
	require.NoError(t, registry.RegisterGaugeVec("cache", "test_gvec", gvec))
	require.NoError(t, registry.RegisterHistogramVec("cache", "test_hvec", hvec))

	counter.Inc()
	gauge.Set(3)
	vec.WithLabelValues("a").Inc()
	gvec.WithLabelValues("a").Set(1)
	hvec.WithLabelValues("a").Observe(0.1)

	names := gatheredNames(t, registry)
	for _, n := range []string{"test_counter", "test_gauge", "test_vec", "test_gvec", "test_hvec"} {
		assert.True(t, names[n], n)
	}
}

func TestMetricsRegistry_PreventDuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	c1 := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_counter", Help: "c"})
	c2 := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_counter", Help: "c"})

	require.NoError(t, registry.RegisterCounter("svc", "dup", c1))

	err := registry.RegisterCounter("svc", "dup", c2)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	err = registry.RegisterCounter("other", "dup", c2)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err), "prometheus name clash is invalid, not fatal")
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "gone_counter", Help: "c"})
	require.NoError(t, registry.RegisterCounter("svc", "gone", c))
	c.Inc()

	assert.True(t, registry.Unregister("svc", "gone"))
	assert.False(t, registry.Unregister("svc", "gone"))
	assert.False(t, gatheredNames(t, registry)["gone_counter"])

	require.NoError(t, registry.RegisterCounter("svc", "gone", c))
}

func TestMetricsRegistry_ThreadSafety(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("concurrent_%d", i)
			c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: "c"})
			assert.NoError(t, registry.RegisterCounter("svc", name, c))
		}(i)
	}
	wg.Wait()

	registry.mu.RLock()
	defer registry.mu.RUnlock()
	assert.Len(t, registry.registeredMetrics, 20)
}

func TestCoreMetrics_RecordMethods(t *testing.T) {
	m := NewMetrics()

	m.RecordOperation("get", "ok", time.Millisecond)
	m.RecordOperation("get", "not_found", time.Millisecond)
	m.RecordCompatCheck(true)
	m.RecordCompatCheck(false)
	m.RecordCompatCheck(false)
	m.RecordCommitRetry()
	m.RecordPublished("schema_updates")
	m.RecordDropped("schema_updates", "queue_full")
	m.RecordSubscribers("schema_updates", 3)
	m.RecordStoreHealth(true)
	m.RecordNATSStatus(false)

	assert.Equal(t, 1.0, counterValue(t, m.SchemaOperations.WithLabelValues("get", "ok")))
	assert.Equal(t, 1.0, counterValue(t, m.CompatChecks.WithLabelValues("breaking")))
	assert.Equal(t, 2.0, counterValue(t, m.CompatChecks.WithLabelValues("compatible")))
	assert.Equal(t, 1.0, counterValue(t, m.CommitRetries))
	assert.Equal(t, 1.0, counterValue(t, m.NotificationsDropped.WithLabelValues("schema_updates", "queue_full")))

	var g dto.Metric
	require.NoError(t, m.StoreHealthy.Write(&g))
	assert.Equal(t, 1.0, g.GetGauge().GetValue())
	require.NoError(t, m.Subscribers.WithLabelValues("schema_updates").Write(&g))
	assert.Equal(t, 3.0, g.GetGauge().GetValue())
}

func TestHandler(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordCompatCheck(true)

	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `schemaregistry_compat_checks_total{result="breaking"} 1`)

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(rec.Body)
	require.NoError(t, err)
	checks, ok := families["schemaregistry_compat_checks_total"]
	require.True(t, ok)
	assert.Equal(t, dto.MetricType_COUNTER, checks.GetType())
	require.Len(t, checks.GetMetric(), 1)
	assert.Equal(t, 1.0, checks.GetMetric()[0].GetCounter().GetValue())
}

func TestServer_StopWithoutStart(t *testing.T) {
	s := NewServer(0, "", NewMetricsRegistry())
	assert.Equal(t, "http://localhost:9090/metrics", s.Address())
	assert.NoError(t, s.Stop(t.Context()))
}
