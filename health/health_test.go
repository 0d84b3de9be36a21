package health

import (
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusLevels(t *testing.T) {
	assert.True(t, NewHealthy("a", "").IsHealthy())
	assert.True(t, NewHealthy("a", "").Healthy)
	assert.True(t, NewDegraded("a", "").IsDegraded())
	assert.False(t, NewDegraded("a", "").Healthy)
	assert.True(t, NewUnhealthy("a", "").IsUnhealthy())
	assert.False(t, Status{}.IsHealthy())
}

func TestWithDetailCopies(t *testing.T) {
	base := NewHealthy("cache", "ok").WithDetail("backend", "memory")
	withSize := base.WithDetail("size", 3)

	assert.Equal(t, map[string]any{"backend": "memory"}, base.Details)
	assert.Equal(t, map[string]any{"backend": "memory", "size": 3}, withSize.Details)
}

func TestWithSubStatusCopies(t *testing.T) {
	parent := NewHealthy("root", "")
	a := parent.WithSubStatus(NewHealthy("a", ""))
	b := a.WithSubStatus(NewHealthy("b", ""))

	assert.Empty(t, parent.SubStatuses)
	assert.Len(t, a.SubStatuses, 1)
	assert.Len(t, b.SubStatuses, 2)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name  string
		subs  []Status
		level string
	}{
		{"empty", nil, LevelHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, LevelHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, LevelDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, LevelUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("schemaregistry", tt.subs)
			assert.Equal(t, tt.level, got.Status)
			assert.Equal(t, "schemaregistry", got.Component)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}

	got := Aggregate("x", []Status{NewHealthy("store", ""), NewHealthy("cache", ""), NewHealthy("hub", "")})
	names := []string{got.SubStatuses[0].Component, got.SubStatuses[1].Component, got.SubStatuses[2].Component}
	assert.Equal(t, []string{"cache", "hub", "store"}, names)
}

func TestFromError(t *testing.T) {
	ok := FromError("store", nil, "backend reachable")
	assert.True(t, ok.IsHealthy())
	assert.Equal(t, "backend reachable", ok.Message)

	bad := FromError("store", stderrors.New("dial nats://10.0.0.5:4222 refused"), "")
	assert.True(t, bad.IsUnhealthy())
	assert.Equal(t, "dial [URL] refused", bad.Message)
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"unix path", "failed to open /var/lib/schemaregistry/registry.db", "failed to open [PATH]"},
		{"windows path", "cannot read C:\\data\\registry.db", "cannot read [PATH]"},
		{"http url", "connection failed to https://api.example.com/v1/health", "connection failed to [URL]"},
		{"nats url", "cannot connect to nats://localhost:4222", "cannot connect to [URL]"},
		{"ip", "timeout connecting to 192.168.1.100", "timeout connecting to [IP]"},
		{"port", "failed to bind to :8080", "failed to bind to [PORT]"},
		{"credential", "auth failed token=abc123", "auth failed [REDACTED]"},
		{"plain", "bucket unavailable", "bucket unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeErrorMessage(tt.input))
		})
	}
}

func TestMonitorTransitions(t *testing.T) {
	m := NewMonitor()

	_, changed := m.Update("store", NewHealthy("", "ok"))
	assert.False(t, changed, "first healthy report is not a transition")

	tr, changed := m.Update("store", NewUnhealthy("", "down"))
	require.True(t, changed)
	assert.Equal(t, Transition{Component: "store", From: LevelHealthy, To: LevelUnhealthy}, tr)

	_, changed = m.Update("store", NewUnhealthy("", "still down"))
	assert.False(t, changed)

	tr, changed = m.Update("store", NewHealthy("", "ok"))
	require.True(t, changed)
	assert.Equal(t, LevelUnhealthy, tr.From)

	_, changed = m.Update("cache", NewDegraded("", "slow"))
	assert.True(t, changed, "first non-healthy report is a transition")

	got, ok := m.Get("store")
	require.True(t, ok)
	assert.Equal(t, "store", got.Component)
	assert.Equal(t, []string{"cache", "store"}, m.ListComponents())
	assert.Equal(t, LevelDegraded, m.AggregateHealth("schemaregistry").Status)

	m.Remove("cache")
	assert.Equal(t, LevelHealthy, m.AggregateHealth("schemaregistry").Status)
}

func TestMonitorSetsTimestamp(t *testing.T) {
	m := NewMonitor()
	m.Update("a", Status{Status: LevelHealthy})

	got, _ := m.Get("a")
	assert.WithinDuration(t, time.Now(), got.Timestamp, time.Second)
}

func TestMonitorConcurrentAccess(t *testing.T) {
	m := NewMonitor()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Update("store", NewHealthy("", ""))
		}()
		go func() {
			defer wg.Done()
			_ = m.AggregateHealth("x")
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"store"}, m.ListComponents())
}
