package health

import (
	"sort"
	"sync"
	"time"
)

// Transition describes a component whose level changed on Update.
type Transition struct {
	Component string
	From      string
	To        string
}

// Monitor holds the last known status of each component.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
	}
}

// Update records status under name. It returns the transition and true when
// the level differs from the previous one. A first report of a healthy
// component is not a transition; a first report of anything else is.
func (m *Monitor) Update(name string, status Status) (Transition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now().UTC()
	}

	from := LevelHealthy
	if prev, ok := m.statuses[name]; ok {
		from = prev.Status
	}
	m.statuses[name] = status

	if from == status.Status {
		return Transition{}, false
	}
	return Transition{Component: name, From: from, To: status.Status}, true
}

// Get retrieves the health status for a named component
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, exists := m.statuses[name]
	return status, exists
}

// Remove removes a component from monitoring
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.statuses, name)
}

// AggregateHealth aggregates every recorded status under systemName.
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	subStatuses := make([]Status, 0, len(m.statuses))
	for _, status := range m.statuses {
		subStatuses = append(subStatuses, status)
	}
	m.mu.RUnlock()

	return Aggregate(systemName, subStatuses)
}

// ListComponents returns the monitored component names, sorted.
func (m *Monitor) ListComponents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.statuses))
	for name := range m.statuses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
