package registry

import (
	"context"

	"github.com/c360/schemaregistry/health"
	"github.com/c360/schemaregistry/notify"
)

// System event types published on store health transitions.
const (
	EventStoreUnhealthy = "store_unhealthy"
	EventStoreRecovered = "store_recovered"
)

// Health aggregates the store, cache and hub. A change in store health
// publishes a system event.
func (r *Registry) Health(ctx context.Context) health.Status {
	store := r.store.HealthCheck(ctx)
	if store.IsHealthy() && r.fallback != "" {
		store = health.NewDegraded("store", r.fallback).WithDetail("backend", r.store.Backend())
	}
	r.observeStore(store)

	subs := []health.Status{store}

	if r.cache != nil {
		err := r.cache.Ping(ctx)
		cacheStatus := health.FromError("cache", err, "cache reachable").WithDetail("backend", r.cache.Backend())
		if err != nil {
			// A broken cache only slows reads.
			cacheStatus = health.NewDegraded("cache", cacheStatus.Message).WithDetail("backend", r.cache.Backend())
		}
		subs = append(subs, cacheStatus)
	}

	if r.hub != nil {
		subs = append(subs, r.hub.HealthCheck())
	}

	return health.Aggregate("schemaregistry", subs)
}

func (r *Registry) observeStore(status health.Status) {
	r.metrics.RecordStoreHealth(!status.IsUnhealthy())

	t, changed := r.monitor.Update("store", status)
	if !changed {
		return
	}

	r.logger.Warn("store health changed", "from", t.From, "to", t.To, "message", status.Message)
	switch {
	case status.IsUnhealthy():
		r.publish(notify.NewSystemEvent(EventStoreUnhealthy, map[string]any{
			"backend": r.store.Backend(),
			"message": status.Message,
		}))
	case t.From == health.LevelUnhealthy:
		r.publish(notify.NewSystemEvent(EventStoreRecovered, map[string]any{
			"backend": r.store.Backend(),
			"status":  status.Status,
		}))
	}
}
