// Package health carries health status for the registry's dependencies.
//
// Three levels exist: healthy, degraded and unhealthy. A component reports a
// Status; Aggregate rolls several up, with unhealthy dominating degraded.
//
//	store := health.FromError("store", backend.Ping(ctx), "backend reachable")
//	cache := health.NewHealthy("cache", "memory").WithDetail("size", 42)
//	overall := health.Aggregate("schemaregistry", []health.Status{store, cache})
//
// Monitor remembers the last status per component and reports level changes,
// which the registry turns into system events:
//
//	if tr, changed := monitor.Update("store", store); changed {
//		log.Warn("store health changed", "from", tr.From, "to", tr.To)
//	}
//
// Error messages are sanitized before they reach a Status: URLs, file paths,
// IP addresses, ports and credential assignments are replaced with
// placeholders because /health is served without authentication.
package health
