// Package observability bundles the operational concerns of the service:
// structured JSON logging, Prometheus metrics, health probes and graceful
// shutdown.
//
// The logger wraps stdlib slog with a small chained-field API so handlers
// can do:
//
//	log := observability.FromContext(ctx).WithField("group_id", id)
//	log.Info("permission updated")
//
// Metrics are registered on a private registry and exposed on the health
// port, away from the authenticated API surface.
package observability
