// Package metrics exposes the bridge's Prometheus collectors and its
// monitoring HTTP server.
//
// Metrics implements the observer hooks of the stream supervisors, the
// connection pool, the agent and the market poller, so each component reports
// through a narrow interface and never imports Prometheus itself. Server
// serves /health, /stats (the pool snapshot), /debug/exchanges and /metrics.
package metrics
