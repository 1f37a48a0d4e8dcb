// Package server provides the optional HTTP endpoint of a running poller.
//
// The server is an operational add-on, not part of polling itself. By
// default a poller only makes outbound requests and listens on no port; this
// server runs only when a metrics address is configured, and it is read-only:
//
//   - Metrics: Prometheus exposition at "/metrics"
//   - Health: liveness probe at "/healthz"
//   - Schedule: JSON snapshot of every identifier's next due time at "/api/schedule"
//   - Events: Server-Sent Events stream of written measurement batches at "/api/events"
//
// Users of the pulsestats library should not need to interact with this
// package directly. The server is started by [pulsestats.PulseStats.Start]
// when a metrics address is configured.
package server
