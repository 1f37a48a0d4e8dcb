// Package telemetry provides logging and metrics setup for PulseStats.
//
// The main components are:
//
//   - [NewLogger]: slog logger with a configurable level and output format
//   - [Metrics]: Prometheus collectors for polls, sink writes and fetch latency
//
// Metrics are registered on a caller-supplied registry so that tests and
// embedding applications never collide on the global default registry.
package telemetry
