// Package sink persists measurement batches to a time-series store.
//
// This package is internal to PulseStats. A [Sink] accepts one batch per
// captured snapshot and either writes it durably before returning or returns
// an error; callers drop failed batches rather than re-queueing them.
//
// The main components are:
//
//   - [Sink]: Interface implemented by every backend
//   - [Measurement]: One named numeric value tagged with its identifier
//   - [InfluxSink]: InfluxDB v2 backend (blocking writes, second precision)
//   - [PostgresSink]: PostgreSQL/TimescaleDB backend using pgx batches
//   - [MemorySink]: In-memory backend for dry runs and tests
//   - [Open]: Builds a Sink from a [Config]
package sink
