// Package pulsestats polls a fixed list of social profiles for public
// metrics and writes every capture to a time-series store.
//
// Polls are spread evenly over a configured cycle: with N identifiers and a
// cycle of C, one identifier is polled every C/N. Each identifier's next poll
// is anchored to its neighbour's schedule rather than to the wall clock, so
// the spread survives slow fetches and late ticks.
//
// # Quick Start
//
//	ps, err := pulsestats.New(
//	    pulsestats.WithIdentifiers("alice", "bob", "carol"),
//	    pulsestats.WithCycleDuration(time.Hour),
//	    pulsestats.WithJitter(30*time.Second),
//	    pulsestats.WithFetchHeader("cookie", os.Getenv("IG_COOKIE")),
//	    pulsestats.WithInfluxSink(url, token, org, bucket),
//	)
//	if err != nil {
//	    slog.Error("failed to create pulsestats", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	if err := ps.Start(ctx); err != nil { // blocks until ctx is cancelled
//	    os.Exit(1)
//	}
//
// # Sinks
//
// Every captured field becomes one measurement named after the field, tagged
// with the identifier and timestamped at second precision:
//
//   - InfluxDB v2 ([WithInfluxSink]): one point per field, tag "handle"
//   - PostgreSQL ([WithPostgresSink]): one row per field in a narrow table
//   - Memory ([WithMemorySink]): kept in process, for dry runs
//
// # Architecture
//
//   - internal/poller: profile fetch client, stagger scheduler, tick driver
//   - internal/sink: sink backends and the live measurement feed
//   - internal/service: ordered start and reverse-order shutdown
//   - internal/telemetry: slog and Prometheus setup
//   - internal/server: optional /metrics, /healthz, /api/schedule, /api/events
//
// The internal packages are not part of the public API and may change
// without notice.
package pulsestats
