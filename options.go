package pulsestats

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jpalmerr/pulsestats/internal/sink"
)

// psConfig holds mutable state during PulseStats construction.
type psConfig struct {
	identifiers     []string
	cycleDuration   time.Duration
	jitter          time.Duration
	debug           bool
	logger          *slog.Logger
	metricsAddr     string
	baseURL         string
	headers         map[string]string
	fields          map[string]string
	fetchTimeout    time.Duration
	sinkConfig      *sink.Config
	snapCallbacks   []func(Snapshot)
	shutdownTimeout time.Duration

	// test hooks
	tickInterval time.Duration
	sink         sink.Sink
}

// Option is a function that configures a [PulseStats] instance during construction.
//
// Options return an error if validation fails; [New] stops at the first one.
type Option func(*psConfig) error

// WithIdentifiers appends profile identifiers to the polling list.
//
// Order matters: identifiers are staggered across the cycle in the order
// given, and each one's schedule is anchored to the one before it. Can be
// called multiple times. At least one identifier is required.
//
// Example:
//
//	ps, err := pulsestats.New(
//	    pulsestats.WithIdentifiers("alice", "bob"),
//	    pulsestats.WithMemorySink(),
//	)
//
// Returns an error if any identifier is empty.
func WithIdentifiers(ids ...string) Option {
	return func(cfg *psConfig) error {
		for _, id := range ids {
			if strings.TrimSpace(id) == "" {
				return errors.New("identifier cannot be empty")
			}
		}
		cfg.identifiers = append(cfg.identifiers, ids...)
		return nil
	}
}

// WithCycleDuration sets how long one full pass over every identifier takes.
//
// The cadence between polls is cycle / len(identifiers). Defaults to 1 hour.
//
// Returns an error if the duration is zero or negative.
func WithCycleDuration(d time.Duration) Option {
	return func(cfg *psConfig) error {
		if d <= 0 {
			return errors.New("cycle duration must be positive")
		}
		cfg.cycleDuration = d
		return nil
	}
}

// WithJitter bounds the random offset added to every scheduled poll.
//
// Each due time moves by a uniformly random amount in [-d, +d]. Defaults to 0.
//
// Returns an error if the duration is negative.
func WithJitter(d time.Duration) Option {
	return func(cfg *psConfig) error {
		if d < 0 {
			return errors.New("jitter cannot be negative")
		}
		cfg.jitter = d
		return nil
	}
}

// WithDebug echoes every captured snapshot to the log at info level.
func WithDebug(enabled bool) Option {
	return func(cfg *psConfig) error {
		cfg.debug = enabled
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the PulseStats instance.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *psConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithMetricsAddr enables the HTTP listener serving /metrics, /healthz,
// /api/schedule and /api/events on addr (e.g. ":9090").
//
// Disabled by default. An empty addr disables it.
func WithMetricsAddr(addr string) Option {
	return func(cfg *psConfig) error {
		cfg.metricsAddr = addr
		return nil
	}
}

// WithFetchBaseURL sets the URL prefix the query-escaped identifier is
// appended to. Defaults to the public profile info endpoint.
//
// Returns an error if the URL is not http or https.
func WithFetchBaseURL(raw string) Option {
	return func(cfg *psConfig) error {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid fetch base URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("fetch base URL must be http or https, got %q", raw)
		}
		if u.Host == "" {
			return fmt.Errorf("fetch base URL has no host: %q", raw)
		}
		cfg.baseURL = raw
		return nil
	}
}

// WithFetchHeader adds a header sent with every profile request, such as
// "cookie" or "x-ig-app-id". Later calls with the same key replace earlier ones.
//
// Returns an error if the key is empty.
func WithFetchHeader(key, value string) Option {
	return func(cfg *psConfig) error {
		if strings.TrimSpace(key) == "" {
			return errors.New("header key cannot be empty")
		}
		if cfg.headers == nil {
			cfg.headers = make(map[string]string)
		}
		cfg.headers[key] = value
		return nil
	}
}

// WithFetchTimeout bounds a single profile request. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithFetchTimeout(d time.Duration) Option {
	return func(cfg *psConfig) error {
		if d <= 0 {
			return errors.New("fetch timeout must be positive")
		}
		cfg.fetchTimeout = d
		return nil
	}
}

// WithField adds a measurement read from the response at a dot-notation
// JSON path, e.g. WithField("followers", "data.user.edge_followed_by.count").
//
// When no field is configured, followers, following and posts are captured.
// Configuring any field replaces that default set.
//
// Returns an error if the name or path is empty.
func WithField(name, path string) Option {
	return func(cfg *psConfig) error {
		if strings.TrimSpace(name) == "" {
			return errors.New("field name cannot be empty")
		}
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("field %q: path cannot be empty", name)
		}
		if cfg.fields == nil {
			cfg.fields = make(map[string]string)
		}
		cfg.fields[name] = path
		return nil
	}
}

// WithInfluxSink writes measurements to an InfluxDB v2 bucket.
//
// Returns an error if url, org or bucket is empty.
func WithInfluxSink(serverURL, token, org, bucket string) Option {
	return func(cfg *psConfig) error {
		if serverURL == "" || org == "" || bucket == "" {
			return errors.New("influx sink requires url, org and bucket")
		}
		cfg.sinkConfig = &sink.Config{
			Type:   sink.TypeInflux,
			URL:    serverURL,
			Token:  token,
			Org:    org,
			Bucket: bucket,
		}
		return nil
	}
}

// WithPostgresSink writes measurements to a PostgreSQL table, created if it
// does not exist. An empty table uses "measurements".
//
// Returns an error if dsn is empty.
func WithPostgresSink(dsn, table string) Option {
	return func(cfg *psConfig) error {
		if dsn == "" {
			return errors.New("postgres sink requires a dsn")
		}
		cfg.sinkConfig = &sink.Config{Type: sink.TypePostgres, DSN: dsn, Table: table}
		return nil
	}
}

// WithMemorySink keeps measurements in process only. Useful for dry runs
// combined with [WithDebug] or [WithSnapshotCallback].
func WithMemorySink() Option {
	return func(cfg *psConfig) error {
		cfg.sinkConfig = &sink.Config{Type: sink.TypeMemory}
		return nil
	}
}

// WithSnapshotCallback registers a function called after every snapshot has
// been written to the sink.
//
// Callbacks run on the poll's goroutine and may be invoked concurrently for
// different identifiers. They must be non-blocking and safe for concurrent
// use. Multiple callbacks run in registration order. Panics are recovered
// and logged.
//
// Nil callbacks are silently ignored.
func WithSnapshotCallback(cb func(Snapshot)) Option {
	return func(cfg *psConfig) error {
		if cb == nil {
			return nil
		}
		cfg.snapCallbacks = append(cfg.snapCallbacks, cb)
		return nil
	}
}

// WithShutdownTimeout bounds how long [PulseStats.Start] waits for in-flight
// polls and sink writes after its context is cancelled. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithShutdownTimeout(d time.Duration) Option {
	return func(cfg *psConfig) error {
		if d <= 0 {
			return errors.New("shutdown timeout must be positive")
		}
		cfg.shutdownTimeout = d
		return nil
	}
}

// withTickInterval overrides the 1s driver interval in tests.
func withTickInterval(d time.Duration) Option {
	return func(cfg *psConfig) error {
		cfg.tickInterval = d
		return nil
	}
}

// withSink injects a ready sink in tests, bypassing Open.
func withSink(s sink.Sink) Option {
	return func(cfg *psConfig) error {
		cfg.sink = s
		return nil
	}
}
