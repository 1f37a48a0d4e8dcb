package config

import (
	"log/slog"
	"sort"

	"github.com/jpalmerr/pulsestats"
	"github.com/jpalmerr/pulsestats/internal/sink"
)

// BuildOptions converts parsed configuration into SDK options.
//
// logger may be nil, in which case the SDK default is used. Options are
// validated again by [pulsestats.New].
func BuildOptions(cfg *Config, logger *slog.Logger) []pulsestats.Option {
	opts := []pulsestats.Option{
		pulsestats.WithIdentifiers(cfg.Identifiers...),
		pulsestats.WithCycleDuration(cfg.CycleDuration.Duration()),
		pulsestats.WithJitter(cfg.Jitter.Duration()),
		pulsestats.WithDebug(cfg.Debug),
		pulsestats.WithMetricsAddr(cfg.MetricsAddr),
		pulsestats.WithFetchBaseURL(cfg.Fetch.BaseURL),
	}

	if logger != nil {
		opts = append(opts, pulsestats.WithLogger(logger))
	}
	if cfg.ShutdownTimeout != 0 {
		opts = append(opts, pulsestats.WithShutdownTimeout(cfg.ShutdownTimeout.Duration()))
	}
	if cfg.Fetch.Timeout != 0 {
		opts = append(opts, pulsestats.WithFetchTimeout(cfg.Fetch.Timeout.Duration()))
	}

	// sort keys for deterministic ordering
	for _, k := range sortedKeys(cfg.Fetch.Headers) {
		opts = append(opts, pulsestats.WithFetchHeader(k, cfg.Fetch.Headers[k]))
	}
	if cfg.Fetch.Cookie != "" {
		opts = append(opts, pulsestats.WithFetchHeader("cookie", cfg.Fetch.Cookie))
	}
	if cfg.Fetch.AppID != "" {
		opts = append(opts, pulsestats.WithFetchHeader("x-ig-app-id", cfg.Fetch.AppID))
	}

	for _, name := range sortedKeys(cfg.Fetch.Fields) {
		opts = append(opts, pulsestats.WithField(name, cfg.Fetch.Fields[name]))
	}

	switch cfg.Sink.Type {
	case sink.TypeInflux:
		opts = append(opts, pulsestats.WithInfluxSink(cfg.Sink.URL, cfg.Sink.Token, cfg.Sink.Org, cfg.Sink.Bucket))
	case sink.TypePostgres:
		opts = append(opts, pulsestats.WithPostgresSink(cfg.Sink.DSN, cfg.Sink.Table))
	case sink.TypeMemory:
		opts = append(opts, pulsestats.WithMemorySink())
	}

	return opts
}

// sortedKeys returns the keys of m in sorted order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
