package pulsestats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jpalmerr/pulsestats/internal/poller"
	"github.com/jpalmerr/pulsestats/internal/server"
	"github.com/jpalmerr/pulsestats/internal/service"
	"github.com/jpalmerr/pulsestats/internal/sink"
	"github.com/jpalmerr/pulsestats/internal/telemetry"
)

const (
	defaultCycleDuration   = time.Hour
	defaultShutdownTimeout = 10 * time.Second
)

// PulseStats is the main orchestrator for staggered profile polling.
//
// PulseStats wires the fetch client, scheduler, tick driver, sink and the
// optional HTTP listener together. It is created using [New] with
// functional options and started with [PulseStats.Start].
//
// Shutdown runs in reverse start order: the driver stops ticking, in-flight
// polls drain, and the sink is closed last, never before the final
// in-flight write has landed.
type PulseStats struct {
	identifiers     []string
	cycleDuration   time.Duration
	jitter          time.Duration
	debug           bool
	logger          *slog.Logger
	metricsAddr     string
	clientConfig    poller.ClientConfig
	sinkConfig      sink.Config
	snapCallbacks   []func(Snapshot)
	shutdownTimeout time.Duration
	tickInterval    time.Duration
	sink            sink.Sink
}

// New creates a new [PulseStats] instance with the given options.
//
// At least one identifier and exactly one sink must be configured.
// Identifiers must be unique. Jitter must be smaller than the cycle.
// Other options have defaults:
//   - Cycle duration: 1 hour
//   - Jitter: 0
//   - Fetch timeout: 10 seconds
//   - Fields: followers, following, posts
//   - Shutdown timeout: 10 seconds
//
// Example:
//
//	ps, err := pulsestats.New(
//	    pulsestats.WithIdentifiers("alice", "bob"),
//	    pulsestats.WithCycleDuration(30 * time.Minute),
//	    pulsestats.WithPostgresSink(os.Getenv("DB_URL"), ""),
//	)
func New(opts ...Option) (*PulseStats, error) {
	cfg := &psConfig{
		cycleDuration:   defaultCycleDuration,
		shutdownTimeout: defaultShutdownTimeout,
		tickInterval:    poller.DefaultTickInterval,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.identifiers) == 0 {
		return nil, errors.New("at least one identifier is required")
	}

	// a duplicate would be polled twice per cycle
	seen := make(map[string]bool, len(cfg.identifiers))
	for _, id := range cfg.identifiers {
		if seen[id] {
			return nil, fmt.Errorf("duplicate identifier: %q", id)
		}
		seen[id] = true
	}

	if cfg.jitter >= cfg.cycleDuration {
		return nil, fmt.Errorf("jitter (%s) must be smaller than the cycle duration (%s)", cfg.jitter, cfg.cycleDuration)
	}

	if cfg.sinkConfig == nil && cfg.sink == nil {
		return nil, errors.New("a sink is required (influx, postgres or memory)")
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	ps := &PulseStats{
		identifiers:   append([]string(nil), cfg.identifiers...),
		cycleDuration: cfg.cycleDuration,
		jitter:        cfg.jitter,
		debug:         cfg.debug,
		logger:        logger,
		metricsAddr:   cfg.metricsAddr,
		clientConfig: poller.ClientConfig{
			BaseURL: cfg.baseURL,
			Headers: cfg.headers,
			Fields:  cfg.fields,
			Timeout: cfg.fetchTimeout,
		},
		snapCallbacks:   cfg.snapCallbacks,
		shutdownTimeout: cfg.shutdownTimeout,
		tickInterval:    cfg.tickInterval,
		sink:            cfg.sink,
	}
	if cfg.sinkConfig != nil {
		ps.sinkConfig = *cfg.sinkConfig
	}
	return ps, nil
}

// Start begins polling and blocks until ctx is cancelled.
//
// During execution:
//
//   - The sink is opened (for Postgres, connectivity is verified and the table created)
//   - The optional HTTP listener binds to the metrics address
//   - Every second, each identifier whose due time has passed is polled on its own goroutine
//   - Each successful snapshot is written to the sink, then passed to callbacks
//
// After ctx is cancelled, Start stops the driver and waits up to the shutdown
// timeout for in-flight polls. The sink is closed only after every in-flight
// poll has written, with its own shutdown timeout for the close. If polls are
// still running when the drain times out, Start returns without closing the
// sink and closes it in the background once they finish.
//
// Returns nil on clean shutdown. Returns an error if any component fails to
// start, or the joined errors of every component that failed to stop.
func (ps *PulseStats) Start(ctx context.Context) error {
	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	ps.logger.Info("pulsestats starting",
		"identifier_count", len(ps.identifiers),
		"cycle", ps.cycleDuration.String(),
		"cadence", ps.Cadence().String(),
		"jitter", ps.jitter.String(),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(reg)

	client := poller.NewClient(ps.clientConfig)
	sinks := &sinkComponent{
		cfg:    ps.sinkConfig,
		sink:   ps.sink,
		feed:   sink.NewBroadcaster(),
		client: client,
		logger: ps.logger,
	}
	writer := &snapshotWriter{
		sinks:     sinks,
		callbacks: ps.snapCallbacks,
		logger:    ps.logger,
	}

	scheduler, err := poller.NewScheduler(poller.SchedulerConfig{
		Identifiers:   ps.identifiers,
		CycleDuration: ps.cycleDuration,
		Jitter:        ps.jitter,
		Fetcher:       client,
		Writer:        writer,
		Logger:        ps.logger,
		Metrics:       metrics,
		Debug:         ps.debug,
	})
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	driver := poller.NewDriver(ps.tickInterval)

	registry := service.NewRegistry(ps.logger)
	// the sink is closed by closeAfter, not by the registry
	registry.Register(service.Hooks{Label: "sink", OnStart: sinks.open})
	registry.Register(service.Hooks{
		Label:   "scheduler",
		OnStart: scheduler.Start,
		OnStop:  scheduler.Stop,
	})
	if ps.metricsAddr != "" {
		httpServer := server.NewServer(ps.metricsAddr, reg, scheduler, sinks.feed, ps.logger)
		registry.Register(service.Hooks{
			Label:   "http",
			OnStart: httpServer.Start,
			OnStop:  httpServer.Stop,
		})
	}
	registry.Register(service.Hooks{
		Label: "driver",
		OnStart: func(ctx context.Context) error {
			driver.Start(ctx, scheduler.Tick)
			return nil
		},
		OnStop: func(context.Context) error {
			driver.Stop()
			return nil
		},
	})

	if err := registry.Start(ctx); err != nil {
		// the driver never ran, so nothing is in flight and this returns at once
		_ = scheduler.Stop(context.WithoutCancel(ctx))
		return errors.Join(err, sinks.closeAfter(scheduler.Drained(), ps.shutdownTimeout))
	}
	ps.logger.Info("pulsestats started", "sink", ps.SinkType())

	<-ctx.Done()
	ps.logger.Info("pulsestats shutting down", "timeout", ps.shutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ps.shutdownTimeout)
	defer cancel()

	stopErr := registry.Stop(shutdownCtx)
	closeErr := sinks.closeAfter(scheduler.Drained(), ps.shutdownTimeout)
	if err := errors.Join(stopErr, closeErr); err != nil {
		ps.logger.Error("pulsestats stopped with errors", "error", err)
		return err
	}
	ps.logger.Info("pulsestats stopped")
	return nil
}

// Identifiers returns a copy of the configured identifiers, in schedule order.
func (ps *PulseStats) Identifiers() []string {
	return append([]string(nil), ps.identifiers...)
}

// CycleDuration returns the configured duration of one full polling pass.
func (ps *PulseStats) CycleDuration() time.Duration {
	return ps.cycleDuration
}

// Cadence returns the interval between consecutive polls across the list.
func (ps *PulseStats) Cadence() time.Duration {
	return ps.cycleDuration / time.Duration(len(ps.identifiers))
}

// Jitter returns the configured jitter bound.
func (ps *PulseStats) Jitter() time.Duration {
	return ps.jitter
}

// SinkType returns the configured sink backend name.
func (ps *PulseStats) SinkType() string {
	if ps.sinkConfig.Type == "" {
		return "custom"
	}
	return ps.sinkConfig.Type
}

// errSinkCloseDeferred is returned when polls outlive the shutdown timeout.
// The sink stays open until they finish so their writes are not lost.
var errSinkCloseDeferred = errors.New("sink close deferred: polls still in flight")

// sinkComponent owns the sink, the live feed and the fetch client's idle
// connections.
type sinkComponent struct {
	cfg    sink.Config
	sink   sink.Sink
	feed   *sink.Broadcaster
	client *poller.Client
	logger *slog.Logger
}

func (c *sinkComponent) open(ctx context.Context) error {
	if c.sink != nil {
		return nil
	}
	s, err := sink.Open(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	c.sink = s
	return nil
}

// closeAfter closes the sink once drained is closed, allowing timeout for the
// close itself. If polls are still running it returns errSinkCloseDeferred
// and closes the sink in the background when they settle.
func (c *sinkComponent) closeAfter(drained <-chan struct{}, timeout time.Duration) error {
	c.feed.Close()

	select {
	case <-drained:
		return c.close(timeout)
	default:
	}

	c.logger.Warn("polls outlived the shutdown timeout, sink close deferred until they finish")
	go func() {
		<-drained
		if err := c.close(timeout); err != nil {
			c.logger.Error("deferred sink close failed", "error", err)
			return
		}
		c.logger.Info("deferred sink close completed")
	}()
	return errSinkCloseDeferred
}

func (c *sinkComponent) close(timeout time.Duration) error {
	c.client.Close()
	if c.sink == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.sink.Close(ctx); err != nil {
		return fmt.Errorf("close sink: %w", err)
	}
	return nil
}

// snapshotWriter adapts the sink to the scheduler's SnapshotWriter.
type snapshotWriter struct {
	sinks     *sinkComponent
	callbacks []func(Snapshot)
	logger    *slog.Logger
}

// WriteSnapshot writes snap as one measurement batch, then publishes it to
// the live feed and runs callbacks. Nothing is published if the write fails.
func (w *snapshotWriter) WriteSnapshot(ctx context.Context, snap poller.Snapshot) error {
	batch := measurementsFromSnapshot(snap)
	if err := w.sinks.sink.Write(ctx, batch); err != nil {
		return err
	}

	w.sinks.feed.Publish(batch)

	for _, cb := range w.callbacks {
		invokeCallbackSafe(cb, toPublicSnapshot(snap), w.logger)
	}
	return nil
}
