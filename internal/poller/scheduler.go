package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pulsestats/internal/telemetry"
)

// Fetcher retrieves one snapshot for one identifier. Implementations must
// not retry and must report expected failures as errors.
type Fetcher interface {
	Fetch(ctx context.Context, identifier string) (Snapshot, error)
}

// SnapshotWriter persists a captured snapshot. An error means the snapshot
// was dropped; the scheduler logs it and never retries.
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, snap Snapshot) error
}

// JitterFunc returns a random offset in [-bound, +bound].
type JitterFunc func(bound time.Duration) time.Duration

// SchedulerConfig holds the dependencies and settings of a [Scheduler].
type SchedulerConfig struct {
	// Identifiers is the fixed, ordered list of tracked identifiers.
	Identifiers []string

	// CycleDuration is how long one full pass over all identifiers takes.
	CycleDuration time.Duration

	// Jitter bounds the random offset added to every computed due time.
	Jitter time.Duration

	Fetcher Fetcher
	Writer  SnapshotWriter
	Logger  *slog.Logger
	Metrics *telemetry.Metrics

	// Debug echoes every captured snapshot at info level.
	Debug bool

	// Now and RandomJitter default to time.Now and [RandomJitter].
	Now          func() time.Time
	RandomJitter JitterFunc
}

// entity is one tracked identifier and its next due time.
type entity struct {
	identifier string
	nextDueAt  time.Time
}

// Scheduler spreads polls of a fixed set of identifiers evenly over a cycle.
//
// The cadence is CycleDuration / len(Identifiers). At construction the
// identifier at index i is due at now + cadence*i (plus jitter). Whenever an
// identifier is polled, its next due time is anchored to the current due time
// of the identifier before it in the list (wrapping around), plus one cadence
// and fresh jitter. Anchoring to the neighbour rather than to the wall clock
// keeps the initial stagger intact no matter how late ticks or fetches run.
//
// [Scheduler.Tick] is the only mutator and must not be called concurrently
// with itself. Polls run on their own goroutines; [Scheduler.Stop] waits for
// them to settle.
type Scheduler struct {
	cadence      time.Duration
	jitter       time.Duration
	fetcher      Fetcher
	writer       SnapshotWriter
	logger       *slog.Logger
	metrics      *telemetry.Metrics
	debug        bool
	now          func() time.Time
	randomJitter JitterFunc

	// mu guards entities so Schedule can be read while ticks run
	mu       sync.Mutex
	entities []entity

	lifecycle sync.Mutex
	ctx       context.Context
	stopped   bool
	inflight  sync.WaitGroup

	drainOnce sync.Once
	drained   chan struct{}
}

// NewScheduler validates cfg and computes the initial staggered due times.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if len(cfg.Identifiers) == 0 {
		return nil, errors.New("at least one identifier is required")
	}
	if cfg.CycleDuration <= 0 {
		return nil, fmt.Errorf("cycle duration must be positive, got %s", cfg.CycleDuration)
	}
	if cfg.Jitter < 0 {
		return nil, fmt.Errorf("jitter cannot be negative, got %s", cfg.Jitter)
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if cfg.Writer == nil {
		return nil, errors.New("snapshot writer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	jitterFn := cfg.RandomJitter
	if jitterFn == nil {
		jitterFn = RandomJitter
	}

	s := &Scheduler{
		cadence:      cfg.CycleDuration / time.Duration(len(cfg.Identifiers)),
		jitter:       cfg.Jitter,
		fetcher:      cfg.Fetcher,
		writer:       cfg.Writer,
		logger:       logger,
		metrics:      cfg.Metrics,
		debug:        cfg.Debug,
		now:          now,
		randomJitter: jitterFn,
		ctx:          context.Background(),
		drained:      make(chan struct{}),
	}

	start := now()
	s.entities = make([]entity, len(cfg.Identifiers))
	for i, id := range cfg.Identifiers {
		s.entities[i] = entity{
			identifier: id,
			nextDueAt:  start.Add(s.cadence*time.Duration(i) + s.randomJitter(s.jitter)),
		}
	}

	return s, nil
}

// Cadence returns the target interval between polls of one identifier.
func (s *Scheduler) Cadence() time.Duration {
	return s.cadence
}

// Schedule returns a copy of every identifier's current due time, in list order.
func (s *Scheduler) Schedule() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, len(s.entities))
	for i, e := range s.entities {
		entries[i] = Entry{Identifier: e.identifier, NextDueAt: e.nextDueAt}
	}
	return entries
}

// Start records the context polls derive from. Cancelling ctx later does not
// cancel polls already in flight; they are allowed to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx = context.WithoutCancel(ctx)
	return nil
}

// Tick evaluates every identifier once, in list order, and dispatches a poll
// for each one whose due time is at or before now.
//
// Each due identifier is advanced exactly once per tick even if it is many
// cycles behind. The neighbour's due time is read as it stands at that point
// in the scan, so when both an identifier and its predecessor are due in the
// same tick, the predecessor's freshly advanced time is the anchor.
func (s *Scheduler) Tick() {
	// held for the whole scan so Stop cannot begin draining mid-dispatch
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.stopped {
		return
	}
	ctx := s.ctx

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entities)
	for i := range s.entities {
		e := &s.entities[i]
		if e.nextDueAt.After(now) {
			continue
		}

		s.dispatch(ctx, e.identifier)

		prev := s.entities[(i-1+n)%n]
		e.nextDueAt = prev.nextDueAt.Add(s.cadence + s.randomJitter(s.jitter))
	}
}

// dispatch starts one poll on its own goroutine without waiting for it.
func (s *Scheduler) dispatch(ctx context.Context, identifier string) {
	s.inflight.Add(1)
	s.metrics.PollStarted()

	go func() {
		defer s.inflight.Done()
		defer s.metrics.PollSettled()
		s.poll(ctx, identifier)
	}()
}

// poll fetches one snapshot and hands it to the writer. Every failure is
// logged and absorbed here; nothing propagates back to the schedule.
func (s *Scheduler) poll(ctx context.Context, identifier string) {
	logger := s.logger.With("identifier", identifier, "poll_id", uuid.NewString())

	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			logger.Error("poll panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	start := time.Now()
	snap, err := s.fetcher.Fetch(ctx, identifier)
	s.metrics.ObserveFetch(time.Since(start), err)
	if err != nil {
		logger.Warn("fetch failed", "error", err)
		return
	}

	if s.debug {
		attrs := []any{"captured_at", snap.CapturedAt.Format(time.RFC3339)}
		for _, name := range snap.FieldNames() {
			attrs = append(attrs, name, snap.Fields[name])
		}
		logger.Info("snapshot captured", attrs...)
	}

	err = s.writer.WriteSnapshot(ctx, snap)
	s.metrics.ObserveSinkWrite(err)
	if err != nil {
		logger.Error("sink write failed", "error", err)
		return
	}

	logger.Debug("poll completed", "latency_ms", time.Since(start).Milliseconds())
}

// Wait blocks until every dispatched poll has settled.
func (s *Scheduler) Wait() {
	s.inflight.Wait()
}

// Stop prevents further ticks from dispatching and waits for in-flight polls
// to settle, or for ctx to expire. Polls still running when ctx expires keep
// running; [Scheduler.Drained] reports when they finish.
//
// Stop is idempotent. Ticks arriving after Stop are no-ops.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.lifecycle.Lock()
	s.stopped = true
	s.lifecycle.Unlock()

	// no dispatch can Add to inflight once stopped is set
	s.drainOnce.Do(func() {
		go func() {
			s.inflight.Wait()
			close(s.drained)
		}()
	})

	select {
	case <-s.drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight polls: %w", ctx.Err())
	}
}

// Drained returns a channel that is closed once [Scheduler.Stop] has been
// called and every dispatched poll, including its sink write, has settled.
func (s *Scheduler) Drained() <-chan struct{} {
	return s.drained
}

// RandomJitter returns a uniformly random offset in [-bound, +bound].
//
// Bounds that are a whole number of seconds draw whole seconds; other bounds
// draw at nanosecond resolution. A non-positive bound yields zero.
func RandomJitter(bound time.Duration) time.Duration {
	if bound <= 0 {
		return 0
	}
	if bound%time.Second == 0 {
		secs := int64(bound / time.Second)
		return time.Duration(rand.Int64N(2*secs+1)-secs) * time.Second
	}
	return time.Duration(rand.Int64N(2*int64(bound)+1)) - bound
}
