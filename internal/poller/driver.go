package poller

import (
	"context"
	"sync"
	"time"
)

// DefaultTickInterval is the fixed wall-clock interval between ticks.
const DefaultTickInterval = time.Second

// Driver invokes a callback once per fixed interval on a single goroutine.
//
// Invocations never overlap: the next tick is not consumed until the previous
// callback has returned. All lifecycle methods are safe for concurrent use.
type Driver struct {
	interval time.Duration

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDriver creates a [Driver] that ticks every interval.
// A non-positive interval falls back to [DefaultTickInterval].
func NewDriver(interval time.Duration) *Driver {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Driver{interval: interval}
}

// Start begins invoking fn once per interval in a background goroutine.
//
// The first invocation happens one interval after Start. Start is idempotent;
// calls after the first, or after [Driver.Stop], are no-ops. Cancelling ctx
// stops the driver the same way Stop does.
func (d *Driver) Start(ctx context.Context, fn func()) {
	d.mu.Lock()
	if d.started || d.stopped {
		d.mu.Unlock()
		return
	}
	d.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	tickCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()

		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				// both channels may be ready; never start a tick after cancellation
				if tickCtx.Err() != nil {
					return
				}
				fn()
			}
		}
	}()
}

// Stop halts the driver. No invocation begins after Stop returns.
//
// Stop waits for the loop goroutine to exit, which includes any callback that
// was running. Stop is idempotent and safe to call before Start.
func (d *Driver) Stop() {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		if d.cancel != nil {
			d.cancel()
		}
	}
	d.mu.Unlock()

	d.wg.Wait()
}
