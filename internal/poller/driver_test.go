package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestDriver_StopBeforeStart verifies that Stop on a never-started driver
// is a safe no-op and that a later Start does nothing.
func TestDriver_StopBeforeStart(t *testing.T) {
	d := NewDriver(time.Millisecond)
	d.Stop()

	var calls atomic.Int32
	d.Start(context.Background(), func() { calls.Add(1) })
	time.Sleep(20 * time.Millisecond)
	d.Stop()

	if n := calls.Load(); n != 0 {
		t.Errorf("callback invoked %d times after Stop-before-Start, want 0", n)
	}
}

// TestDriver_Ticks verifies the callback fires repeatedly.
func TestDriver_Ticks(t *testing.T) {
	d := NewDriver(5 * time.Millisecond)

	var calls atomic.Int32
	d.Start(context.Background(), func() { calls.Add(1) })
	time.Sleep(100 * time.Millisecond)
	d.Stop()

	if n := calls.Load(); n < 3 {
		t.Errorf("callback invoked %d times in 100ms at 5ms interval, want at least 3", n)
	}
}

// TestDriver_NoInvocationAfterStop verifies that no callback begins after
// Stop returns.
func TestDriver_NoInvocationAfterStop(t *testing.T) {
	for i := 0; i < 20; i++ {
		d := NewDriver(time.Millisecond)

		var calls atomic.Int32
		d.Start(context.Background(), func() { calls.Add(1) })
		time.Sleep(5 * time.Millisecond)
		d.Stop()

		after := calls.Load()
		time.Sleep(10 * time.Millisecond)
		if n := calls.Load(); n != after {
			t.Fatalf("iteration %d: callback count moved from %d to %d after Stop", i, after, n)
		}
	}
}

// TestDriver_NoOverlap verifies invocations never run concurrently.
func TestDriver_NoOverlap(t *testing.T) {
	d := NewDriver(time.Millisecond)

	var active, maxActive atomic.Int32
	d.Start(context.Background(), func() {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		time.Sleep(3 * time.Millisecond)
		active.Add(-1)
	})
	time.Sleep(50 * time.Millisecond)
	d.Stop()

	if m := maxActive.Load(); m != 1 {
		t.Errorf("max concurrent invocations = %d, want 1", m)
	}
}

// TestDriver_StartTwice verifies Start is idempotent.
func TestDriver_StartTwice(t *testing.T) {
	d := NewDriver(5 * time.Millisecond)

	var mu sync.Mutex
	var active, maxActive int
	fn := func() {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
	}

	d.Start(context.Background(), fn)
	d.Start(context.Background(), fn)
	time.Sleep(50 * time.Millisecond)
	d.Stop()
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	if maxActive > 1 {
		t.Errorf("max concurrent invocations = %d, want 1 (second Start must be a no-op)", maxActive)
	}
}

// TestDriver_ContextCancellation verifies cancelling the parent context
// stops ticking.
func TestDriver_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDriver(time.Millisecond)

	var calls atomic.Int32
	d.Start(ctx, func() { calls.Add(1) })
	time.Sleep(5 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not complete after parent context cancellation")
	}
}

func TestNewDriver_DefaultInterval(t *testing.T) {
	if d := NewDriver(0); d.interval != DefaultTickInterval {
		t.Errorf("interval = %v, want %v", d.interval, DefaultTickInterval)
	}
}
