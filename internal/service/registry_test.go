package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder collects lifecycle events across components.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) component(name string, startErr, stopErr error) Hooks {
	return Hooks{
		Label: name,
		OnStart: func(context.Context) error {
			r.add("start " + name)
			return startErr
		},
		OnStop: func(context.Context) error {
			r.add("stop " + name)
			return stopErr
		},
	}
}

func TestRegistry_Order(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(testLogger())
	reg.Register(rec.component("sink", nil, nil))
	reg.Register(rec.component("scheduler", nil, nil))
	reg.Register(rec.component("driver", nil, nil))

	if err := reg.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := reg.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	want := []string{
		"start sink", "start scheduler", "start driver",
		"stop driver", "stop scheduler", "stop sink",
	}
	if got := rec.list(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestRegistry_StartFailureRollsBack(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(testLogger())
	reg.Register(rec.component("sink", nil, nil))
	reg.Register(rec.component("server", errors.New("address in use"), nil))
	reg.Register(rec.component("driver", nil, nil))

	err := reg.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "start server: address in use") {
		t.Fatalf("Start() error = %v, want start server failure", err)
	}

	want := []string{"start sink", "start server", "stop sink"}
	if got := rec.list(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}

	if err := reg.Start(context.Background()); err == nil {
		t.Error("Start() after rollback expected error")
	}
}

func TestRegistry_StopJoinsErrors(t *testing.T) {
	rec := &recorder{}
	errSink := errors.New("flush failed")
	errSched := errors.New("polls still running")

	reg := NewRegistry(testLogger())
	reg.Register(rec.component("sink", nil, errSink))
	reg.Register(rec.component("scheduler", nil, errSched))
	reg.Register(rec.component("driver", nil, nil))

	if err := reg.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	err := reg.Stop(context.Background())
	if !errors.Is(err, errSink) || !errors.Is(err, errSched) {
		t.Errorf("Stop() error = %v, want both stop errors", err)
	}

	// every component is still stopped despite earlier failures
	want := []string{
		"start sink", "start scheduler", "start driver",
		"stop driver", "stop scheduler", "stop sink",
	}
	if got := rec.list(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestRegistry_StopIdempotent(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(testLogger())
	reg.Register(rec.component("sink", nil, nil))

	_ = reg.Start(context.Background())
	_ = reg.Stop(context.Background())
	if err := reg.Stop(context.Background()); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}

	if n := len(rec.list()); n != 2 {
		t.Errorf("events = %d, want 2", n)
	}
}

func TestRegistry_StopBeforeStart(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(testLogger())
	reg.Register(rec.component("sink", nil, nil))

	if err := reg.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if n := len(rec.list()); n != 0 {
		t.Errorf("events = %v, want none", rec.list())
	}
}

func TestRegistry_StopTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	rec := &recorder{}
	reg := NewRegistry(testLogger())
	reg.Register(rec.component("sink", nil, nil))
	reg.Register(Hooks{
		Label: "stuck",
		OnStop: func(context.Context) error {
			<-release
			return nil
		},
	})

	_ = reg.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := reg.Stop(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop() took %v, want bounded by ctx", elapsed)
	}
}

func TestHooks_NilFuncs(t *testing.T) {
	h := Hooks{Label: "noop"}
	if err := h.Start(context.Background()); err != nil {
		t.Errorf("Start() error = %v", err)
	}
	if err := h.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if h.Name() != "noop" {
		t.Errorf("Name() = %q, want noop", h.Name())
	}
}
