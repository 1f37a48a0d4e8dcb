package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Component is a long-lived part of the process with a start/stop lifecycle.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Hooks adapts plain functions to [Component]. Nil hooks are no-ops.
type Hooks struct {
	Label   string
	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error
}

// Name returns the component label used in logs.
func (h Hooks) Name() string { return h.Label }

// Start calls OnStart.
func (h Hooks) Start(ctx context.Context) error {
	if h.OnStart == nil {
		return nil
	}
	return h.OnStart(ctx)
}

// Stop calls OnStop.
func (h Hooks) Stop(ctx context.Context) error {
	if h.OnStop == nil {
		return nil
	}
	return h.OnStop(ctx)
}

// Registry owns an ordered set of components.
type Registry struct {
	logger *slog.Logger

	mu         sync.Mutex
	components []Component
	started    int
	stopped    bool
}

// NewRegistry creates an empty [Registry].
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register appends c. Components must be registered before Start.
func (r *Registry) Register(c Component) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components = append(r.components, c)
}

// Start starts every component in registration order.
//
// If a component fails to start, the ones already started are stopped in
// reverse order and the start error is returned.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return errors.New("registry already stopped")
	}

	for i := r.started; i < len(r.components); i++ {
		c := r.components[i]
		if err := c.Start(ctx); err != nil {
			r.logger.Error("component failed to start", "component", c.Name(), "error", err)
			startErr := fmt.Errorf("start %s: %w", c.Name(), err)
			if stopErr := r.stopLocked(context.WithoutCancel(ctx)); stopErr != nil {
				return errors.Join(startErr, stopErr)
			}
			return startErr
		}
		r.started = i + 1
		r.logger.Debug("component started", "component", c.Name())
	}
	return nil
}

// Stop stops every started component in reverse registration order.
//
// Each component gets until ctx expires; a component that has not returned
// by then is abandoned and reported. Every stop error is collected. Stop is
// idempotent.
func (r *Registry) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return nil
	}
	return r.stopLocked(ctx)
}

func (r *Registry) stopLocked(ctx context.Context) error {
	r.stopped = true

	var errs []error
	for i := r.started - 1; i >= 0; i-- {
		c := r.components[i]
		if err := stopOne(ctx, c); err != nil {
			r.logger.Error("component failed to stop", "component", c.Name(), "error", err)
			errs = append(errs, fmt.Errorf("stop %s: %w", c.Name(), err))
			continue
		}
		r.logger.Info("component stopped", "component", c.Name())
	}
	r.started = 0
	return errors.Join(errs...)
}

// stopOne runs c.Stop but returns once ctx expires even if Stop has not.
func stopOne(ctx context.Context, c Component) error {
	done := make(chan error, 1)
	go func() {
		done <- c.Stop(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
