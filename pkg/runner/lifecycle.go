package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDrainTimeout is returned when services are still draining at the deadline.
var ErrDrainTimeout = errors.New("drain timeout")

type LifecycleRunner struct {
	state    atomic.Int32
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopErr  error
	hooks    Hooks
	services []Service
	timeout  time.Duration
	logger   *slog.Logger
}

func NewLifecycleRunner(services []Service, hooks Hooks, timeout time.Duration, logger *slog.Logger) *LifecycleRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &LifecycleRunner{
		hooks:    hooks,
		services: services,
		timeout:  timeout,
		logger:   logger,
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// Run starts every service in order and blocks until ctx is cancelled or
// Stop is called. A start failure drains the services already started.
func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateNew), int32(StateStarting)) {
		return fmt.Errorf("runner is %s", r.State())
	}
	PrintBanner()
	if ctx != nil {
		r.ctx, r.cancel = context.WithCancel(ctx)
	}
	for i, svc := range r.services {
		if err := svc.Start(r.ctx); err != nil {
			r.services = r.services[:i]
			r.cancel()
			return errors.Join(fmt.Errorf("start service %d: %w", i, err), r.stop())
		}
	}
	if r.hooks.OnStart != nil {
		r.hooks.OnStart()
	}
	r.state.Store(int32(StateRunning))
	r.logger.Info("runner_started", "version", Version, "services", len(r.services))
	<-r.ctx.Done()
	return r.stop()
}

func (r *LifecycleRunner) Stop() error {
	r.cancel()
	return r.stop()
}

func (r *LifecycleRunner) State() State {
	return State(r.state.Load())
}

// stop drains services in reverse start order under one shared deadline.
func (r *LifecycleRunner) stop() error {
	r.stopOnce.Do(func() {
		r.state.Store(int32(StateDraining))
		r.logger.Info("runner_draining", "timeout", r.timeout.String())

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			var errs error
			for i := len(r.services) - 1; i >= 0; i-- {
				errs = errors.Join(errs, r.services[i].Drain(ctx))
			}
			done <- errs
		}()
		select {
		case r.stopErr = <-done:
		case <-ctx.Done():
			r.stopErr = ErrDrainTimeout
		}

		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
		r.state.Store(int32(StateStopped))
		if r.stopErr != nil {
			r.logger.Warn("runner_stopped", "error", r.stopErr)
			return
		}
		r.logger.Info("runner_stopped")
	})
	return r.stopErr
}
