package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Reconciler periodically refreshes the supervisor's cached session state so
// a dropped session is noticed between dashboard polls.
type Reconciler struct {
	interval time.Duration
	tickFn   func(context.Context)

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(interval time.Duration, tickFn func(context.Context)) (*Reconciler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	return &Reconciler{
		interval: interval,
		tickFn:   tickFn,
		done:     make(chan struct{}),
	}, nil
}

func (r *Reconciler) Start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running.Store(true)

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		slog.Info("session reconciler started", "interval", r.interval.String())

		for {
			select {
			case <-ctx.Done():
				slog.Info("session reconciler stopping")
				return
			case <-ticker.C:
				r.safeTick(ctx)
			}
		}
	}()

	return true
}

func (r *Reconciler) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running.Load() {
		return false
	}

	r.cancel()
	<-r.done
	r.running.Store(false)

	slog.Info("session reconciler stopped")
	return true
}

func (r *Reconciler) IsRunning() bool {
	return r.running.Load()
}

func (r *Reconciler) safeTick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("reconciler tick panic recovered", "panic", rec)
		}
	}()

	r.tickFn(ctx)
}
