// Package hostloop is a minimal main loop. Each iteration runs the systems
// of the first stage, then the update stage, in registration order.
package hostloop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// System is one unit of per-iteration work.
type System func(ctx context.Context) error

type namedSystem struct {
	name string
	run  System
}

// Loop runs registered systems once per iteration.
type Loop struct {
	logger *zap.Logger

	mu     sync.RWMutex
	first  []namedSystem
	update []namedSystem
	guard  func()

	iterations *atomic.Uint64
	interval   time.Duration
}

// New creates a loop. A zero interval runs iterations back to back.
func New(logger *zap.Logger, interval time.Duration) *Loop {
	return &Loop{
		logger:     logger,
		iterations: atomic.NewUint64(0),
		interval:   interval,
	}
}

// AddFirstSystem registers a system that runs before every update system.
func (l *Loop) AddFirstSystem(name string, s System) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.first = append(l.first, namedSystem{name: name, run: s})
}

// AddSystem registers an update system.
func (l *Loop) AddSystem(name string, s System) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.update = append(l.update, namedSystem{name: name, run: s})
}

// SetGuard sets a function deferred around every iteration. It must call
// recover itself, for example bootstrap.Guard.
func (l *Loop) SetGuard(guard func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.guard = guard
}

// Iterations returns the number of completed iterations.
func (l *Loop) Iterations() uint64 {
	return l.iterations.Load()
}

// RunOnce runs one iteration. It stops at the first failing system.
func (l *Loop) RunOnce(ctx context.Context) error {
	l.mu.RLock()
	stages := [][]namedSystem{l.first, l.update}
	guard := l.guard
	l.mu.RUnlock()
	if guard != nil {
		defer guard()
	}

	for _, stage := range stages {
		for _, s := range stage {
			if err := s.run(ctx); err != nil {
				return fmt.Errorf("system %s: %w", s.name, err)
			}
		}
	}
	l.iterations.Inc()
	return nil
}

// Run iterates until ctx is done or n iterations have run. n <= 0 runs
// until ctx is done.
func (l *Loop) Run(ctx context.Context, n int) error {
	var ticker *time.Ticker
	if l.interval > 0 {
		ticker = time.NewTicker(l.interval)
		defer ticker.Stop()
	}

	l.logger.Debug("Host loop started", zap.Int("iterations", n), zap.Duration("interval", l.interval))
	for i := 0; n <= 0 || i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.RunOnce(ctx); err != nil {
			l.logger.Error("Host loop iteration failed", zap.Uint64("iteration", l.Iterations()), zap.Error(err))
			return err
		}
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
	l.logger.Debug("Host loop finished", zap.Uint64("iterations", l.Iterations()))
	return nil
}
