// Package poll drives a recurring update function on a relative schedule.
package poll

import (
	"context"
	"log"
	"sync"
	"time"
)

// UpdateFunc is one polling cycle. Failures are reported to the error
// observer and swallowed; they never halt the loop.
type UpdateFunc func(ctx context.Context) error

// ErrorObserver receives swallowed cycle failures.
type ErrorObserver func(err error)

// Poller runs an update function on a relative schedule: the first cycle
// fires immediately, every later cycle is scheduled interval after the
// previous cycle's completion. Cumulative drift is accepted. Exactly one
// cycle is in flight at a time: the next timer is created only from the
// completion of the previous cycle.
type Poller struct {
	interval time.Duration
	update   UpdateFunc
	onError  ErrorObserver
	logger   *log.Logger

	mu      sync.Mutex
	timer   *time.Timer
	running bool
	stopped bool
}

// Option configures a Poller.
type Option func(*Poller)

// WithErrorObserver sets the observer for swallowed cycle failures.
func WithErrorObserver(f ErrorObserver) Option {
	return func(p *Poller) { p.onError = f }
}

// WithLogger sets the poller logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// New creates a poller that invokes update every interval.
func New(interval time.Duration, update UpdateFunc, opts ...Option) *Poller {
	p := &Poller{interval: interval, update: update}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start schedules an immediate first cycle. Calling Start on a running
// poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopped = false
	p.schedule(ctx, 0)
}

// Stop cancels a pending, not-yet-fired cycle. A cycle already in flight
// runs to completion but does not reschedule. No-op when idle.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// Running reports whether the poller has been started and not stopped.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// schedule arms the next cycle. Caller holds p.mu.
func (p *Poller) schedule(ctx context.Context, delay time.Duration) {
	p.timer = time.AfterFunc(delay, func() {
		p.cycle(ctx)
	})
}

// cycle runs one update and reschedules from its completion. Rescheduling
// happens unconditionally after a failure: one failing cycle never halts
// the loop.
func (p *Poller) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		p.Stop()
		return
	}

	if err := p.update(ctx); err != nil {
		if p.logger != nil {
			p.logger.Printf("poll cycle failed: %v", err)
		}
		if p.onError != nil {
			p.onError(err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.schedule(ctx, p.interval)
}
