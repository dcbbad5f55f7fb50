// Package ratelimit coalesces bursts of calls into fewer executions.
//
// A Debouncer runs once after calls stop arriving for the wait period. A
// Throttler runs at most once per wait period, leading call first, with one
// trailing run carrying the latest arguments. Each instance owns its own
// timer; there is no shared state between instances.
package ratelimit

import (
	"sync"
	"time"

	"example.com/userstate/internal/observability"
)

// Timer is the subset of *time.Timer the limiters need.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer { return time.AfterFunc(d, fn) }

type settings struct {
	clock Clock
}

// Option configures a limiter.
type Option func(*settings)

// WithClock overrides the clock used to schedule runs.
func WithClock(c Clock) Option {
	return func(s *settings) {
		if c != nil {
			s.clock = c
		}
	}
}

func apply(opts []Option) settings {
	s := settings{clock: realClock{}}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Debouncer delays fn until wait has elapsed since the last Call.
type Debouncer[A any] struct {
	mu      sync.Mutex
	wait    time.Duration
	fn      func(A)
	clock   Clock
	timer   Timer
	args    A
	pending bool
	// generation invalidates timers that fired after being superseded.
	generation uint64
}

// Debounce wraps fn.
func Debounce[A any](wait time.Duration, fn func(A), opts ...Option) *Debouncer[A] {
	s := apply(opts)
	return &Debouncer[A]{wait: wait, fn: fn, clock: s.clock}
}

// Call records args and restarts the wait period.
func (d *Debouncer[A]) Call(args A) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.args = args
	d.pending = true
	d.generation++
	gen := d.generation
	d.timer = d.clock.AfterFunc(d.wait, func() { d.fire(gen) })
}

func (d *Debouncer[A]) fire(gen uint64) {
	d.mu.Lock()
	if !d.pending || gen != d.generation {
		d.mu.Unlock()
		return
	}
	args := d.args
	d.pending = false
	d.timer = nil
	d.mu.Unlock()

	observability.RecordLimiterRun("debounce")
	d.fn(args)
}

// Pending reports whether a call is waiting to run.
func (d *Debouncer[A]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Cancel drops the pending call, if any.
func (d *Debouncer[A]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *Debouncer[A]) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = false
	d.generation++
	var zero A
	d.args = zero
}

// Flush runs the pending call now. It reports whether anything ran.
func (d *Debouncer[A]) Flush() bool {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return false
	}
	args := d.args
	d.stopLocked()
	d.mu.Unlock()

	observability.RecordLimiterRun("debounce")
	d.fn(args)
	return true
}

// Throttler runs fn at most once per wait period.
type Throttler[A any] struct {
	mu         sync.Mutex
	wait       time.Duration
	fn         func(A)
	clock      Clock
	lastRun    time.Time
	ran        bool
	timer      Timer
	args       A
	pending    bool
	generation uint64
}

// Throttle wraps fn.
func Throttle[A any](wait time.Duration, fn func(A), opts ...Option) *Throttler[A] {
	s := apply(opts)
	return &Throttler[A]{wait: wait, fn: fn, clock: s.clock}
}

// Call runs fn immediately when the window is open. Otherwise the latest args
// are kept for a single trailing run at lastRun+wait.
func (t *Throttler[A]) Call(args A) {
	t.mu.Lock()
	now := t.clock.Now()
	if !t.ran || now.Sub(t.lastRun) >= t.wait {
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
		t.pending = false
		t.generation++
		t.lastRun = now
		t.ran = true
		t.mu.Unlock()

		observability.RecordLimiterRun("throttle")
		t.fn(args)
		return
	}

	t.args = args
	if !t.pending {
		t.pending = true
		t.generation++
		gen := t.generation
		delay := t.wait - now.Sub(t.lastRun)
		t.timer = t.clock.AfterFunc(delay, func() { t.fire(gen) })
	}
	t.mu.Unlock()
}

func (t *Throttler[A]) fire(gen uint64) {
	t.mu.Lock()
	if !t.pending || gen != t.generation {
		t.mu.Unlock()
		return
	}
	args := t.args
	t.pending = false
	t.timer = nil
	t.lastRun = t.clock.Now()
	t.mu.Unlock()

	observability.RecordLimiterRun("throttle")
	t.fn(args)
}

// Cancel drops the trailing run and reopens the window.
func (t *Throttler[A]) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = false
	t.ran = false
	t.generation++
	var zero A
	t.args = zero
}
