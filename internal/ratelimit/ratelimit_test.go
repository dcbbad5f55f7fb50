package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward, firing due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			break
		}
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.fn()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

type run struct {
	at   time.Time
	args int
}

func TestDebounceBurstRunsOnceWithLastArgs(t *testing.T) {
	clock := newFakeClock()
	var runs []run
	d := Debounce(100*time.Millisecond, func(v int) {
		runs = append(runs, run{at: clock.Now(), args: v})
	}, WithClock(clock))

	// Five calls within 50ms; the last lands at +40ms.
	start := clock.Now()
	for i := 1; i <= 5; i++ {
		d.Call(i)
		clock.Advance(10 * time.Millisecond)
	}
	require.Empty(t, runs)
	require.True(t, d.Pending())

	clock.Advance(50 * time.Millisecond)
	require.Empty(t, runs)

	clock.Advance(40 * time.Millisecond)
	require.Len(t, runs, 1)
	require.Equal(t, 5, runs[0].args)
	require.Equal(t, start.Add(140*time.Millisecond), runs[0].at)
	require.False(t, d.Pending())
}

func TestDebounceCancelDropsPendingCall(t *testing.T) {
	clock := newFakeClock()
	var calls int
	d := Debounce(50*time.Millisecond, func(int) { calls++ }, WithClock(clock))

	d.Call(1)
	d.Cancel()
	clock.Advance(time.Second)
	require.Zero(t, calls)
	require.False(t, d.Pending())
}

func TestDebounceFlushRunsImmediately(t *testing.T) {
	clock := newFakeClock()
	var got []string
	d := Debounce(time.Second, func(s string) { got = append(got, s) }, WithClock(clock))

	require.False(t, d.Flush())
	d.Call("a")
	d.Call("b")
	require.True(t, d.Flush())
	require.Equal(t, []string{"b"}, got)

	clock.Advance(2 * time.Second)
	require.Equal(t, []string{"b"}, got)
}

func TestThrottleSteadyStreamRunsLeadingAndTrailing(t *testing.T) {
	clock := newFakeClock()
	var runs []run
	th := Throttle(100*time.Millisecond, func(v int) {
		runs = append(runs, run{at: clock.Now(), args: v})
	}, WithClock(clock))

	for i := 0; i < 50; i++ {
		th.Call(i)
		clock.Advance(10 * time.Millisecond)
	}
	clock.Advance(100 * time.Millisecond)

	require.LessOrEqual(t, len(runs), 6)
	require.GreaterOrEqual(t, len(runs), 5)
	require.Equal(t, 0, runs[0].args)
	require.Equal(t, 49, runs[len(runs)-1].args)
	for i := 1; i < len(runs); i++ {
		require.GreaterOrEqual(t, runs[i].at.Sub(runs[i-1].at), 100*time.Millisecond)
	}
}

func TestThrottleSingleCallHasNoTrailingRun(t *testing.T) {
	clock := newFakeClock()
	var calls int
	th := Throttle(100*time.Millisecond, func(int) { calls++ }, WithClock(clock))

	th.Call(1)
	clock.Advance(time.Second)
	require.Equal(t, 1, calls)
}

func TestThrottleCancelDropsTrailingRun(t *testing.T) {
	clock := newFakeClock()
	var got []int
	th := Throttle(100*time.Millisecond, func(v int) { got = append(got, v) }, WithClock(clock))

	th.Call(1)
	th.Call(2)
	th.Cancel()
	clock.Advance(time.Second)
	require.Equal(t, []int{1}, got)

	th.Call(3)
	require.Equal(t, []int{1, 3}, got)
}

func TestDebounceWithRealClock(t *testing.T) {
	var calls atomic.Int32
	var last atomic.Int32
	d := Debounce(20*time.Millisecond, func(v int32) {
		calls.Add(1)
		last.Store(v)
	})

	for i := int32(1); i <= 5; i++ {
		d.Call(i)
		time.Sleep(2 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, int32(5), last.Load())
}
