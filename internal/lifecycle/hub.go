// Package lifecycle tracks the application's foreground/background state and
// fans real transitions out to listeners.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"example.com/userstate/internal/observability"
	"example.com/userstate/internal/ratelimit"
)

// State is the application lifecycle state.
type State string

const (
	Active     State = "active"
	Background State = "background"
	Inactive   State = "inactive"
)

// ParseState accepts the lifecycle names case-insensitively.
func ParseState(value string) (State, error) {
	switch s := State(strings.ToLower(strings.TrimSpace(value))); s {
	case Active, Background, Inactive:
		return s, nil
	default:
		return "", fmt.Errorf("unknown lifecycle state %q", value)
	}
}

// Listener receives lifecycle edges.
type Listener interface {
	OnLifecycle(ctx context.Context, state State)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, state State)

// OnLifecycle implements Listener.
func (f ListenerFunc) OnLifecycle(ctx context.Context, state State) { f(ctx, state) }

type subscription struct {
	id       uint64
	listener Listener
	active   *ratelimit.Throttler[context.Context]
}

type settings struct {
	logger   zerolog.Logger
	throttle time.Duration
	clock    ratelimit.Clock
	initial  State
}

// Option configures the Hub.
type Option func(*settings)

// WithLogger overrides the hub logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithRefreshThrottle limits how often throttled listeners see Active edges.
func WithRefreshThrottle(d time.Duration) Option {
	return func(s *settings) {
		s.throttle = d
	}
}

// WithClock overrides the clock behind the refresh throttle.
func WithClock(c ratelimit.Clock) Option {
	return func(s *settings) {
		s.clock = c
	}
}

// WithInitialState sets the state assumed before the first signal. Defaults to Active.
func WithInitialState(state State) Option {
	return func(s *settings) {
		s.initial = state
	}
}

// Hub dispatches only real transitions; repeated identical signals are dropped.
type Hub struct {
	mu       sync.Mutex
	current  State
	subs     []*subscription
	nextID   uint64
	logger   zerolog.Logger
	throttle time.Duration
	clock    ratelimit.Clock
}

// NewHub constructs a Hub.
func NewHub(opts ...Option) *Hub {
	s := settings{logger: zerolog.Nop(), initial: Active}
	for _, opt := range opts {
		opt(&s)
	}
	return &Hub{
		current:  s.initial,
		logger:   s.logger,
		throttle: s.throttle,
		clock:    s.clock,
	}
}

// Current returns the last known state.
func (h *Hub) Current() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Subscribe registers l for every edge. The returned function unsubscribes.
func (h *Hub) Subscribe(l Listener) func() {
	return h.add(&subscription{listener: l})
}

// SubscribeThrottled registers l with Active edges rate-limited by the refresh
// throttle. Background and Inactive edges are delivered immediately.
func (h *Hub) SubscribeThrottled(l Listener) func() {
	sub := &subscription{listener: l}
	if h.throttle > 0 {
		var opts []ratelimit.Option
		if h.clock != nil {
			opts = append(opts, ratelimit.WithClock(h.clock))
		}
		sub.active = ratelimit.Throttle(h.throttle, func(ctx context.Context) {
			l.OnLifecycle(ctx, Active)
		}, opts...)
	}
	return h.add(sub)
}

func (h *Hub) add(sub *subscription) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub.id = h.nextID
	h.subs = append(h.subs, sub)

	id := sub.id
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, s := range h.subs {
			if s.id == id {
				if s.active != nil {
					s.active.Cancel()
				}
				h.subs = append(h.subs[:i], h.subs[i+1:]...)
				return
			}
		}
	}
}

// Signal records state and dispatches it when it differs from the current state.
// It reports whether an edge was dispatched.
func (h *Hub) Signal(ctx context.Context, state State) bool {
	h.mu.Lock()
	if state == h.current {
		h.mu.Unlock()
		return false
	}
	prev := h.current
	h.current = state
	subs := append([]*subscription(nil), h.subs...)
	h.mu.Unlock()

	h.logger.Debug().Str("from", string(prev)).Str("to", string(state)).Msg("lifecycle edge")
	observability.RecordLifecycleEdge(string(state))

	for _, sub := range subs {
		if state == Active && sub.active != nil {
			// Trailing runs outlive the signalling request.
			sub.active.Call(context.WithoutCancel(ctx))
			continue
		}
		sub.listener.OnLifecycle(ctx, state)
	}
	return true
}
