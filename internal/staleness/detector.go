// Package staleness re-validates an in-memory view against its backing store
// when the application returns to the foreground.
package staleness

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"example.com/userstate/internal/codec"
	"example.com/userstate/internal/lifecycle"
	"example.com/userstate/internal/observability"
)

// FetchFunc loads the current stored value. found=false means there is nothing
// to compare, so nothing is published; owners that show a default for a missing
// value should return that default as found.
type FetchFunc[T any] func(ctx context.Context) (value T, found bool, err error)

type settings struct {
	logger zerolog.Logger
	name   string
}

// Option configures a Detector.
type Option func(*settings)

// WithLogger overrides the detector logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithName labels the detector in logs and metrics.
func WithName(name string) Option {
	return func(s *settings) {
		s.name = name
	}
}

// Detector publishes a value exactly once when the stored copy changed
// externally since the owner last observed it.
type Detector[T any] struct {
	fetch   FetchFunc[T]
	publish func(T)
	logger  zerolog.Logger
	name    string

	inFlight atomic.Bool

	mu         sync.Mutex
	snapshot   string
	lastPushed string
}

var _ lifecycle.Listener = (*Detector[struct{}])(nil)

// New constructs a Detector.
func New[T any](fetch FetchFunc[T], publish func(T), opts ...Option) *Detector[T] {
	s := settings{logger: zerolog.Nop(), name: "default"}
	for _, opt := range opts {
		opt(&s)
	}
	return &Detector[T]{
		fetch:   fetch,
		publish: publish,
		logger:  s.logger.With().Str("detector", s.name).Logger(),
		name:    s.name,
	}
}

// Observe records the owner's current view. Values that cannot be encoded are ignored.
func (d *Detector[T]) Observe(v T) {
	text, err := codec.Encode(v)
	if err != nil {
		d.logger.Warn().Err(err).Msg("observe: value not serialisable")
		return
	}
	d.mu.Lock()
	d.snapshot = text
	d.mu.Unlock()
}

// OnLifecycle implements lifecycle.Listener. Only Active edges trigger a check.
func (d *Detector[T]) OnLifecycle(ctx context.Context, state lifecycle.State) {
	if state != lifecycle.Active {
		return
	}
	if _, err := d.OnActive(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("re-validation failed")
	}
}

// OnActive fetches the stored value and publishes it when it differs from both
// the observed snapshot and the last value this detector published. A call made
// while another is running returns false immediately.
func (d *Detector[T]) OnActive(ctx context.Context) (bool, error) {
	if !d.inFlight.CompareAndSwap(false, true) {
		observability.RecordDetectorSkipped(d.name)
		return false, nil
	}
	defer d.inFlight.Store(false)

	value, found, err := d.fetch(ctx)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	text, err := codec.Encode(value)
	if err != nil {
		return false, err
	}

	d.mu.Lock()
	if text == d.snapshot || text == d.lastPushed {
		d.mu.Unlock()
		return false, nil
	}
	d.snapshot = text
	d.lastPushed = text
	d.mu.Unlock()

	observability.RecordDetectorPush(d.name)
	d.logger.Debug().Msg("external change detected")
	d.publish(value)
	return true, nil
}
