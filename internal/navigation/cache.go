// Package navigation remembers the last screen for quick-reopen resumes.
//
// The marker is valid for a fixed window after it was written. Expiry is
// evaluated lazily on read, and eagerly when the application comes back to
// the foreground after spending at least the window in the background.
package navigation

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"example.com/userstate/internal/codec"
	"example.com/userstate/internal/keys"
	"example.com/userstate/internal/lifecycle"
	"example.com/userstate/internal/observability"
	"example.com/userstate/internal/persistence"
)

// DefaultTTL is the quick-reopen window.
const DefaultTTL = 30 * time.Second

// State is the derived freshness of the stored marker.
type State int

const (
	Empty State = iota
	Fresh
	Expired
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Expired:
		return "expired"
	default:
		return "empty"
	}
}

// Marker is the stored navigation position.
type Marker struct {
	LastScreen string
	Timestamp  time.Time
}

type markerJSON struct {
	LastScreen string `json:"lastScreen"`
	Timestamp  int64  `json:"timestamp"`
}

// MarshalJSON encodes the timestamp as epoch milliseconds.
func (m Marker) MarshalJSON() ([]byte, error) {
	return json.Marshal(markerJSON{LastScreen: m.LastScreen, Timestamp: m.Timestamp.UnixMilli()})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Marker) UnmarshalJSON(data []byte) error {
	var raw markerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.LastScreen = raw.LastScreen
	m.Timestamp = time.UnixMilli(raw.Timestamp).UTC()
	return nil
}

type settings struct {
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Cache.
type Option func(*settings)

// WithTTL overrides the quick-reopen window.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the cache clock.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger overrides the cache logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// Cache stores a single navigation marker in the local backend.
type Cache struct {
	local  persistence.Local
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger

	mu             sync.Mutex
	backgroundedAt time.Time
}

var _ lifecycle.Listener = (*Cache)(nil)

// NewCache constructs a Cache.
func NewCache(local persistence.Local, opts ...Option) *Cache {
	s := settings{ttl: DefaultTTL, now: time.Now, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&s)
	}
	return &Cache{local: local, ttl: s.ttl, now: s.now, logger: s.logger}
}

// TTL returns the configured window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Save overwrites the marker with screen at the current time.
func (c *Cache) Save(ctx context.Context, screen string) error {
	text, err := codec.Encode(Marker{LastScreen: screen, Timestamp: c.now()})
	if err != nil {
		return err
	}
	return c.local.Set(ctx, string(keys.NavigationState), text)
}

// load returns the stored marker. corrupt is set when a value exists but cannot be decoded.
func (c *Cache) load(ctx context.Context) (marker Marker, found, corrupt bool) {
	raw, ok, err := c.local.Get(ctx, string(keys.NavigationState))
	if err != nil {
		c.logger.Warn().Err(err).Msg("navigation marker unreadable")
		return Marker{}, false, false
	}
	if !ok {
		return Marker{}, false, false
	}
	marker, err = codec.Decode[Marker](raw)
	if err != nil {
		c.logger.Warn().Err(err).Msg("navigation marker corrupt")
		return Marker{}, false, true
	}
	return marker, true, false
}

// classify derives the marker state. A marker stamped in the future comes from
// a skewed clock and is never fresh.
func (c *Cache) classify(marker Marker) State {
	age := c.now().Sub(marker.Timestamp)
	if age >= 0 && age < c.ttl {
		return Fresh
	}
	return Expired
}

// State reports the marker's derived state without side effects.
func (c *Cache) State(ctx context.Context) (State, Marker) {
	marker, found, _ := c.load(ctx)
	if !found {
		return Empty, Marker{}
	}
	return c.classify(marker), marker
}

// ReadIfFresh returns the last screen while the marker is within the window.
// Expired and corrupt markers are deleted.
func (c *Cache) ReadIfFresh(ctx context.Context) (string, bool) {
	marker, found, corrupt := c.load(ctx)
	if corrupt {
		c.remove(ctx)
		return "", false
	}
	if !found {
		return "", false
	}
	if c.classify(marker) == Expired {
		observability.RecordNavigationExpired("read")
		c.remove(ctx)
		return "", false
	}
	return marker.LastScreen, true
}

// OnLifecycle implements lifecycle.Listener.
func (c *Cache) OnLifecycle(ctx context.Context, state lifecycle.State) {
	now := c.now()

	c.mu.Lock()
	if state != lifecycle.Active {
		if c.backgroundedAt.IsZero() {
			c.backgroundedAt = now
		}
		c.mu.Unlock()
		return
	}
	since := c.backgroundedAt
	c.backgroundedAt = time.Time{}
	c.mu.Unlock()

	if since.IsZero() || now.Sub(since) < c.ttl {
		return
	}
	observability.RecordNavigationExpired("resume")
	c.logger.Debug().Dur("background", now.Sub(since)).Msg("clearing navigation marker after long background")
	c.remove(ctx)
}

func (c *Cache) remove(ctx context.Context) {
	if err := c.local.Remove(ctx, string(keys.NavigationState)); err != nil {
		c.logger.Warn().Err(err).Msg("navigation marker not removed")
	}
}
