// Package notifications keeps per-user notification preferences and pushes
// externally changed settings to subscribers when the app returns to the foreground.
package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"example.com/userstate/internal/entity"
	"example.com/userstate/internal/identity"
	"example.com/userstate/internal/keys"
	"example.com/userstate/internal/lifecycle"
	"example.com/userstate/internal/persistence"
	"example.com/userstate/internal/staleness"
)

// Table is the remote table holding notification settings.
const Table = "notification_settings"

// Settings are a user's notification preferences.
type Settings struct {
	Enabled       bool   `json:"enabled"`
	DailyReminder bool   `json:"daily_reminder"`
	ReminderTime  string `json:"reminder_time"`
	BudgetAlerts  bool   `json:"budget_alerts"`
}

// Defaults are the settings of a user who never changed them.
func Defaults() Settings {
	return Settings{
		Enabled:       true,
		DailyReminder: true,
		ReminderTime:  "20:00",
		BudgetAlerts:  true,
	}
}

// DefaultWatchIdle is how long an identity stays watched after its last Load or Update.
const DefaultWatchIdle = 30 * time.Minute

// Subscriber receives settings changes.
type Subscriber func(id identity.Identity, s Settings)

// Option configures a Service.
type Option func(*Service)

// WithLogger overrides the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithStoreOptions forwards options to the underlying entity store.
func WithStoreOptions(opts ...entity.Option) Option {
	return func(s *Service) {
		s.storeOpts = append(s.storeOpts, opts...)
	}
}

// WithWatchIdle sets how long an identity is re-validated on foreground edges
// after its last Load or Update. Zero keeps identities watched until Forget.
func WithWatchIdle(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.watchIdle = d
		}
	}
}

// Service owns the settings of the identities it currently watches.
type Service struct {
	store     *entity.Store[Settings]
	storeOpts []entity.Option
	logger    zerolog.Logger
	watchIdle time.Duration

	mu      sync.Mutex
	watches map[string]*watch
	subs    map[uint64]Subscriber
	nextSub uint64
}

type watch struct {
	detector *staleness.Detector[Settings]
	lastSeen time.Time
}

var _ lifecycle.Listener = (*Service)(nil)

// NewService constructs a Service over the given backends.
func NewService(local persistence.Local, remote persistence.Remote, opts ...Option) *Service {
	s := &Service{
		logger:    zerolog.Nop(),
		watchIdle: DefaultWatchIdle,
		watches:   make(map[string]*watch),
		subs:      make(map[uint64]Subscriber),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.store = entity.New[Settings](entity.Config{Domain: keys.NotificationSettings, Table: Table}, local, remote, s.storeOpts...)
	return s
}

// Store exposes the underlying entity store.
func (s *Service) Store() *entity.Store[Settings] {
	return s.store
}

// Load returns the stored settings or the defaults. The identity is watched
// for external changes from then on.
func (s *Service) Load(ctx context.Context, id identity.Identity) Settings {
	settings := Defaults()
	if rec, ok := s.store.Get(ctx, id); ok {
		settings = rec.Fields
	}
	s.detector(id).Observe(settings)
	return settings
}

// Update replaces the settings and notifies subscribers.
func (s *Service) Update(ctx context.Context, id identity.Identity, settings Settings) (Settings, error) {
	rec, err := s.store.Save(ctx, id, settings, nil)
	if err != nil {
		return Settings{}, err
	}
	s.detector(id).Observe(rec.Fields)
	s.notify(id, rec.Fields)
	return rec.Fields, nil
}

// ResetDefaults restores the default settings.
func (s *Service) ResetDefaults(ctx context.Context, id identity.Identity) error {
	_, err := s.Update(ctx, id, Defaults())
	return err
}

// Forget stops re-validating id until its next Load or Update.
func (s *Service) Forget(id identity.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watches, id.ID)
}

// Watched returns the number of identities re-validated on foreground edges.
func (s *Service) Watched() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watches)
}

// Subscribe registers fn for settings changes. The returned function unsubscribes.
func (s *Service) Subscribe(fn Subscriber) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// OnLifecycle implements lifecycle.Listener by re-validating every watched
// identity. Identities idle for longer than the watch window are dropped first.
func (s *Service) OnLifecycle(ctx context.Context, state lifecycle.State) {
	if state != lifecycle.Active {
		return
	}
	now := s.store.Now()
	s.mu.Lock()
	detectors := make([]*staleness.Detector[Settings], 0, len(s.watches))
	for userID, w := range s.watches {
		if s.watchIdle > 0 && now.Sub(w.lastSeen) >= s.watchIdle {
			delete(s.watches, userID)
			continue
		}
		detectors = append(detectors, w.detector)
	}
	s.mu.Unlock()

	for _, d := range detectors {
		d.OnLifecycle(ctx, state)
	}
}

func (s *Service) detector(id identity.Identity) *staleness.Detector[Settings] {
	now := s.store.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.watches[id.ID]; ok {
		w.lastSeen = now
		return w.detector
	}
	d := staleness.New(
		func(ctx context.Context) (Settings, bool, error) {
			return s.current(ctx, id)
		},
		func(settings Settings) {
			s.store.Announce(context.Background(), id, "refresh")
			s.notify(id, settings)
		},
		staleness.WithName(Table),
		staleness.WithLogger(s.logger),
	)
	s.watches[id.ID] = &watch{detector: d, lastSeen: now}
	return d
}

// current is what Load would return now. A missing record reads as the
// defaults, so deleting it is a change like any other; an unreachable remote
// is an error.
func (s *Service) current(ctx context.Context, id identity.Identity) (Settings, bool, error) {
	rec, src := s.store.GetWithSource(ctx, id)
	switch src {
	case entity.SourceUnavailable:
		return Settings{}, false, entity.ErrUnavailable
	case entity.SourceNone:
		return Defaults(), true, nil
	}
	return rec.Fields, true, nil
}

func (s *Service) notify(id identity.Identity, settings Settings) {
	s.mu.Lock()
	subs := make([]Subscriber, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(id, settings)
	}
}
