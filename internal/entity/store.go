// Package entity routes per-user records between the remote and local backends.
//
// Durable identities are authoritative in the remote backend. Every
// acknowledged remote write also leaves a shadow copy under the domain key in
// local storage; reads consult it only when the remote backend cannot be
// reached, and writes never start from it. Ephemeral identities live only in
// local storage and never touch the remote backend.
package entity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"example.com/userstate/internal/codec"
	"example.com/userstate/internal/events"
	"example.com/userstate/internal/identity"
	"example.com/userstate/internal/keys"
	"example.com/userstate/internal/observability"
	"example.com/userstate/internal/persistence"
)

// Source reports which backend answered a read.
type Source string

const (
	SourceNone     Source = "none"
	SourceRemote   Source = "remote"
	SourceLocal    Source = "local"
	SourceFallback Source = "fallback"
	// SourceUnavailable means the remote backend failed and no shadow copy
	// exists, so whether a record exists is unknown.
	SourceUnavailable Source = "unavailable"
)

// ErrUnavailable is returned by read-before-write operations when the
// authoritative record could not be read. It matches persistence.ErrRemoteFailure.
var ErrUnavailable = fmt.Errorf("authoritative record unavailable: %w", persistence.ErrRemoteFailure)

// found reports whether the source produced a record.
func (src Source) found() bool {
	return src != SourceNone && src != SourceUnavailable
}

// authoritative reports whether a write may be based on the read.
func (src Source) authoritative() bool {
	return src == SourceNone || src == SourceRemote || src == SourceLocal
}

// Config binds a store to its domain key namespace and remote table.
type Config struct {
	Domain keys.Domain
	// Table defaults to the domain prefix.
	Table string
}

type settings struct {
	logger    zerolog.Logger
	now       func() time.Time
	publisher events.Publisher
}

// Option configures optional behaviour for the Store.
type Option func(*settings)

// WithLogger overrides the logger used to report degraded reads.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithClock overrides the clock used to stamp UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPublisher emits a StateChanged event after every acknowledged write.
func WithPublisher(p events.Publisher) Option {
	return func(s *settings) {
		if p != nil {
			s.publisher = p
		}
	}
}

// Store is a dual-backend record store for one domain.
type Store[T any] struct {
	domain    keys.Domain
	table     string
	local     persistence.Local
	remote    persistence.Remote
	logger    zerolog.Logger
	now       func() time.Time
	publisher events.Publisher
	tracer    trace.Tracer
}

// New constructs a Store. A nil remote behaves as an unreachable backend.
func New[T any](cfg Config, local persistence.Local, remote persistence.Remote, opts ...Option) *Store[T] {
	s := settings{
		logger:    zerolog.Nop(),
		now:       time.Now,
		publisher: events.NoopPublisher{},
	}
	for _, opt := range opts {
		opt(&s)
	}
	if remote == nil {
		remote = persistence.Offline{}
	}
	table := cfg.Table
	if table == "" {
		table = cfg.Domain.Prefix()
	}
	return &Store[T]{
		domain:    cfg.Domain,
		table:     table,
		local:     local,
		remote:    remote,
		logger:    s.logger.With().Str("domain", cfg.Domain.String()).Logger(),
		now:       s.now,
		publisher: s.publisher,
		tracer:    observability.Tracer("userstate/entity"),
	}
}

// Domain returns the domain the store serves.
func (s *Store[T]) Domain() keys.Domain {
	return s.domain
}

// Now returns the store clock's current time in UTC.
func (s *Store[T]) Now() time.Time {
	return s.now().UTC()
}

func (s *Store[T]) start(ctx context.Context, op string, id identity.Identity) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "entity."+op, trace.WithAttributes(
		attribute.String("domain", s.domain.String()),
		attribute.String("identity.kind", string(id.Kind)),
	))
}

// Get returns the record for id. Read failures are reported as absent.
func (s *Store[T]) Get(ctx context.Context, id identity.Identity) (Record[T], bool) {
	rec, src := s.GetWithSource(ctx, id)
	return rec, src.found()
}

// GetWithSource is Get that also reports which path produced the answer.
func (s *Store[T]) GetWithSource(ctx context.Context, id identity.Identity) (Record[T], Source) {
	ctx, span := s.start(ctx, "Get", id)
	defer span.End()

	rec, src := s.read(ctx, id)
	span.SetAttributes(attribute.String("source", string(src)))
	observability.RecordRead(s.domain.String(), string(src))
	return rec, src
}

func (s *Store[T]) read(ctx context.Context, id identity.Identity) (Record[T], Source) {
	if !id.IsDurable() {
		if rec, ok := s.readLocal(ctx, id); ok {
			return rec, SourceLocal
		}
		return Record[T]{}, SourceNone
	}

	rec, found, err := s.fetchRemote(ctx, id)
	switch {
	case err == nil && found:
		return rec, SourceRemote
	case err == nil:
		return Record[T]{}, SourceNone
	case errors.Is(err, persistence.ErrRemoteFailure):
		observability.RecordFallback(s.domain.String())
		s.logger.Warn().Err(err).Str("user_id", id.ID).Msg("remote fetch failed, reading local copy")
		if rec, ok := s.readLocal(ctx, id); ok {
			return rec, SourceFallback
		}
		return Record[T]{}, SourceUnavailable
	default:
		s.logger.Warn().Err(err).Str("user_id", id.ID).Msg("remote record unreadable")
		return Record[T]{}, SourceNone
	}
}

func (s *Store[T]) fetchRemote(ctx context.Context, id identity.Identity) (Record[T], bool, error) {
	doc, found, err := s.remote.Fetch(ctx, s.table, id.ID)
	if err != nil || !found {
		return Record[T]{}, false, err
	}
	rec, err := fromDocument[T](doc)
	if err != nil {
		observability.RecordDecodeFailure(s.domain.String())
		return Record[T]{}, false, &codec.DecodingError{Type: fmt.Sprintf("%T", rec.Fields), Err: err}
	}
	if rec.UserID == "" {
		rec.UserID = id.ID
	}
	return rec, true, nil
}

func (s *Store[T]) readLocal(ctx context.Context, id identity.Identity) (Record[T], bool) {
	raw, ok, err := s.local.Get(ctx, string(keys.Build(s.domain, id.ID)))
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", id.ID).Msg("local read failed")
		return Record[T]{}, false
	}
	if !ok {
		return Record[T]{}, false
	}
	rec, err := codec.Decode[Record[T]](raw)
	if err != nil {
		observability.RecordDecodeFailure(s.domain.String())
		s.logger.Warn().Err(err).Str("user_id", id.ID).Msg("local record corrupt, treating as absent")
		return Record[T]{}, false
	}
	return rec, true
}

// Ensure returns the existing record or writes defaults when none exists.
// When the remote backend cannot say whether a record exists, nothing is
// written and ErrUnavailable is returned.
func (s *Store[T]) Ensure(ctx context.Context, id identity.Identity, defaults T) (Record[T], error) {
	rec, src := s.GetWithSource(ctx, id)
	switch {
	case src.found():
		return rec, nil
	case src == SourceUnavailable:
		return Record[T]{}, fmt.Errorf("ensure %s for %s: %w", s.domain, id, ErrUnavailable)
	}
	return s.Save(ctx, id, defaults, nil)
}

// Save replaces the record for id, stamping UpdatedAt with the store clock.
// It returns once the authoritative backend acknowledged the write.
func (s *Store[T]) Save(ctx context.Context, id identity.Identity, fields T, completedAt *time.Time) (Record[T], error) {
	ctx, span := s.start(ctx, "Save", id)
	defer span.End()

	now := s.Now()
	rec := Record[T]{
		UserID:      id.ID,
		Fields:      fields,
		CompletedAt: completedAt,
		UpdatedAt:   &now,
	}
	if err := s.write(ctx, id, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return Record[T]{}, err
	}
	observability.RecordWrite(now)
	s.publish(ctx, id, "save", now)
	return rec, nil
}

func (s *Store[T]) write(ctx context.Context, id identity.Identity, rec Record[T]) error {
	if id.IsDurable() {
		doc, err := rec.document()
		if err != nil {
			return &codec.EncodingError{Type: fmt.Sprintf("%T", rec.Fields), Err: err}
		}
		if err := s.remote.Upsert(ctx, s.table, doc); err != nil {
			observability.RecordWriteFailure(s.domain.String(), "remote")
			return fmt.Errorf("save %s for %s: %w", s.domain, id, err)
		}
		s.shadow(ctx, id, rec)
		return nil
	}

	text, err := codec.Encode(rec)
	if err != nil {
		return err
	}
	if err := s.local.Set(ctx, string(keys.Build(s.domain, id.ID)), text); err != nil {
		observability.RecordWriteFailure(s.domain.String(), "local")
		return fmt.Errorf("save %s for %s: %w", s.domain, id, err)
	}
	return nil
}

// shadow keeps the local fallback copy of a durable record current. A failed
// shadow write leaves an older copy behind and is not reported to the caller.
func (s *Store[T]) shadow(ctx context.Context, id identity.Identity, rec Record[T]) {
	text, err := codec.Encode(rec)
	if err == nil {
		err = s.local.Set(ctx, string(keys.Build(s.domain, id.ID)), text)
	}
	if err != nil {
		observability.RecordWriteFailure(s.domain.String(), "shadow")
		s.logger.Warn().Err(err).Str("user_id", id.ID).Msg("local shadow write failed")
	}
}

// Mutate loads the current record (or defaults), applies fn and saves the result.
// It refuses with ErrUnavailable unless the read came from the authoritative
// backend. Concurrent mutations of the same record are last-writer-wins.
func (s *Store[T]) Mutate(ctx context.Context, id identity.Identity, defaults T, fn func(*Record[T]) error) (Record[T], error) {
	rec, src := s.GetWithSource(ctx, id)
	if !src.authoritative() {
		return Record[T]{}, fmt.Errorf("mutate %s for %s: %w", s.domain, id, ErrUnavailable)
	}
	if !src.found() {
		rec = Record[T]{UserID: id.ID, Fields: defaults}
	}
	if err := fn(&rec); err != nil {
		return Record[T]{}, err
	}
	return s.Save(ctx, id, rec.Fields, rec.CompletedAt)
}

// Rehome moves from's local record to to, writing through to's backend and
// then removing the old local key. It reports false when from has no record.
func (s *Store[T]) Rehome(ctx context.Context, from, to identity.Identity) (Record[T], bool, error) {
	ctx, span := s.start(ctx, "Rehome", to)
	defer span.End()

	rec, ok := s.readLocal(ctx, from)
	if !ok {
		return Record[T]{}, false, nil
	}
	saved, err := s.Save(ctx, to, rec.Fields, rec.CompletedAt)
	if err != nil {
		return Record[T]{}, true, err
	}
	if from.ID != to.ID || to.IsDurable() {
		if err := s.local.Remove(ctx, string(keys.Build(s.domain, from.ID))); err != nil {
			s.logger.Warn().Err(err).Str("user_id", from.ID).Msg("rehomed record left behind locally")
		}
	}
	return saved, true, nil
}

// Announce publishes a StateChanged event for a change the store observed but did not write.
func (s *Store[T]) Announce(ctx context.Context, id identity.Identity, source string) {
	s.publish(ctx, id, source, s.Now())
}

func (s *Store[T]) publish(ctx context.Context, id identity.Identity, source string, at time.Time) {
	err := s.publisher.Publish(ctx, events.StateChanged{
		Domain:     s.domain.String(),
		UserID:     id.ID,
		Kind:       string(id.Kind),
		Source:     source,
		OccurredAt: at,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", id.ID).Msg("publish state change failed")
	}
}
