// Package tutorial tracks whether a user still needs the first-run tutorial.
package tutorial

import (
	"context"

	"example.com/userstate/internal/entity"
	"example.com/userstate/internal/identity"
	"example.com/userstate/internal/keys"
	"example.com/userstate/internal/persistence"
)

// Table is the remote table holding tutorial records.
const Table = "tutorial_status"

// Status is the tutorial state of one user.
type Status struct {
	NeedsTutorial     bool `json:"needs_tutorial"`
	TutorialCompleted bool `json:"tutorial_completed"`
	Skipped           bool `json:"skipped,omitempty"`
}

// Defaults is the status of a user who has never seen the tutorial.
func Defaults() Status {
	return Status{NeedsTutorial: true}
}

// Record is a stored tutorial status.
type Record = entity.Record[Status]

// Service reads and updates tutorial status.
type Service struct {
	store *entity.Store[Status]
}

// NewService constructs a Service over the given backends.
func NewService(local persistence.Local, remote persistence.Remote, opts ...entity.Option) *Service {
	return &Service{
		store: entity.New[Status](entity.Config{Domain: keys.TutorialStatus, Table: Table}, local, remote, opts...),
	}
}

// Store exposes the underlying entity store.
func (s *Service) Store() *entity.Store[Status] {
	return s.store
}

// Get returns the stored status, if any.
func (s *Service) Get(ctx context.Context, id identity.Identity) (Record, bool) {
	return s.store.Get(ctx, id)
}

// Ensure creates the default status on first use.
func (s *Service) Ensure(ctx context.Context, id identity.Identity) (Record, error) {
	return s.store.Ensure(ctx, id, Defaults())
}

// MarkCompleted records that the user finished the tutorial.
func (s *Service) MarkCompleted(ctx context.Context, id identity.Identity) (Record, error) {
	return s.finish(ctx, id, false)
}

// MarkSkipped records that the user dismissed the tutorial without finishing it.
func (s *Service) MarkSkipped(ctx context.Context, id identity.Identity) (Record, error) {
	return s.finish(ctx, id, true)
}

func (s *Service) finish(ctx context.Context, id identity.Identity, skipped bool) (Record, error) {
	return s.store.Mutate(ctx, id, Defaults(), func(rec *Record) error {
		now := s.store.Now()
		rec.Fields.NeedsTutorial = false
		rec.Fields.TutorialCompleted = true
		rec.Fields.Skipped = skipped
		rec.CompletedAt = &now
		return nil
	})
}

// Reset puts the user back into the tutorial.
func (s *Service) Reset(ctx context.Context, id identity.Identity) (Record, error) {
	return s.store.Mutate(ctx, id, Defaults(), func(rec *Record) error {
		rec.Fields = Defaults()
		rec.CompletedAt = nil
		return nil
	})
}

