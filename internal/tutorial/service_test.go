package tutorial

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/userstate/internal/entity"
	"example.com/userstate/internal/identity"
	"example.com/userstate/internal/persistence"
	"example.com/userstate/internal/persistence/memory"
)

type countingRemote struct {
	docs  map[string]persistence.Document
	calls int
	err   error
}

func (r *countingRemote) Fetch(_ context.Context, _ string, userID string) (persistence.Document, bool, error) {
	r.calls++
	if r.err != nil {
		return persistence.Document{}, false, r.err
	}
	doc, ok := r.docs[userID]
	return doc, ok, nil
}

func (r *countingRemote) Upsert(_ context.Context, _ string, doc persistence.Document) error {
	r.calls++
	if r.err != nil {
		return r.err
	}
	r.docs[doc.UserID] = doc
	return nil
}

var now = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

func newService(remote persistence.Remote) (*Service, *memory.Store) {
	local := memory.NewStore()
	return NewService(local, remote, entity.WithClock(func() time.Time { return now })), local
}

func TestEphemeralScenarioStaysLocal(t *testing.T) {
	ctx := context.Background()
	remote := &countingRemote{docs: map[string]persistence.Document{}}
	svc, local := newService(remote)
	id := identity.Parse("abc-not-a-uuid")

	rec, err := svc.Ensure(ctx, id)
	require.NoError(t, err)
	require.True(t, rec.Fields.NeedsTutorial)
	require.False(t, rec.Fields.TutorialCompleted)

	_, err = svc.MarkCompleted(ctx, id)
	require.NoError(t, err)

	raw, ok, err := local.Get(ctx, "tutorial_status_abc-not-a-uuid")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{
		"user_id": "abc-not-a-uuid",
		"needs_tutorial": false,
		"tutorial_completed": true,
		"completed_at": "2024-02-01T10:00:00Z",
		"updated_at": "2024-02-01T10:00:00Z"
	}`, raw)
	require.Zero(t, remote.calls)
}

func TestMarkCompletedThenGet(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(&countingRemote{docs: map[string]persistence.Document{}})
	id := identity.Parse("5c1e7a2b-3d4f-4a6b-8c9d-0e1f2a3b4c5d")

	_, err := svc.Ensure(ctx, id)
	require.NoError(t, err)
	_, err = svc.MarkCompleted(ctx, id)
	require.NoError(t, err)

	rec, ok := svc.Get(ctx, id)
	require.True(t, ok)
	require.True(t, rec.Fields.TutorialCompleted)
	require.False(t, rec.Fields.NeedsTutorial)
	require.NotNil(t, rec.CompletedAt)
	require.True(t, now.Equal(*rec.CompletedAt))
}

func TestMarkSkippedAndReset(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(&countingRemote{docs: map[string]persistence.Document{}})
	id := identity.Parse("guest")

	rec, err := svc.MarkSkipped(ctx, id)
	require.NoError(t, err)
	require.True(t, rec.Fields.Skipped)
	require.True(t, rec.Fields.TutorialCompleted)
	require.NotNil(t, rec.CompletedAt)

	rec, err = svc.Reset(ctx, id)
	require.NoError(t, err)
	require.Equal(t, Defaults(), rec.Fields)
	require.Nil(t, rec.CompletedAt)
}

func TestMarkCompletedSurfacesRemoteFailure(t *testing.T) {
	remote := &countingRemote{err: persistence.RemoteFailure("upsert", errors.New("unauthorized"))}
	svc, _ := newService(remote)

	_, err := svc.MarkCompleted(context.Background(), identity.Parse("5c1e7a2b-3d4f-4a6b-8c9d-0e1f2a3b4c5d"))
	require.ErrorIs(t, err, persistence.ErrRemoteFailure)
}
