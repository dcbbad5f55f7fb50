package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/userstate/internal/persistence"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := Open(path, WithNoSync(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	_, ok, err := store.Get(ctx, "tutorial_status_u1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, "tutorial_status_u1", `{"needs_tutorial":true}`))
	value, ok, err := store.Get(ctx, "tutorial_status_u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"needs_tutorial":true}`, value)

	require.NoError(t, store.Remove(ctx, "tutorial_status_u1"))
	_, ok, err = store.Get(ctx, "tutorial_status_u1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreBatchAndClear(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	require.NoError(t, store.MultiSet(ctx, map[string]string{"a": "1", "b": "2", "c": "3"}))

	got, err := store.MultiGet(ctx, "a", "c", "missing")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "1", "c": "3"}, got)

	keys, err := store.ListKeys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, keys)

	require.NoError(t, store.MultiRemove(ctx, "a", "b"))
	keys, err = store.ListKeys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, keys)

	require.NoError(t, store.Clear(ctx))
	keys, err = store.ListKeys(ctx)
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	store, path := openTestStore(t)
	require.NoError(t, store.Set(ctx, "@userstate:onboarding_completed", "true"))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, ok, err := reopened.Get(ctx, "@userstate:onboarding_completed")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "true", value)
}

func TestCanceledContextIsIOFailure(t *testing.T) {
	store, _ := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, store.Set(ctx, "k", "v"), persistence.ErrIOFailure)
}
