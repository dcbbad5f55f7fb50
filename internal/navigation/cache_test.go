package navigation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/userstate/internal/keys"
	"example.com/userstate/internal/lifecycle"
	"example.com/userstate/internal/persistence/memory"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCache(t *testing.T) (*Cache, *memory.Store, *clock) {
	t.Helper()
	local := memory.NewStore()
	clk := &clock{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	return NewCache(local, WithClock(clk.Now)), local, clk
}

func markerExists(t *testing.T, local *memory.Store) bool {
	t.Helper()
	_, ok, err := local.Get(context.Background(), string(keys.NavigationState))
	require.NoError(t, err)
	return ok
}

func TestReadIfFreshWithinTTL(t *testing.T) {
	cache, _, clk := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, "Budget"))
	clk.advance(29 * time.Second)

	screen, ok := cache.ReadIfFresh(ctx)
	require.True(t, ok)
	require.Equal(t, "Budget", screen)
}

func TestReadIfFreshAfterTTLDeletesMarker(t *testing.T) {
	cache, local, clk := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, "Budget"))
	clk.advance(30 * time.Second)

	state, _ := cache.State(ctx)
	require.Equal(t, Expired, state)

	_, ok := cache.ReadIfFresh(ctx)
	require.False(t, ok)
	require.False(t, markerExists(t, local))

	state, _ = cache.State(ctx)
	require.Equal(t, Empty, state)
}

func TestFutureMarkerIsExpired(t *testing.T) {
	cache, local, clk := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, "Budget"))
	clk.advance(-5 * time.Second)

	state, _ := cache.State(ctx)
	require.Equal(t, Expired, state)

	_, ok := cache.ReadIfFresh(ctx)
	require.False(t, ok)
	require.False(t, markerExists(t, local))
}

func TestSaveOverwritesExpiredMarker(t *testing.T) {
	cache, _, clk := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, "Home"))
	clk.advance(time.Minute)
	require.NoError(t, cache.Save(ctx, "Settings"))

	state, marker := cache.State(ctx)
	require.Equal(t, Fresh, state)
	require.Equal(t, "Settings", marker.LastScreen)
}

func TestShortBackgroundPreservesMarker(t *testing.T) {
	cache, local, clk := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, "Transactions"))
	clk.advance(time.Second)
	cache.OnLifecycle(ctx, lifecycle.Background)
	clk.advance(10 * time.Second)
	cache.OnLifecycle(ctx, lifecycle.Active)

	require.True(t, markerExists(t, local))
	screen, ok := cache.ReadIfFresh(ctx)
	require.True(t, ok)
	require.Equal(t, "Transactions", screen)
}

func TestLongBackgroundClearsMarkerBeforeRead(t *testing.T) {
	cache, local, clk := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, "Transactions"))
	cache.OnLifecycle(ctx, lifecycle.Inactive)
	clk.advance(5 * time.Second)
	cache.OnLifecycle(ctx, lifecycle.Background)
	clk.advance(30 * time.Second)
	cache.OnLifecycle(ctx, lifecycle.Active)

	require.False(t, markerExists(t, local))
}

func TestCorruptMarkerIsRemoved(t *testing.T) {
	cache, local, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, local.Set(ctx, string(keys.NavigationState), "garbage"))

	state, _ := cache.State(ctx)
	require.Equal(t, Empty, state)

	_, ok := cache.ReadIfFresh(ctx)
	require.False(t, ok)
	require.False(t, markerExists(t, local))
}

func TestMarkerJSONUsesEpochMillis(t *testing.T) {
	cache, local, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, cache.Save(ctx, "Home"))

	raw, ok, err := local.Get(ctx, string(keys.NavigationState))
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"lastScreen":"Home","timestamp":1717228800000}`, raw)
}

func TestReadFailureIsAbsent(t *testing.T) {
	cache, local, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, cache.Save(ctx, "Home"))
	local.FailWith(errors.New("locked"))

	_, ok := cache.ReadIfFresh(ctx)
	require.False(t, ok)
}
