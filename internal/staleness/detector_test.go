package staleness

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/userstate/internal/lifecycle"
)

type settingsView struct {
	Enabled bool   `json:"enabled"`
	Time    string `json:"time"`
}

type source struct {
	mu    sync.Mutex
	value settingsView
	found bool
	err   error
}

func (s *source) set(v settingsView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	s.found = true
}

func (s *source) fetch(context.Context) (settingsView, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.found, s.err
}

func TestOnActivePublishesExternalChangeOnce(t *testing.T) {
	src := &source{}
	var pushed []settingsView
	d := New(src.fetch, func(v settingsView) { pushed = append(pushed, v) })
	ctx := context.Background()

	d.Observe(settingsView{Enabled: true, Time: "09:00"})
	src.set(settingsView{Enabled: true, Time: "09:00"})

	changed, err := d.OnActive(ctx)
	require.NoError(t, err)
	require.False(t, changed)

	src.set(settingsView{Enabled: false, Time: "21:00"})
	changed, err = d.OnActive(ctx)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = d.OnActive(ctx)
	require.NoError(t, err)
	require.False(t, changed)

	require.Equal(t, []settingsView{{Enabled: false, Time: "21:00"}}, pushed)
}

func TestOnActiveIgnoresAbsentAndErrors(t *testing.T) {
	src := &source{}
	var pushes int
	d := New(src.fetch, func(settingsView) { pushes++ })

	changed, err := d.OnActive(context.Background())
	require.NoError(t, err)
	require.False(t, changed)

	src.set(settingsView{Enabled: true})
	src.err = errors.New("offline")
	_, err = d.OnActive(context.Background())
	require.Error(t, err)
	require.Zero(t, pushes)
}

func TestOnActiveSkipsWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var pushes int
	d := New(func(context.Context) (settingsView, bool, error) {
		close(entered)
		<-release
		return settingsView{Enabled: true}, true, nil
	}, func(settingsView) { pushes++ })

	done := make(chan bool)
	go func() {
		changed, _ := d.OnActive(context.Background())
		done <- changed
	}()
	<-entered

	changed, err := d.OnActive(context.Background())
	require.NoError(t, err)
	require.False(t, changed)

	close(release)
	require.True(t, <-done)
	require.Equal(t, 1, pushes)
}

func TestOnLifecycleReactsOnlyToActive(t *testing.T) {
	src := &source{}
	src.set(settingsView{Time: "07:30"})
	var pushes int
	d := New(src.fetch, func(settingsView) { pushes++ }, WithName("test"))

	d.OnLifecycle(context.Background(), lifecycle.Background)
	require.Zero(t, pushes)

	d.OnLifecycle(context.Background(), lifecycle.Active)
	require.Equal(t, 1, pushes)
}
