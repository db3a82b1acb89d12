package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMapperEvent(t *testing.T) {
	tests := []struct {
		event fsnotify.Event
		want  bool
	}{
		{fsnotify.Event{Name: "m/users.yaml", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "m/users.YML", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "m/users.yaml", Op: fsnotify.Remove}, true},
		{fsnotify.Event{Name: "m/users.yaml", Op: fsnotify.Chmod}, false},
		{fsnotify.Event{Name: "m/notes.md", Op: fsnotify.Write}, false},
		{fsnotify.Event{Name: "m/.users.yaml.swp", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsMapperEvent(tt.event), tt.event.String())
	}
}

func TestWatcherRunsCallbackOnChange(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w, err := NewWatcher(dir, func() error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.yaml"), []byte("namespace: users\n"), 0o644))
	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatcherReportsCallbackErrors(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), func() error { return errors.New("invalid mapper") })
	require.NoError(t, err)
	var got atomic.Value
	w.OnError(func(err error) { got.Store(err.Error()) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	assert.Eventually(t, func() bool { return got.Load() == "invalid mapper" }, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestNewWatcherMissingDir(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing"), func() error { return nil })
	assert.Error(t, err)
}
