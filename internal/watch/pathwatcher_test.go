package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func collectEvents(t *testing.T) (*PathWatcher, <-chan Event) {
	t.Helper()
	events := make(chan Event, 16)
	w, err := New(func(e Event) { events <- e }, 20*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(w.Shutdown)
	return w, events
}

func waitEvent(t *testing.T, events <-chan Event, kind EventKind, path string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Kind == kind && filepath.Clean(e.Path) == filepath.Clean(path) {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v on %s", kind, path)
		}
	}
}

func TestPathWatcherEmitsModifyAfterStabilization(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "asset.yaml")
	require.NoError(t, os.WriteFile(file, []byte("v1"), 0o644))

	w, events := collectEvents(t)
	require.NoError(t, w.AddPath(dir))

	require.NoError(t, os.WriteFile(file, []byte("v2-longer-contents"), 0o644))
	waitEvent(t, events, EventModify, file)
}

func TestPathWatcherEmitsDeleteImmediately(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "asset.yaml")
	require.NoError(t, os.WriteFile(file, []byte("v1"), 0o644))

	w, events := collectEvents(t)
	require.NoError(t, w.AddPath(dir))

	require.NoError(t, os.Remove(file))
	waitEvent(t, events, EventDelete, file)
}

func TestPathWatcherAutoRegistersNewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	w, events := collectEvents(t)
	require.NoError(t, w.AddPath(dir))

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	require.Eventually(t, func() bool { return w.isRegistered(sub) }, 2*time.Second, 10*time.Millisecond)

	file := filepath.Join(sub, "nested.yaml")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o644))
	waitEvent(t, events, EventCreate, file)
}

func TestShutdownReleasesHandleWithinGracePeriod(t *testing.T) {
	w, err := New(func(Event) {}, time.Millisecond)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		w.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return within the expected grace period")
	}
}
