package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T, cfg Config) (*Watcher, string) {
	t.Helper()
	root := t.TempDir()
	w, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, w.AddRoot(context.Background(), root))

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	t.Cleanup(cancel)

	return w, root
}

// TestDebounceCollapsesBurst grounds spec.md §8.3: five rapid writes within
// 100ms collapse to at most two logical events once the window elapses.
func TestDebounceCollapsesBurst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DebounceMs = 80
	w, root := newTestWatcher(t, cfg)

	path := filepath.Join(root, "churn.txt")
	require.NoError(t, os.WriteFile(path, []byte("0"), 0o644))

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte('0' + i)}, 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	var count int
	timeout := time.After(1 * time.Second)
loop:
	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				break loop
			}
			if ev.Path == path {
				count++
			}
		case <-timeout:
			break loop
		}
	}

	assert.LessOrEqual(t, count, 2, "burst of writes should collapse to at most two logical events")
}

func TestAddRoot_UnreadableRootReturnsWatchSetupError(t *testing.T) {
	cfg := DefaultConfig()
	w, err := New(cfg, nil)
	require.NoError(t, err)

	err = w.AddRoot(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}

func TestRecordBurstWidensWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DebounceMs = 50
	cfg.BurstThreshold = 2
	cfg.MaxDebounceMs = 400
	w, err := New(cfg, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		w.mu.Lock()
		w.recordBurst()
		w.mu.Unlock()
	}

	w.mu.Lock()
	window := w.windowMs
	w.mu.Unlock()

	assert.Greater(t, window, cfg.DebounceMs, "window should widen once burst threshold is exceeded")
}
