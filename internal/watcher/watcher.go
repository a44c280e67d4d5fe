// Package watcher implements C1: a recursive, debounced filesystem watcher.
// Raw fsnotify events pass through an adaptive debouncer before reaching the
// pipeline, collapsing bursts into single logical events and widening the
// debounce window under load to shed it.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	ctxerrors "github.com/sandy-sachin7/contextd/internal/errors"
)

// KnownFileStater lets the Watcher consult the Store's File records during
// the initial scan without importing the store package directly.
type KnownFileStater interface {
	// Stat returns the last observed mtime/size for path, and whether a
	// File record exists for it at all.
	Stat(path string) (mtime time.Time, size int64, known bool)
}

// Config controls debounce behavior, per SPEC_FULL.md §4.1.
type Config struct {
	DebounceMs       int
	BurstThreshold   int // events per window before the window doubles
	MaxDebounceMs    int
	QueueSize        int
	MaxDirDepth      int
	MaxWatchedDirs   int
}

// DefaultConfig matches spec.md's stated defaults.
func DefaultConfig() Config {
	return Config{
		DebounceMs:     200,
		BurstThreshold: 50,
		MaxDebounceMs:  2000,
		QueueSize:      1024,
		MaxDirDepth:    64,
		MaxWatchedDirs: 100000,
	}
}

// Watcher recursively watches a set of root paths and emits debounced Events.
type Watcher struct {
	cfg    Config
	fsw    *fsnotify.Watcher
	events chan Event
	stater KnownFileStater

	mu          sync.Mutex
	pending     map[string]*pendingEvent
	windowMs    int // current effective debounce window, widened under burst
	burstCount  int
	burstWindow time.Time

	watchedDirs map[string]bool
	stopped     bool
}

type pendingEvent struct {
	timer *time.Timer
	op    Op
	isDir bool
}

// New creates a Watcher. stater may be nil, in which case the initial scan
// emits a Modified event for every discovered file unconditionally.
func New(cfg Config, stater KnownFileStater) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		cfg:         cfg,
		fsw:         fsw,
		events:      make(chan Event, cfg.QueueSize),
		stater:      stater,
		pending:     make(map[string]*pendingEvent),
		windowMs:    cfg.DebounceMs,
		watchedDirs: make(map[string]bool),
	}, nil
}

// Events returns the channel of debounced, logical events. Closed on Stop.
func (w *Watcher) Events() <-chan Event { return w.events }

// AddRoot registers root for recursive watching and performs the initial
// scan. Returns a WatchSetupError (non-fatal to the caller) if root cannot be
// read; the caller should log and continue with other roots.
func (w *Watcher) AddRoot(ctx context.Context, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return &ctxerrors.WatchSetupError{Root: root, Err: err}
	}
	if !info.IsDir() {
		return &ctxerrors.WatchSetupError{Root: root, Err: os.ErrInvalid}
	}

	if err := w.addRecursive(root); err != nil {
		return &ctxerrors.WatchSetupError{Root: root, Err: err}
	}

	w.initialScan(ctx, root)
	return nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			slog.Warn("watcher: skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		w.mu.Lock()
		already := w.watchedDirs[path]
		w.mu.Unlock()
		if already {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			slog.Warn("watcher: failed to watch directory", "path", path, "error", err)
			return nil
		}
		w.mu.Lock()
		w.watchedDirs[path] = true
		w.mu.Unlock()
		return nil
	})
}

// initialScan walks root and emits a synthetic Modified event for every file
// whose (mtime, size) differs from the stater's record (or that the stater
// doesn't know about at all), per SPEC_FULL.md §4.1.
func (w *Watcher) initialScan(ctx context.Context, root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		if w.stater != nil {
			if mtime, size, known := w.stater.Stat(path); known {
				if mtime.Unix() == info.ModTime().Unix() && size == info.Size() {
					return nil
				}
			}
		}

		w.emit(path, Modified, false)
		return nil
	})
}

// Run pumps raw fsnotify events into the debouncer until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleRaw(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher: fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) handleRaw(ev fsnotify.Event) {
	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		if isDir {
			_ = w.addRecursive(ev.Name)
		}
		w.emit(ev.Name, Created, isDir)
	case ev.Op&fsnotify.Write != 0:
		w.emit(ev.Name, Modified, isDir)
	case ev.Op&fsnotify.Remove != 0:
		w.emit(ev.Name, Deleted, isDir)
	case ev.Op&fsnotify.Rename != 0:
		// fsnotify reports a rename as the old path leaving; the new path
		// arrives separately as a Create. Emit the delete half here.
		w.emit(ev.Name, Deleted, isDir)
	}
}

// emit schedules (or re-schedules, coalescing) a debounced event for path.
func (w *Watcher) emit(path string, op Op, isDir bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.recordBurst()
	window := time.Duration(w.windowMs) * time.Millisecond

	if p, exists := w.pending[path]; exists {
		p.op = op
		p.isDir = isDir
		p.timer.Reset(window)
		return
	}

	p := &pendingEvent{op: op, isDir: isDir}
	p.timer = time.AfterFunc(window, func() {
		w.fire(path)
	})
	w.pending[path] = p
}

// recordBurst tracks the event rate and widens/contracts the debounce window
// per SPEC_FULL.md §4.1's adaptive-debounce contract. Must be called with
// w.mu held.
func (w *Watcher) recordBurst() {
	now := time.Now()
	if w.burstWindow.IsZero() || now.Sub(w.burstWindow) > time.Duration(w.cfg.DebounceMs)*time.Millisecond {
		// window elapsed: decide whether to contract, then start a fresh one
		if w.burstCount <= w.cfg.BurstThreshold && w.windowMs > w.cfg.DebounceMs {
			w.windowMs = w.cfg.DebounceMs
		}
		w.burstWindow = now
		w.burstCount = 0
	}
	w.burstCount++
	if w.burstCount > w.cfg.BurstThreshold {
		doubled := w.windowMs * 2
		if doubled > w.cfg.MaxDebounceMs {
			doubled = w.cfg.MaxDebounceMs
		}
		w.windowMs = doubled
	}
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.pending[path]
	if !ok || w.stopped {
		return
	}
	delete(w.pending, path)

	// The stopped check and the send happen under the same lock Stop takes
	// before closing w.events, so Stop can never close the channel between
	// this goroutine's check and its send.
	ev := Event{Path: path, Op: p.op, IsDir: p.isDir, Timestamp: time.Now()}
	select {
	case w.events <- ev:
	default:
		// Backpressure: the pipeline is behind. Re-coalesce rather than
		// block the notifier goroutine, per SPEC_FULL.md §4.1.
		w.pending[path] = p
		p.timer.Reset(time.Duration(w.cfg.DebounceMs) * time.Millisecond)
	}
}

// Stop releases the underlying fsnotify watcher and closes the event channel.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	for _, p := range w.pending {
		p.timer.Stop()
	}
	w.pending = make(map[string]*pendingEvent)
	w.mu.Unlock()

	_ = w.fsw.Close()
	close(w.events)
}
