package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandy-sachin7/contextd/internal/watcher"
)

func TestFlightMap_SecondEventCoalescesWhileFirstRuns(t *testing.T) {
	fm := newFlightMap()

	start, ev := fm.acquire(watcher.Event{Path: "a.md", Op: watcher.Modified})
	require.True(t, start)
	assert.Equal(t, "a.md", ev.Path)

	start2, _ := fm.acquire(watcher.Event{Path: "a.md", Op: watcher.Modified})
	assert.False(t, start2, "a path already in flight must coalesce, not start a second run")

	assert.Equal(t, 1, fm.inFlightCount())
}

func TestFlightMap_ReleaseWithNoCoalescedEventReturnsToIdle(t *testing.T) {
	fm := newFlightMap()
	fm.acquire(watcher.Event{Path: "a.md"})

	rerun, _ := fm.release("a.md")
	assert.False(t, rerun)
	assert.Equal(t, 0, fm.inFlightCount())
}

func TestFlightMap_ReleaseWithCoalescedEventTriggersRerun(t *testing.T) {
	fm := newFlightMap()
	fm.acquire(watcher.Event{Path: "a.md", Op: watcher.Modified})
	fm.acquire(watcher.Event{Path: "a.md", Op: watcher.Deleted})

	rerun, next := fm.release("a.md")
	require.True(t, rerun)
	assert.Equal(t, watcher.Deleted, next.Op, "the coalesced event's latest parameters must win")

	// The re-run itself is a fresh in-flight period; releasing it with no
	// further coalesced event returns to idle.
	rerun2, _ := fm.release("a.md")
	assert.False(t, rerun2)
}

func TestFlightMap_DifferentPathsRunIndependently(t *testing.T) {
	fm := newFlightMap()
	start1, _ := fm.acquire(watcher.Event{Path: "a.md"})
	start2, _ := fm.acquire(watcher.Event{Path: "b.md"})
	assert.True(t, start1)
	assert.True(t, start2)
	assert.Equal(t, 2, fm.inFlightCount())
}
