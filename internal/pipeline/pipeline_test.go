package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandy-sachin7/contextd/internal/store"
	"github.com/sandy-sachin7/contextd/internal/watcher"
)

func TestPipeline_Run_ProcessesEventsAcrossWorkers(t *testing.T) {
	paths := []string{
		writeTemp(t, "one.md", "alpha"),
		writeTemp(t, "two.md", "beta"),
		writeTemp(t, "three.md", "gamma"),
	}

	st := newFakeStore()
	cache := &fakeCache{}
	p := New(Dependencies{
		Filter:   &fakeFilter{},
		Parser:   &fakeParser{text: "alpha"},
		Chunker:  &fakeChunker{},
		Embedder: &fakeEmbedder{},
		Store:    st,
		Cache:    cache,
	}, Config{Workers: 2, MaxFileSize: 1024 * 1024})

	events := make(chan watcher.Event, len(paths))
	for _, pth := range paths {
		events <- watcher.Event{Path: pth, Op: watcher.Created}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx, events)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(st.files) == len(paths)
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done

	for _, pth := range paths {
		assert.Equal(t, store.FileStateIndexed, st.files[pth].State)
	}
}

func TestPipeline_Run_StopsOnContextCancelWithNoEvents(t *testing.T) {
	p := New(Dependencies{
		Filter: &fakeFilter{}, Parser: &fakeParser{}, Chunker: &fakeChunker{},
		Embedder: &fakeEmbedder{}, Store: newFakeStore(), Cache: &fakeCache{},
	}, Config{Workers: 2, ShutdownGrace: 100 * time.Millisecond})

	events := make(chan watcher.Event)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		p.Run(ctx, events)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestPipeline_Dispatch_CoalescesRepeatedPathIntoOneFlight(t *testing.T) {
	path := writeTemp(t, "churn.txt", "v1")
	st := newFakeStore()
	embedder := &fakeEmbedder{}

	p := New(Dependencies{
		Filter: &fakeFilter{}, Parser: &fakeParser{text: "v1"}, Chunker: &fakeChunker{},
		Embedder: embedder, Store: st, Cache: &fakeCache{},
	}, Config{Workers: 1})

	// Two rapid events for the same path before the first completes should
	// result in at most one extra run (the coalesced re-check), never two
	// concurrently-started runs, per §5's single-flight contract.
	start1, ev1 := p.flights.acquire(watcher.Event{Path: path, Op: watcher.Created})
	start2, _ := p.flights.acquire(watcher.Event{Path: path, Op: watcher.Modified})
	require.True(t, start1)
	require.False(t, start2)

	require.NoError(t, p.processEvent(context.Background(), ev1))
	rerun, next := p.flights.release(path)
	require.True(t, rerun)
	require.NoError(t, p.processEvent(context.Background(), next))
	rerun2, _ := p.flights.release(path)
	assert.False(t, rerun2)

	assert.Equal(t, store.FileStateIndexed, st.files[path].State)
}
