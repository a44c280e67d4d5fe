package embedder

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu        sync.Mutex
	dim       int
	calls     int32
	concurrent int32
	maxSeen   int32
}

func (f *fakeRunner) embedBatch(texts []string) ([][]float32, error) {
	cur := atomic.AddInt32(&f.concurrent, 1)
	defer atomic.AddInt32(&f.concurrent, -1)
	for {
		max := atomic.LoadInt32(&f.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxSeen, max, cur) {
			break
		}
	}
	atomic.AddInt32(&f.calls, 1)
	time.Sleep(5 * time.Millisecond)

	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
		out[i][0] = 1
	}
	return out, nil
}

func (f *fakeRunner) close() error { return nil }

func TestEmbedOne_ReturnsVector(t *testing.T) {
	fr := &fakeRunner{dim: 8}
	e := newWithRunner(Config{Dimensions: 8, QueueSize: 4}, fr)
	defer e.Close()

	v, err := e.EmbedOne(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, v, 8)
}

// TestExclusiveSession grounds §4.5's "guards the ONNX session with exclusive
// access; concurrent callers serialize" by asserting the fake runner never
// observes more than one in-flight call despite concurrent callers.
func TestExclusiveSession(t *testing.T) {
	fr := &fakeRunner{dim: 4}
	e := newWithRunner(Config{Dimensions: 4, QueueSize: 16}, fr)
	defer e.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.EmbedOne(context.Background(), "x")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fr.maxSeen))
	assert.Equal(t, int32(10), atomic.LoadInt32(&fr.calls))
}

func TestEmbedBatch_ContextCancelledWhileQueueFull(t *testing.T) {
	fr := &fakeRunner{dim: 4}
	// Unbuffered queue built directly (bypassing New's default sizing) so a
	// send only succeeds while the consumer is actively receiving.
	e := &onnxEmbedder{
		cfg:   Config{Dimensions: 4},
		sess:  fr,
		queue: make(chan request),
		done:  make(chan struct{}),
	}
	// No consumer goroutine running: any send on e.queue blocks forever,
	// so a cancelled context must win the select deterministically.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.EmbedBatch(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalize_ProducesUnitVector(t *testing.T) {
	v := []float32{3, 4, 0}
	normalize(v)
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}
