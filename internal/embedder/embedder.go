package embedder

import (
	"context"
	"fmt"
)

// request is one unit of work fed through the bounded queue; exactly one
// goroutine (run) ever touches the underlying ONNX session, giving the
// exclusive-access guarantee without a mutex.
type request struct {
	texts []string
	resp  chan result
}

type result struct {
	vectors [][]float32
	err     error
}

// batchRunner is the seam between the queue and the actual inference call,
// satisfied by *session; tests substitute a fake to exercise the queue and
// normalization without a real ONNX model on disk.
type batchRunner interface {
	embedBatch(texts []string) ([][]float32, error)
	close() error
}

// onnxEmbedder is the daemon's Embedder: one ONNX session fed by a bounded
// channel, per §4.5. Model load failure is fatal to the daemon — New returns
// the error for the caller to treat as such.
type onnxEmbedder struct {
	cfg     Config
	sess    batchRunner
	modelID string
	queue   chan request
	done    chan struct{}
}

// New loads the model and tokenizer from cfg.ModelPath and starts the single
// consumer goroutine that owns the ONNX session.
func New(cfg Config) (Embedder, error) {
	cfg = cfg.withDefaults()

	sess, err := newSession(cfg.ModelPath, cfg.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("embedder: load model %q: %w", cfg.ModelPath, err)
	}

	return newWithRunner(cfg, sess), nil
}

func newWithRunner(cfg Config, sess batchRunner) Embedder {
	cfg = cfg.withDefaults()
	e := &onnxEmbedder{
		cfg:     cfg,
		sess:    sess,
		modelID: cfg.ModelType,
		queue:   make(chan request, cfg.QueueSize),
		done:    make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *onnxEmbedder) run() {
	defer close(e.done)
	for req := range e.queue {
		vecs, err := e.sess.embedBatch(req.texts)
		req.resp <- result{vectors: vecs, err: err}
	}
}

func (e *onnxEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return vecs[0], nil
}

func (e *onnxEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp := make(chan result, 1)
	select {
	case e.queue <- request{texts: texts, resp: resp}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-resp:
		return r.vectors, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *onnxEmbedder) Dimensions() int { return e.cfg.Dimensions }
func (e *onnxEmbedder) ModelName() string { return e.modelID }

func (e *onnxEmbedder) Close() error {
	close(e.queue)
	<-e.done
	return e.sess.close()
}
