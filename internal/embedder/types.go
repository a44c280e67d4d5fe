// Package embedder implements C5: a single ONNX inference session, loaded
// once at daemon start, exposed through an exclusive-access bounded queue.
package embedder

import "context"

// Embedder turns text into L2-normalized embedding vectors.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch is semantically equivalent to calling EmbedOne in order;
	// implementations are free to batch for throughput.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Close() error
}

// Config controls session construction and the bounded work queue.
type Config struct {
	ModelPath  string
	ModelType  string
	Dimensions int
	QueueSize  int // default 256
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	return c
}
