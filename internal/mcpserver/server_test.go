package mcpserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sandy-sachin7/contextd/internal/store"
)

func TestNew_RegistersWithoutError(t *testing.T) {
	srv := New(&fakeSearcher{}, &fakeStats{stats: store.Stats{}}, Config{ModelType: "all-minilm-l6-v2", ModelDim: 384})
	assert.NotNil(t, srv)
}

func TestServe_ReturnsOnContextCancel(t *testing.T) {
	srv := New(&fakeSearcher{}, &fakeStats{}, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := srv.Serve(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
