package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandy-sachin7/contextd/internal/chunker"
	"github.com/sandy-sachin7/contextd/internal/filter"
	"github.com/sandy-sachin7/contextd/internal/parser"
	"github.com/sandy-sachin7/contextd/internal/store"
	"github.com/sandy-sachin7/contextd/internal/watcher"
)

type fakeFilter struct {
	ignore bool
	reason string
}

func (f *fakeFilter) ShouldIgnore(path string, isDir bool, size int64, peek []byte) filter.Decision {
	return filter.Decision{Ignore: f.ignore, Reason: f.reason}
}

type fakeParser struct {
	text string
	err  error
}

func (f *fakeParser) Parse(ctx context.Context, path string) (parser.ExtractedText, error) {
	if f.err != nil {
		return parser.ExtractedText{}, f.err
	}
	return parser.ExtractedText{Text: f.text}, nil
}

type fakeChunker struct {
	chunks []chunker.Chunk
}

func (f *fakeChunker) Chunk(path string, extracted parser.ExtractedText) []chunker.Chunk {
	if f.chunks != nil {
		return f.chunks
	}
	return []chunker.Chunk{{Ordinal: 0, Text: extracted.Text, Kind: chunker.KindParagraph}}
}

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}
func (f *fakeEmbedder) ModelName() string { return "fake-model" }
func (f *fakeEmbedder) Dimensions() int   { return 4 }

type fakeStore struct {
	files  map[string]store.FileRecord
	chunks map[string][]store.Chunk
	deletes []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: map[string]store.FileRecord{}, chunks: map[string][]store.Chunk{}}
}

func (s *fakeStore) GetFile(ctx context.Context, path string) (store.FileRecord, bool, error) {
	f, ok := s.files[path]
	return f, ok, nil
}
func (s *fakeStore) UpsertFile(ctx context.Context, f store.FileRecord) error {
	s.files[f.Path] = f
	return nil
}
func (s *fakeStore) ReplaceChunks(ctx context.Context, path string, chunks []store.Chunk) error {
	s.chunks[path] = chunks
	return nil
}
func (s *fakeStore) DeleteFile(ctx context.Context, path string) error {
	delete(s.files, path)
	delete(s.chunks, path)
	s.deletes = append(s.deletes, path)
	return nil
}

type fakeCache struct {
	invalidations int
}

func (c *fakeCache) InvalidateCache() { c.invalidations++ }

func newTestPipeline(t *testing.T, deps Dependencies) *Pipeline {
	t.Helper()
	return New(deps, Config{Workers: 1, MaxFileSize: 1024 * 1024})
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProcessEvent_NewFile_IndexesAndInvalidatesCache(t *testing.T) {
	path := writeTemp(t, "auth.md", "authentication subsystem")
	st := newFakeStore()
	cache := &fakeCache{}
	embedder := &fakeEmbedder{}

	p := newTestPipeline(t, Dependencies{
		Filter:   &fakeFilter{},
		Parser:   &fakeParser{text: "authentication subsystem"},
		Chunker:  &fakeChunker{},
		Embedder: embedder,
		Store:    st,
		Cache:    cache,
	})

	err := p.processEvent(context.Background(), watcher.Event{Path: path, Op: watcher.Created})
	require.NoError(t, err)

	f, ok := st.files[path]
	require.True(t, ok)
	assert.Equal(t, store.FileStateIndexed, f.State)
	require.Len(t, st.chunks[path], 1)
	assert.Equal(t, 1, cache.invalidations)
	assert.Equal(t, 1, embedder.calls)
}

func TestProcessEvent_UnchangedHash_SkipsEmbedding(t *testing.T) {
	path := writeTemp(t, "stable.md", "unchanged content")
	st := newFakeStore()
	embedder := &fakeEmbedder{}

	deps := Dependencies{
		Filter:   &fakeFilter{},
		Parser:   &fakeParser{text: "unchanged content"},
		Chunker:  &fakeChunker{},
		Embedder: embedder,
		Store:    st,
		Cache:    &fakeCache{},
	}
	p := newTestPipeline(t, deps)

	require.NoError(t, p.processEvent(context.Background(), watcher.Event{Path: path, Op: watcher.Created}))
	require.NoError(t, p.processEvent(context.Background(), watcher.Event{Path: path, Op: watcher.Modified}))

	assert.Equal(t, 1, embedder.calls, "a second event with an unchanged content hash must not re-embed")
}

func TestProcessEvent_IgnoredFile_Skipped(t *testing.T) {
	path := writeTemp(t, "secret.txt", "shh")
	st := newFakeStore()

	p := newTestPipeline(t, Dependencies{
		Filter:   &fakeFilter{ignore: true, reason: ".gitignore"},
		Parser:   &fakeParser{},
		Chunker:  &fakeChunker{},
		Embedder: &fakeEmbedder{},
		Store:    st,
		Cache:    &fakeCache{},
	})

	require.NoError(t, p.processEvent(context.Background(), watcher.Event{Path: path, Op: watcher.Created}))
	_, ok := st.files[path]
	assert.False(t, ok, "an ignored file must never be written to the store")
}

func TestProcessEvent_PreviouslyIndexedNowIgnored_DeletesStaleChunks(t *testing.T) {
	path := writeTemp(t, "now-ignored.txt", "x")
	st := newFakeStore()
	st.files[path] = store.FileRecord{Path: path, State: store.FileStateIndexed}
	st.chunks[path] = []store.Chunk{{ID: path + "#0"}}

	p := newTestPipeline(t, Dependencies{
		Filter:   &fakeFilter{ignore: true},
		Parser:   &fakeParser{},
		Chunker:  &fakeChunker{},
		Embedder: &fakeEmbedder{},
		Store:    st,
		Cache:    &fakeCache{},
	})

	require.NoError(t, p.processEvent(context.Background(), watcher.Event{Path: path, Op: watcher.Modified}))
	assert.Contains(t, st.deletes, path)
}

func TestProcessEvent_OversizeFile_MarkedFailed(t *testing.T) {
	path := writeTemp(t, "huge.txt", "0123456789")
	st := newFakeStore()

	p := newTestPipeline(t, Dependencies{
		Filter:   &fakeFilter{},
		Parser:   &fakeParser{},
		Chunker:  &fakeChunker{},
		Embedder: &fakeEmbedder{},
		Store:    st,
		Cache:    &fakeCache{},
	})
	p.cfg.MaxFileSize = 1 // every file here exceeds this

	require.NoError(t, p.processEvent(context.Background(), watcher.Event{Path: path, Op: watcher.Created}))
	assert.Equal(t, store.FileStateFailed, st.files[path].State)
}

func TestProcessEvent_ParseFailure_MarksFailed(t *testing.T) {
	path := writeTemp(t, "bad.pdf", "not really a pdf")
	st := newFakeStore()

	p := newTestPipeline(t, Dependencies{
		Filter:   &fakeFilter{},
		Parser:   &fakeParser{err: assertErr("boom")},
		Chunker:  &fakeChunker{},
		Embedder: &fakeEmbedder{},
		Store:    st,
		Cache:    &fakeCache{},
	})

	require.NoError(t, p.processEvent(context.Background(), watcher.Event{Path: path, Op: watcher.Created}))
	assert.Equal(t, store.FileStateFailed, st.files[path].State)
	_, hasChunks := st.chunks[path]
	assert.False(t, hasChunks)
}

func TestProcessEvent_Delete_RemovesFromStore(t *testing.T) {
	st := newFakeStore()
	st.files["gone.md"] = store.FileRecord{Path: "gone.md", State: store.FileStateIndexed}
	cache := &fakeCache{}

	p := newTestPipeline(t, Dependencies{
		Filter:   &fakeFilter{},
		Parser:   &fakeParser{},
		Chunker:  &fakeChunker{},
		Embedder: &fakeEmbedder{},
		Store:    st,
		Cache:    cache,
	})

	require.NoError(t, p.processEvent(context.Background(), watcher.Event{Path: "gone.md", Op: watcher.Deleted}))
	_, ok := st.files["gone.md"]
	assert.False(t, ok)
	assert.Equal(t, 1, cache.invalidations)
}

func TestProcessEvent_DirectoryEvent_Skipped(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(t, Dependencies{
		Filter: &fakeFilter{}, Parser: &fakeParser{}, Chunker: &fakeChunker{},
		Embedder: &fakeEmbedder{}, Store: st, Cache: &fakeCache{},
	})
	require.NoError(t, p.processEvent(context.Background(), watcher.Event{Path: "dir", Op: watcher.Created, IsDir: true}))
	assert.Empty(t, st.files)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
