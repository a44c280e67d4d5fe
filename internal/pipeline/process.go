package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sandy-sachin7/contextd/internal/store"
	"github.com/sandy-sachin7/contextd/internal/watcher"
)

const peekBytes = 4096

// processEvent drives one logical filesystem event through filter, parse,
// chunk, embed, and store, in that order, per §4's component pipeline.
func (p *Pipeline) processEvent(ctx context.Context, ev watcher.Event) error {
	if ev.IsDir {
		// Directory membership changes surface as per-file events from the
		// Watcher's own recursive add/remove bookkeeping; nothing to do here.
		return nil
	}

	if base := filepath.Base(ev.Path); base == ".gitignore" || base == ".contextignore" {
		if r, ok := p.deps.Filter.(interface{ Reload(string) error }); ok {
			if err := r.Reload(ev.Path); err != nil {
				slog.Warn("pipeline: reloading ignore file", "path", ev.Path, "error", err)
			}
		}
	}

	if ev.Op == watcher.Deleted {
		return p.processDelete(ctx, ev.Path)
	}

	info, err := os.Stat(ev.Path)
	if os.IsNotExist(err) {
		// Lost a race with a deletion between debounce firing and now.
		return p.processDelete(ctx, ev.Path)
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", ev.Path, err)
	}

	peek, err := readPeek(ev.Path)
	if err != nil {
		return fmt.Errorf("peek %s: %w", ev.Path, err)
	}

	decision := p.deps.Filter.ShouldIgnore(ev.Path, false, info.Size(), peek)
	if decision.Ignore {
		// A file that is ignored now but was indexed previously (an ignore
		// rule arriving after the fact) must have its stale chunks removed,
		// or it would keep matching queries forever.
		if _, known, err := p.deps.Store.GetFile(ctx, ev.Path); err == nil && known {
			return p.processDelete(ctx, ev.Path)
		}
		return nil
	}

	if info.Size() > p.cfg.MaxFileSize {
		return p.markFailed(ctx, ev.Path, info, "exceeds size cap")
	}

	extracted, err := p.deps.Parser.Parse(ctx, ev.Path)
	if err != nil {
		return p.markFailed(ctx, ev.Path, info, "parse failed: "+err.Error())
	}

	// §3/§9: the content hash is a digest of the extracted text, not the raw
	// bytes, so reformatting a PDF (or any other lossy-to-plain-text source)
	// without changing its content doesn't trigger re-embedding.
	hash := hashText(extracted.Text)

	if prior, known, err := p.deps.Store.GetFile(ctx, ev.Path); err == nil && known {
		if prior.Hash == hash && prior.State == store.FileStateIndexed {
			// §8's "no redundant work" invariant: content hasn't changed
			// since the last successful index, skip chunk/embed.
			return nil
		}
	}

	chunks := p.deps.Chunker.Chunk(ev.Path, extracted)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	var vectors [][]float32
	if len(texts) > 0 {
		vectors, err = p.deps.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return p.markFailed(ctx, ev.Path, info, "embed failed: "+err.Error())
		}
	}

	storeChunks := make([]store.Chunk, len(chunks))
	for i, c := range chunks {
		var vec []float32
		if i < len(vectors) {
			vec = vectors[i]
		}
		storeChunks[i] = store.Chunk{
			ID:          fmt.Sprintf("%s#%d", ev.Path, c.Ordinal),
			FilePath:    ev.Path,
			Ordinal:     c.Ordinal,
			StartOffset: c.Start,
			EndOffset:   c.End,
			Kind:        c.Kind.String(),
			Symbol:      c.Symbol,
			HeadingPath: c.HeadingPath,
			Page:        c.Page,
			Text:        c.Text,
			Embedding:   vec,
			ModelName:   p.deps.Embedder.ModelName(),
			ModelDim:    p.deps.Embedder.Dimensions(),
		}
	}

	if err := p.deps.Store.ReplaceChunks(ctx, ev.Path, storeChunks); err != nil {
		return fmt.Errorf("replace chunks for %s: %w", ev.Path, err)
	}

	if err := p.deps.Store.UpsertFile(ctx, store.FileRecord{
		Path:    ev.Path,
		Mtime:   info.ModTime().Unix(),
		Size:    info.Size(),
		Hash:    hash,
		FileExt: strings.ToLower(filepath.Ext(ev.Path)),
		State:   store.FileStateIndexed,
	}); err != nil {
		return fmt.Errorf("upsert file %s: %w", ev.Path, err)
	}

	p.deps.Cache.InvalidateCache()
	return nil
}

// markFailed records the file as failed but leaves any prior chunks in
// place and queryable, per §7's disposition for ParseError/ChunkingError/
// oversize files: a failure never removes what was previously indexed.
func (p *Pipeline) markFailed(ctx context.Context, path string, info os.FileInfo, reason string) error {
	slog.Warn("pipeline: marking file failed", "path", path, "reason", reason)
	return p.deps.Store.UpsertFile(ctx, store.FileRecord{
		Path:    path,
		Mtime:   info.ModTime().Unix(),
		Size:    info.Size(),
		FileExt: strings.ToLower(filepath.Ext(path)),
		State:   store.FileStateFailed,
	})
}

func (p *Pipeline) processDelete(ctx context.Context, path string) error {
	if err := p.deps.Store.DeleteFile(ctx, path); err != nil {
		return fmt.Errorf("delete file %s: %w", path, err)
	}
	p.deps.Cache.InvalidateCache()
	return nil
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func readPeek(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, peekBytes)
	n, err := f.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}
