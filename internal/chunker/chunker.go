package chunker

import (
	"path/filepath"
	"strings"

	"github.com/sandy-sachin7/contextd/internal/config"
	"github.com/sandy-sachin7/contextd/internal/parser"
)

// Chunker splits a Parser's ExtractedText into Chunks, selecting a strategy
// by the file's extension/kind rather than by sniffing content, per §4.4.
type Chunker struct {
	maxChunkSize int
	overlap      int
}

// New builds a Chunker from the chunking section of the daemon config.
func New(cfg config.ChunkingConfig) *Chunker {
	return &Chunker{maxChunkSize: cfg.MaxChunkSize, overlap: cfg.Overlap}
}

// Chunk splits extracted text for path. markdownExt/pdf are recognized by
// extension; everything else with a registered code grammar is chunked by
// AST; any failure, or an extension with no grammar, falls back to
// paragraph chunking, per §4.4's "if AST parsing fails" rule.
func (c *Chunker) Chunk(path string, extracted parser.ExtractedText) []Chunk {
	ext := strings.ToLower(filepath.Ext(path))

	switch {
	case ext == ".md" || ext == ".mdx":
		return ChunkMarkdown(extracted.Text)
	case ext == ".pdf" && len(extracted.PageSpans) > 0:
		return ChunkPDF(extracted.Text, extracted.PageSpans)
	case ext == ".go":
		if chunks, err := ChunkGoSource([]byte(extracted.Text)); err == nil && len(chunks) > 0 {
			return chunks
		}
	default:
		if chunks, err := ChunkCode(ext, []byte(extracted.Text)); err == nil && len(chunks) > 0 {
			return chunks
		}
	}

	return ChunkPlainText(extracted.Text, c.maxChunkSize, c.overlap)
}
