package chunker

import (
	"strings"

	"github.com/sandy-sachin7/contextd/internal/parser"
)

// ChunkPDF produces one chunk per page, using the page spans the Parser
// recorded. A page whose text is entirely blank yields no chunk, per the
// "zero non-trivial bytes, zero chunks" boundary behavior.
func ChunkPDF(text string, spans []parser.PageSpan) []Chunk {
	var chunks []Chunk
	for _, sp := range spans {
		if sp.Start < 0 || sp.End > len(text) || sp.Start > sp.End {
			continue
		}
		body := strings.TrimSpace(text[sp.Start:sp.End])
		if body == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Ordinal: len(chunks),
			Start:   sp.Start,
			End:     sp.End,
			Kind:    KindPDFPage,
			Page:    sp.Page,
			Text:    body,
		})
	}
	return chunks
}
