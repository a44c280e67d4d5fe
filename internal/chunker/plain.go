package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var blankLineSplit = regexp.MustCompile(`\n[ \t]*\n+`)

type span struct {
	start, end int
	text       string
}

// paragraphs splits text on blank-line boundaries, returning each non-empty
// paragraph with its byte offsets in the original text.
func paragraphs(text string) []span {
	var out []span
	pos := 0
	locs := blankLineSplit.FindAllStringIndex(text, -1)
	start := 0
	for _, loc := range locs {
		chunk := text[start:loc[0]]
		if trimmed := strings.TrimSpace(chunk); trimmed != "" {
			s := start + strings.Index(chunk, trimmed)
			out = append(out, span{start: s, end: s + len(trimmed), text: trimmed})
		}
		start = loc[1]
		pos = loc[1]
	}
	_ = pos
	tail := text[start:]
	if trimmed := strings.TrimSpace(tail); trimmed != "" {
		s := start + strings.Index(tail, trimmed)
		out = append(out, span{start: s, end: s + len(trimmed), text: trimmed})
	}
	return out
}

// ChunkPlainText splits text on blank-line paragraph boundaries and merges
// consecutive paragraphs until a chunk reaches maxChunkSize characters, with
// overlap characters of each chunk's tail repeated at the head of the next,
// per §4.4's plain-text strategy.
func ChunkPlainText(text string, maxChunkSize, overlap int) []Chunk {
	paras := paragraphs(text)
	if len(paras) == 0 {
		return nil
	}

	var chunks []Chunk
	var b strings.Builder
	curStart := paras[0].start
	curEnd := paras[0].start
	carryOverlap := ""

	flush := func() {
		if b.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Ordinal: len(chunks),
			Start:   curStart,
			End:     curEnd,
			Kind:    KindParagraph,
			Text:    b.String(),
		})
		tail := b.String()
		if overlap <= 0 {
			carryOverlap = ""
		} else if r := []rune(tail); len(r) > overlap {
			carryOverlap = string(r[len(r)-overlap:])
		} else {
			carryOverlap = tail
		}
		b.Reset()
	}

	for i, p := range paras {
		candidate := p.text
		if b.Len() == 0 {
			curStart = p.start
			if carryOverlap != "" && i > 0 {
				b.WriteString(carryOverlap)
				b.WriteString("\n\n")
			}
		}
		projected := utf8.RuneCountInString(b.String()) + utf8.RuneCountInString(candidate)
		if b.Len() > len(carryOverlap) && projected > maxChunkSize {
			flush()
			curStart = p.start
			if carryOverlap != "" {
				b.WriteString(carryOverlap)
				b.WriteString("\n\n")
			}
		} else if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(candidate)
		curEnd = p.end
	}
	flush()

	return chunks
}
