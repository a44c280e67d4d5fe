package chunker

import (
	"regexp"
	"strings"
)

var atxHeading = regexp.MustCompile(`^(#{1,6})[ \t]+(.*?)[ \t]*#*[ \t]*$`)

type headingFrame struct {
	level int
	title string
}

// ChunkMarkdown splits text at ATX headings (levels 1-6). A chunk begins at a
// heading and runs to the next heading line of any level, since a deeper
// heading always starts its own chunk; this is equivalent to extending a
// section to the next heading of equal or higher level with no duplication.
// The heading path ("§A › §A.1") is recorded from the enclosing stack.
func ChunkMarkdown(text string) []Chunk {
	lines := strings.Split(text, "\n")

	type boundary struct {
		lineIdx int
		level   int
		title   string
	}
	var bounds []boundary
	for i, line := range lines {
		if m := atxHeading.FindStringSubmatch(line); m != nil {
			bounds = append(bounds, boundary{lineIdx: i, level: len(m[1]), title: strings.TrimSpace(m[2])})
		}
	}

	lineOffsets := make([]int, len(lines)+1)
	off := 0
	for i, l := range lines {
		lineOffsets[i] = off
		off += len(l) + 1
	}
	lineOffsets[len(lines)] = off

	var chunks []Chunk
	var stack []headingFrame

	emit := func(startLine, endLine int, headingPath string) {
		if startLine >= endLine {
			return
		}
		body := strings.Join(lines[startLine:endLine], "\n")
		if strings.TrimSpace(body) == "" {
			return
		}
		start := lineOffsets[startLine]
		end := lineOffsets[endLine]
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, Chunk{
			Ordinal:     len(chunks),
			Start:       start,
			End:         end,
			Kind:        KindMarkdownSection,
			HeadingPath: headingPath,
			Text:        strings.TrimRight(body, "\n"),
		})
	}

	if len(bounds) == 0 {
		emit(0, len(lines), "")
		return chunks
	}

	if bounds[0].lineIdx > 0 {
		emit(0, bounds[0].lineIdx, "")
	}

	for i, b := range bounds {
		for len(stack) > 0 && stack[len(stack)-1].level >= b.level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, headingFrame{level: b.level, title: b.title})

		end := len(lines)
		if i+1 < len(bounds) {
			end = bounds[i+1].lineIdx
		}

		titles := make([]string, len(stack))
		for j, f := range stack {
			titles[j] = f.title
		}
		emit(b.lineIdx, end, strings.Join(titles, " › "))
	}

	return chunks
}
