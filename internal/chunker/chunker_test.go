package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandy-sachin7/contextd/internal/parser"
)

func TestChunkMarkdown_HeadingPath(t *testing.T) {
	text := "# Title\nintro\n\n## Section A\nbody a\n\n### Sub A.1\nbody a1\n\n## Section B\nbody b\n"
	chunks := ChunkMarkdown(text)
	require.Len(t, chunks, 4)
	assert.Equal(t, "Title", chunks[0].HeadingPath)
	assert.Equal(t, "Title › Section A", chunks[1].HeadingPath)
	assert.Equal(t, "Title › Section A › Sub A.1", chunks[2].HeadingPath)
	assert.Equal(t, "Title › Section B", chunks[3].HeadingPath)
	assert.Contains(t, chunks[2].Text, "body a1")
}

func TestChunkMarkdown_NoHeadings(t *testing.T) {
	chunks := ChunkMarkdown("just a paragraph of text\nwith no headings at all\n")
	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0].HeadingPath)
}

func TestChunkMarkdown_BlankInputYieldsNoChunks(t *testing.T) {
	assert.Empty(t, ChunkMarkdown("   \n\n  \n"))
}

func TestChunkPDF_PreservesPageOrder(t *testing.T) {
	text := "page one text\npage two text\npage three text\n"
	spans := []parser.PageSpan{
		{Page: 1, Start: 0, End: 14},
		{Page: 2, Start: 14, End: 28},
		{Page: 3, Start: 28, End: len(text)},
	}
	chunks := ChunkPDF(text, spans)
	require.Len(t, chunks, 3)
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 2, chunks[1].Page)
	assert.Equal(t, 3, chunks[2].Page)
}

func TestChunkPDF_BlankPageYieldsNoChunk(t *testing.T) {
	text := "real content"
	spans := []parser.PageSpan{
		{Page: 1, Start: 0, End: len(text)},
		{Page: 2, Start: len(text), End: len(text)},
	}
	chunks := ChunkPDF(text, spans)
	require.Len(t, chunks, 1)
}

func TestChunkPlainText_MergesUnderMaxSize(t *testing.T) {
	text := "first paragraph\n\nsecond paragraph\n\nthird paragraph"
	chunks := ChunkPlainText(text, 512, 50)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "first paragraph")
	assert.Contains(t, chunks[0].Text, "third paragraph")
}

func TestChunkPlainText_SplitsAndOverlaps(t *testing.T) {
	p1 := strings.Repeat("a", 300)
	p2 := strings.Repeat("b", 300)
	text := p1 + "\n\n" + p2
	chunks := ChunkPlainText(text, 400, 50)
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasSuffix(chunks[0].Text, p1))
	assert.True(t, strings.HasPrefix(chunks[1].Text, strings.Repeat("a", 50)))
	assert.True(t, strings.HasSuffix(chunks[1].Text, p2))
}

func TestChunkPlainText_EmptyYieldsNoChunks(t *testing.T) {
	assert.Empty(t, ChunkPlainText("   \n\n\t\n", 512, 50))
}

func TestChunkGoSource_ExtractsFunctionsAndTypes(t *testing.T) {
	src := `package demo

import "fmt"

// Greeter greets.
type Greeter struct {
	Name string
}

func (g Greeter) Greet() string {
	return fmt.Sprintf("hello %s", g.Name)
}

func New(name string) Greeter {
	return Greeter{Name: name}
}
`
	chunks, err := ChunkGoSource([]byte(src))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var symbols []string
	for _, c := range chunks {
		if c.Symbol != "" {
			symbols = append(symbols, c.Symbol)
		}
	}
	assert.Contains(t, symbols, "type Greeter")
	assert.Contains(t, symbols, "method Greet")
	assert.Contains(t, symbols, "function New")
}

// TestChunkCoverage_PlainText grounds §4.4's invariant: concatenation of all
// chunk payloads covers every non-trivial byte of the input at least once.
func TestChunkCoverage_PlainText(t *testing.T) {
	text := "alpha beta\n\ngamma delta\n\nepsilon zeta"
	chunks := ChunkPlainText(text, 1024, 0)
	require.Len(t, chunks, 1)
	for _, word := range []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"} {
		assert.Contains(t, chunks[0].Text, word)
	}
}
