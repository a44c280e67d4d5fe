package parser

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	ctxerrors "github.com/sandy-sachin7/contextd/internal/errors"
)

const (
	defaultPluginTimeout    = 30 * time.Second
	defaultMaxPluginOutput  = 10 * 1024 * 1024
)

// Parser routes an accepted file to a native extractor or an external
// command plugin and returns extracted UTF-8 text.
type Parser struct {
	table          map[string]PluginSpec
	pluginTimeout  time.Duration
	maxOutputBytes int64

	breakersMu sync.Mutex
	breakers   map[string]*ctxerrors.CircuitBreaker
}

// New builds a Parser. extPlugins comes from config's `plugins.<ext>` keys
// and overrides the native dispatch table for those extensions.
func New(extPlugins map[string][]string) *Parser {
	table := defaultPluginTable()
	for ext, argv := range extPlugins {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		table[ext] = PluginSpec{Kind: KindExternal, Argv: argv}
	}
	return &Parser{
		table:          table,
		pluginTimeout:  defaultPluginTimeout,
		maxOutputBytes: defaultMaxPluginOutput,
		breakers:       make(map[string]*ctxerrors.CircuitBreaker),
	}
}

// breakerFor returns the circuit breaker guarding one external plugin
// command, creating it on first use. A thrashing plugin trips its breaker
// and every file routed to it fails fast with ParseCircuitOpen instead of
// spawning a subprocess that is likely to fail again.
func (p *Parser) breakerFor(cmd string) *ctxerrors.CircuitBreaker {
	p.breakersMu.Lock()
	defer p.breakersMu.Unlock()
	cb, ok := p.breakers[cmd]
	if !ok {
		cb = ctxerrors.NewCircuitBreaker(cmd)
		p.breakers[cmd] = cb
	}
	return cb
}

// Parse extracts text from path, dispatching on its extension.
func (p *Parser) Parse(ctx context.Context, path string) (ExtractedText, error) {
	ext := strings.ToLower(filepath.Ext(path))
	spec, ok := p.table[ext]
	if !ok {
		return ExtractedText{}, &ctxerrors.ParseError{Kind: ctxerrors.ParseUnsupported, Path: path}
	}

	switch spec.Kind {
	case KindPlainText, KindCode:
		return p.parsePassthrough(path)
	case KindMarkdown:
		return p.parsePassthrough(path)
	case KindPDF:
		return p.parsePDF(path)
	case KindExternal:
		return p.parseExternal(ctx, path, spec.Argv)
	default:
		return ExtractedText{}, &ctxerrors.ParseError{Kind: ctxerrors.ParseUnsupported, Path: path}
	}
}

// parsePassthrough implements the identity native extractors (plain text,
// markdown, source code): the Chunker does the structural work, not the
// Parser.
func (p *Parser) parsePassthrough(path string) (ExtractedText, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ExtractedText{}, &ctxerrors.ParseError{Kind: ctxerrors.ParseDecode, Path: path, Err: err}
	}
	if !utf8.Valid(data) {
		return ExtractedText{}, &ctxerrors.ParseError{Kind: ctxerrors.ParseDecode, Path: path}
	}
	return ExtractedText{Text: string(data)}, nil
}

// parsePDF extracts page-structured text, recording a PageSpan per page so
// the Chunker can produce one chunk per page.
func (p *Parser) parsePDF(path string) (ExtractedText, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return ExtractedText{}, &ctxerrors.ParseError{Kind: ctxerrors.ParseDecode, Path: path, Err: err}
	}
	defer f.Close()

	var b strings.Builder
	var spans []PageSpan

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		start := b.Len()
		b.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			b.WriteByte('\n')
		}
		spans = append(spans, PageSpan{Page: i, Start: start, End: b.Len()})
	}

	return ExtractedText{Text: b.String(), PageSpans: spans}, nil
}

// parseExternal runs an external command plugin: argv with path appended as
// the final argument, capturing stdout as UTF-8 with a timeout and an output
// size cap, per SPEC_FULL.md §4.3.
func (p *Parser) parseExternal(ctx context.Context, path string, argv []string) (ExtractedText, error) {
	if len(argv) == 0 {
		return ExtractedText{}, &ctxerrors.ParseError{Kind: ctxerrors.ParseUnsupported, Path: path}
	}

	cb := p.breakerFor(argv[0])
	return ctxerrors.CircuitExecuteWithResult(cb,
		func() (ExtractedText, error) { return p.runExternal(ctx, path, argv) },
		func() (ExtractedText, error) {
			return ExtractedText{}, &ctxerrors.ParseError{Kind: ctxerrors.ParseCircuitOpen, Path: path, Err: ctxerrors.ErrCircuitOpen}
		},
	)
}

// runExternal is the actual subprocess invocation the breaker in
// parseExternal guards.
func (p *Parser) runExternal(ctx context.Context, path string, argv []string) (ExtractedText, error) {
	runCtx, cancel := context.WithTimeout(ctx, p.pluginTimeout)
	defer cancel()

	args := append(append([]string{}, argv[1:]...), path)
	cmd := exec.CommandContext(runCtx, argv[0], args...)

	var stdout, stderr bytes.Buffer
	out := &limitedWriter{w: &stdout, max: p.maxOutputBytes}
	cmd.Stdout = out
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return ExtractedText{}, &ctxerrors.ParseError{Kind: ctxerrors.ParseTimeout, Path: path, Err: runCtx.Err()}
	}
	if err != nil {
		return ExtractedText{}, &ctxerrors.ParseError{Kind: ctxerrors.ParseExitNonzero, Path: path, Err: err}
	}
	if out.exceeded {
		return ExtractedText{}, &ctxerrors.ParseError{Kind: ctxerrors.ParseOversize, Path: path}
	}
	if !utf8.Valid(stdout.Bytes()) {
		return ExtractedText{}, &ctxerrors.ParseError{Kind: ctxerrors.ParseDecode, Path: path}
	}

	return ExtractedText{Text: stdout.String()}, nil
}

// limitedWriter caps bytes written before reporting an oversize condition by
// silently truncating; the Parser still surfaces ParseOversize explicitly via
// exceeded.
type limitedWriter struct {
	w        *bytes.Buffer
	max      int64
	written  int64
	exceeded bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.written+int64(len(p)) > lw.max {
		lw.exceeded = true
		remaining := lw.max - lw.written
		if remaining > 0 {
			lw.w.Write(p[:remaining])
			lw.written = lw.max
		}
		return len(p), nil
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	return n, err
}
