package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ctxerrors "github.com/sandy-sachin7/contextd/internal/errors"
)

func TestParsePlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	p := New(nil)
	out, err := p.Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", out.Text)
}

func TestParseUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 'P', 'N', 'G'}, 0o644))

	p := New(nil)
	_, err := p.Parse(context.Background(), path)
	require.Error(t, err)

	var perr *ctxerrors.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ctxerrors.ParseUnsupported, perr.Kind)
}

// TestExternalPluginFailureIsolated grounds spec.md §8's scenario 5: a failing
// plugin marks its own file failed without affecting other files.
func TestExternalPluginFailureIsolated(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("not a real pdf"), 0o644))

	p := New(map[string][]string{"pdf": {"/bin/false"}})
	_, err := p.Parse(context.Background(), pdfPath)
	require.Error(t, err)

	var perr *ctxerrors.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ctxerrors.ParseExitNonzero, perr.Kind)
}

func TestExternalPluginArgvAppendsPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thing.weird")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	p := New(map[string][]string{"weird": {"/bin/echo", "-n", "converted"}})
	out, err := p.Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "converted "+path, out.Text)
}
