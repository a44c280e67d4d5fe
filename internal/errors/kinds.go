// Package errors defines the error kinds contextd's pipeline and query path
// use to decide what is recoverable, what is logged, and what is fatal.
package errors

import "errors"

// ParseErrorKind distinguishes the ways a Parser invocation can fail.
type ParseErrorKind string

const (
	ParseUnsupported ParseErrorKind = "unsupported"
	ParseTimeout     ParseErrorKind = "timeout"
	ParseExitNonzero ParseErrorKind = "exit_nonzero"
	ParseDecode      ParseErrorKind = "decode"
	ParseOversize    ParseErrorKind = "oversize"
	ParseCircuitOpen ParseErrorKind = "circuit_open"
)

// ParseError is returned by the Parser when a file cannot be turned into
// extracted text. It never crashes the daemon: the caller marks the file
// record failed and leaves prior chunks queryable.
type ParseError struct {
	Kind ParseErrorKind
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "parse " + string(e.Kind) + " (" + e.Path + "): " + e.Err.Error()
	}
	return "parse " + string(e.Kind) + " (" + e.Path + ")"
}

func (e *ParseError) Unwrap() error { return e.Err }

// ChunkingError signals that a structural chunker (code AST, PDF pages)
// failed and the caller should fall back to paragraph chunking.
type ChunkingError struct {
	Path string
	Err  error
}

func (e *ChunkingError) Error() string {
	return "chunking failed for " + e.Path + ": " + e.Err.Error()
}

func (e *ChunkingError) Unwrap() error { return e.Err }

// WatchSetupError is returned when a configured root cannot be watched.
// The caller logs a warning and skips the root rather than aborting.
type WatchSetupError struct {
	Root string
	Err  error
}

func (e *WatchSetupError) Error() string {
	return "cannot watch root " + e.Root + ": " + e.Err.Error()
}

func (e *WatchSetupError) Unwrap() error { return e.Err }

var (
	// ErrStoreBusy indicates the store could not acquire a write lock;
	// callers should retry with jittered backoff up to 3 attempts.
	ErrStoreBusy = errors.New("store busy")

	// ErrStoreCorrupt is fatal: the on-disk store failed an integrity check.
	ErrStoreCorrupt = errors.New("store corrupt")

	// ErrModelLoad is fatal at startup: the ONNX model or tokenizer failed to load.
	ErrModelLoad = errors.New("model load failed")

	// ErrQueryBadRequest maps to HTTP 400.
	ErrQueryBadRequest = errors.New("bad query request")

	// ErrQueryTimeout maps to HTTP 408.
	ErrQueryTimeout = errors.New("query timed out")

	// ErrEmbedOverflow marks a chunk that exceeded the model's max sequence
	// length even after truncation; it is recovered locally (truncate and
	// proceed), never surfaced to the caller.
	ErrEmbedOverflow = errors.New("embed input overflow")
)
