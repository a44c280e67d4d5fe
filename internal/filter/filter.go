package filter

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// defaultIgnorePatterns are the built-in default ignore rules from
// SPEC_FULL.md §4.2: directory names and name patterns never worth indexing
// regardless of project-specific ignore files.
var defaultIgnorePatterns = []string{
	".git",
	"node_modules",
	"target",
	"dist",
	"build",
	"__pycache__",
	".venv",
	"*.egg-info",
}

var compiledDefaultIgnores = compileDefaultIgnores(defaultIgnorePatterns)

func compileDefaultIgnores(patterns []string) []glob.Glob {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, glob.MustCompile(p))
	}
	return out
}

const (
	// defaultMaxFileSize is the built-in size cap (§4.2); files above this
	// are ignored regardless of any ignore-file rule.
	defaultMaxFileSize = 10 * 1024 * 1024

	// binaryProbeBytes is how much of the file head the NUL-byte heuristic
	// inspects.
	binaryProbeBytes = 4096
)

// Filter applies the ignore-precedence chain to watcher events: built-in
// defaults, then the nearest ancestor .gitignore, then the nearest ancestor
// .contextignore (each overriding the one before it, negations included).
// It is pure with respect to its loaded rule set: the same (path, rules)
// always yields the same decision.
type Filter struct {
	root        string
	maxFileSize int64

	mu         sync.RWMutex
	gitignores map[string]*patternSet // directory -> compiled .gitignore
	ctxignores map[string]*patternSet // directory -> compiled .contextignore
}

// New creates a Filter rooted at root, the directory ignore-file ascent
// stops at.
func New(root string, maxFileSize int64) *Filter {
	if maxFileSize <= 0 {
		maxFileSize = defaultMaxFileSize
	}
	return &Filter{
		root:        filepath.Clean(root),
		maxFileSize: maxFileSize,
		gitignores:  make(map[string]*patternSet),
		ctxignores:  make(map[string]*patternSet),
	}
}

// Reload re-parses the ignore file at path (a .gitignore or .contextignore),
// called by the pipeline whenever the Watcher reports a change to one.
func (f *Filter) Reload(path string) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	set := newPatternSet()
	if err := set.loadFile(path); err != nil {
		if os.IsNotExist(err) {
			// The ignore file was deleted; drop its rules.
			f.mu.Lock()
			switch base {
			case ".gitignore":
				delete(f.gitignores, dir)
			case ".contextignore":
				delete(f.ctxignores, dir)
			}
			f.mu.Unlock()
			return nil
		}
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch base {
	case ".gitignore":
		f.gitignores[dir] = set
	case ".contextignore":
		f.ctxignores[dir] = set
	}
	return nil
}

// Decision is the result of evaluating a path against every ignore source.
type Decision struct {
	Ignore bool
	Reason string
}

// ShouldIgnore decides whether a file should be indexed. size may be 0 and
// peek nil if the caller only has a path (e.g. a delete event); the size and
// binary checks then never reject the path.
func (f *Filter) ShouldIgnore(path string, isDir bool, size int64, peek []byte) Decision {
	rel, err := filepath.Rel(f.root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	for _, part := range strings.Split(rel, "/") {
		for i, g := range compiledDefaultIgnores {
			if g.Match(part) {
				return Decision{Ignore: true, Reason: "default-ignored: " + defaultIgnorePatterns[i]}
			}
		}
	}

	if !isDir {
		if size > f.maxFileSize {
			return Decision{Ignore: true, Reason: "exceeds size cap"}
		}
		if looksBinary(peek) {
			return Decision{Ignore: true, Reason: "binary content heuristic"}
		}
	}

	// Ascend from the file's directory to root, consulting .gitignore then
	// .contextignore at each level; the nearest file that contains a rule
	// wins, and .contextignore (consulted second) overrides .gitignore.
	gitVerdict, gitMatched := f.ascend(f.gitignores, filepath.Dir(path), path, isDir)
	ctxVerdict, ctxMatched := f.ascend(f.ctxignores, filepath.Dir(path), path, isDir)

	switch {
	case ctxMatched:
		return Decision{Ignore: ctxVerdict, Reason: ".contextignore"}
	case gitMatched:
		return Decision{Ignore: gitVerdict, Reason: ".gitignore"}
	default:
		return Decision{Ignore: false}
	}
}

// ascend walks from dir up to f.root looking for the nearest ignore file of
// the given kind that has a rule matching path.
func (f *Filter) ascend(sets map[string]*patternSet, dir, path string, isDir bool) (ignore, matched bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for {
		if set, ok := sets[dir]; ok && !set.empty() {
			rel, err := filepath.Rel(dir, path)
			if err == nil {
				if m, ign := set.match(rel, isDir); m {
					return ign, true
				}
			}
		}
		if dir == f.root || dir == "." || dir == string(filepath.Separator) {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return false, false
}

// looksBinary implements the first-4KB NUL-byte binary heuristic from
// SPEC_FULL.md §4.2.
func looksBinary(peek []byte) bool {
	if len(peek) > binaryProbeBytes {
		peek = peek[:binaryProbeBytes]
	}
	for _, b := range peek {
		if b == 0 {
			return true
		}
	}
	return false
}
