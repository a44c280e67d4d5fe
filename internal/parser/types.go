// Package parser implements C3: routing an accepted file to a native
// extractor or an external command plugin, and returning extracted text.
package parser

// PageSpan marks where one page's text begins and ends within ExtractedText,
// used by the PDF chunking strategy to produce one chunk per page.
type PageSpan struct {
	Page  int
	Start int
	End   int
}

// ExtractedText is the Parser's output and the Chunker's input.
type ExtractedText struct {
	Text      string
	PageSpans []PageSpan // nil unless the file produced page-structured text (PDF)
}

// FileKind is how the plugin table dispatches a file, by extension.
type FileKind int

const (
	KindPlainText FileKind = iota
	KindMarkdown
	KindPDF
	KindCode
	KindExternal
)

// PluginSpec is the tagged union SPEC_FULL.md §9 describes: either a built-in
// variant or an ExternalCommand{argv} variant, never runtime reflection.
type PluginSpec struct {
	Kind FileKind
	Argv []string // only set when Kind == KindExternal
}

var codeExtensions = map[string]bool{
	".go": true, ".rs": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".py": true, ".rb": true, ".c": true, ".h": true, ".java": true, ".php": true,
}

// defaultPluginTable maps well-known extensions to native extractors. Entries
// from config.Plugins (external command argvs) take precedence over these at
// Parser construction time.
func defaultPluginTable() map[string]PluginSpec {
	table := map[string]PluginSpec{
		".txt":  {Kind: KindPlainText},
		".md":   {Kind: KindMarkdown},
		".mdx":  {Kind: KindMarkdown},
		".pdf":  {Kind: KindPDF},
	}
	for ext := range codeExtensions {
		table[ext] = PluginSpec{Kind: KindCode}
	}
	return table
}
