package chunker

import (
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
)

// ChunkGoSource extracts top-level func/type/const/var/var-block declarations
// as code-symbol chunks via go/ast, since no tree-sitter grammar for Go is
// wired in; this mirrors ChunkCode's preface-plus-symbols shape for the one
// language the standard library itself can parse.
func ChunkGoSource(source []byte) ([]Chunk, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", source, parser.ParseComments)
	if err != nil {
		return nil, err
	}

	type decl struct {
		start, end int
		symbol     string
	}
	var decls []decl
	offset := func(p token.Pos) int { return fset.Position(p).Offset }

	for _, d := range file.Decls {
		switch n := d.(type) {
		case *ast.FuncDecl:
			name := n.Name.Name
			if n.Recv != nil && len(n.Recv.List) > 0 {
				name = "method " + name
			} else {
				name = "function " + name
			}
			decls = append(decls, decl{offset(n.Pos()), offset(n.End()), name})
		case *ast.GenDecl:
			kind := n.Tok.String()
			var names []string
			isType := false
			for _, spec := range n.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					names = append(names, s.Name.Name)
					isType = true
				case *ast.ValueSpec:
					for _, name := range s.Names {
						names = append(names, name.Name)
					}
				}
			}
			if len(names) == 0 {
				continue
			}
			label := kind
			if isType {
				label = "type"
			}
			for _, name := range names {
				label += " " + name
			}
			decls = append(decls, decl{offset(n.Pos()), offset(n.End()), label})
		}
	}

	sort.Slice(decls, func(i, j int) bool { return decls[i].start < decls[j].start })

	var chunks []Chunk
	prefaceEnd := 0
	lastEnd := 0
	for _, d := range decls {
		if d.start < lastEnd {
			continue // grouped ValueSpec shares one GenDecl span; skip duplicate
		}
		if d.start > prefaceEnd {
			if body := string(source[prefaceEnd:d.start]); trimSpace(body) != "" {
				chunks = append(chunks, Chunk{Ordinal: len(chunks), Start: prefaceEnd, End: d.start, Kind: KindCodeSymbol, Text: body})
			}
		}
		chunks = append(chunks, Chunk{Ordinal: len(chunks), Start: d.start, End: d.end, Kind: KindCodeSymbol, Symbol: d.symbol, Text: string(source[d.start:d.end])})
		prefaceEnd = d.end
		lastEnd = d.end
	}
	if prefaceEnd < len(source) {
		if body := string(source[prefaceEnd:]); trimSpace(body) != "" {
			chunks = append(chunks, Chunk{Ordinal: len(chunks), Start: prefaceEnd, End: len(source), Kind: KindCodeSymbol, Text: body})
		}
	}

	return chunks, nil
}
