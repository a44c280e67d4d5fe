package chunker

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
	c "github.com/tree-sitter/tree-sitter-c/bindings/go"
	java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	ruby "github.com/tree-sitter/tree-sitter-ruby/bindings/go"
	rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// container describes a language's class/impl/module-like node: the field
// that holds its member list (or "" when members live one level down inside
// a wrapper node, as Ruby's body_statement), and which member node kinds are
// themselves chunked as symbols.
type container struct {
	bodyField   string
	wrapperKind string // e.g. "body_statement"; checked when bodyField == ""
	members     map[string]string
}

// langSpec is a table-driven generalization of the per-language extraction
// pattern: walk the tree, chunk any node whose kind is in top, and for any
// node whose kind is in containers chunk its declared members (methods)
// instead. Containers are checked first, so a container node is never
// chunked itself even when its kind is also listed in top.
type langSpec struct {
	language   func() *sitter.Language
	top        map[string]string
	containers map[string]container
}

var codeLangByExt = map[string]*langSpec{
	".rs": {
		language: func() *sitter.Language { return sitter.NewLanguage(rust.Language()) },
		top: map[string]string{
			"struct_item": "struct", "enum_item": "enum", "trait_item": "trait",
			"function_item": "function", "const_item": "const", "static_item": "static",
		},
		containers: map[string]container{
			"impl_item": {bodyField: "body", members: map[string]string{"function_item": "method"}},
		},
	},
	".py": {
		language: func() *sitter.Language { return sitter.NewLanguage(python.Language()) },
		top:      map[string]string{"class_definition": "class", "function_definition": "function"},
		containers: map[string]container{
			"class_definition": {bodyField: "body", members: map[string]string{"function_definition": "method"}},
		},
	},
	".ts": {
		language: func() *sitter.Language { return sitter.NewLanguage(typescript.LanguageTypescript()) },
		top: map[string]string{
			"class_declaration": "class", "interface_declaration": "interface", "function_declaration": "function",
		},
		containers: map[string]container{
			"class_declaration": {bodyField: "body", members: map[string]string{"method_definition": "method"}},
		},
	},
	".java": {
		language: func() *sitter.Language { return sitter.NewLanguage(java.Language()) },
		top:      map[string]string{"class_declaration": "class", "interface_declaration": "interface", "enum_declaration": "enum"},
		containers: map[string]container{
			"class_declaration":     {bodyField: "body", members: map[string]string{"method_declaration": "method"}},
			"interface_declaration": {bodyField: "body", members: map[string]string{"method_declaration": "method"}},
		},
	},
	".php": {
		language: func() *sitter.Language { return sitter.NewLanguage(php.LanguagePHP()) },
		top: map[string]string{
			"class_declaration": "class", "interface_declaration": "interface",
			"trait_declaration": "trait", "function_definition": "function",
		},
		containers: map[string]container{
			"class_declaration": {bodyField: "body", members: map[string]string{"method_declaration": "method"}},
		},
	},
	".rb": {
		language: func() *sitter.Language { return sitter.NewLanguage(ruby.Language()) },
		top:      map[string]string{"class": "class", "module": "module", "method": "method"},
		containers: map[string]container{
			"class":  {wrapperKind: "body_statement", members: map[string]string{"method": "method"}},
			"module": {wrapperKind: "body_statement", members: map[string]string{"method": "method"}},
		},
	},
	".c": {
		language: func() *sitter.Language { return sitter.NewLanguage(c.Language()) },
		top:      map[string]string{"function_definition": "function", "struct_specifier": "struct", "enum_specifier": "enum"},
	},
	".h": {
		language: func() *sitter.Language { return sitter.NewLanguage(c.Language()) },
		top:      map[string]string{"function_definition": "function", "struct_specifier": "struct", "enum_specifier": "enum"},
	},
}

func init() {
	codeLangByExt[".tsx"] = codeLangByExt[".ts"]
	codeLangByExt[".js"] = codeLangByExt[".ts"]
	codeLangByExt[".jsx"] = codeLangByExt[".ts"]
}

// ChunkCode runs a parser-generator AST walk to identify top-level symbols
// (functions, structs/classes, impl/trait blocks, methods) per §4.4's code
// strategy. Non-blank code before, between or after symbols becomes an
// unsymboled chunk, one per gap. A nil return (with no error) means the
// extension has no registered grammar or the tree holds no symbols; callers
// fall back to paragraph chunking. A non-nil error means the source failed
// to parse and callers must also fall back to paragraph chunking.
func ChunkCode(ext string, source []byte) ([]Chunk, error) {
	spec, ok := codeLangByExt[ext]
	if !ok {
		return nil, nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(spec.language())

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, errUnparseable{ext: ext}
	}
	defer tree.Close()

	root := tree.RootNode()

	var symbolNodes []*sitter.Node
	collect(root, spec, &symbolNodes)

	if len(symbolNodes) == 0 {
		return nil, nil
	}

	var chunks []Chunk
	prefaceEnd := 0
	for _, n := range symbolNodes {
		start := int(n.StartByte())
		end := int(n.EndByte())
		if start > prefaceEnd {
			if body := trimToNonBlank(source[prefaceEnd:start]); body != "" {
				chunks = append(chunks, Chunk{
					Ordinal: len(chunks),
					Start:   prefaceEnd,
					End:     start,
					Kind:    KindCodeSymbol,
					Symbol:  "",
					Text:    body,
				})
			}
		}
		chunks = append(chunks, Chunk{
			Ordinal: len(chunks),
			Start:   start,
			End:     end,
			Kind:    KindCodeSymbol,
			Symbol:  symbolLabel(n, source, spec),
			Text:    string(source[start:end]),
		})
		if end > prefaceEnd {
			prefaceEnd = end
		}
	}
	if prefaceEnd < len(source) {
		if body := trimToNonBlank(source[prefaceEnd:]); body != "" {
			chunks = append(chunks, Chunk{
				Ordinal: len(chunks),
				Start:   prefaceEnd,
				End:     len(source),
				Kind:    KindCodeSymbol,
				Text:    body,
			})
		}
	}

	return chunks, nil
}

// collect walks the tree collecting, in source order, every node that is
// either a top-level symbol or a container's member; it does not descend
// into a matched node's subtree so methods inside an impl/class are not also
// reported as nested top-level symbols.
func collect(node *sitter.Node, spec *langSpec, out *[]*sitter.Node) {
	if node == nil {
		return
	}
	kind := node.Kind()

	if c, ok := spec.containers[kind]; ok {
		for _, m := range containerMembers(node, c) {
			*out = append(*out, m)
		}
		return
	}
	if _, ok := spec.top[kind]; ok {
		*out = append(*out, node)
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		collect(node.Child(uint(i)), spec, out)
	}
}

func containerMembers(node *sitter.Node, c container) []*sitter.Node {
	var body *sitter.Node
	if c.bodyField != "" {
		body = node.ChildByFieldName(c.bodyField)
	} else {
		body = node
	}
	if body == nil {
		return nil
	}

	var out []*sitter.Node
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(uint(i))
		if c.wrapperKind != "" && child.Kind() == c.wrapperKind {
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(uint(j))
				if _, ok := c.members[gc.Kind()]; ok {
					out = append(out, gc)
				}
			}
			continue
		}
		if _, ok := c.members[child.Kind()]; ok {
			out = append(out, child)
		}
	}
	return out
}

func symbolLabel(n *sitter.Node, source []byte, spec *langSpec) string {
	kind := spec.top[n.Kind()]
	if kind == "" {
		for _, c := range spec.containers {
			if label, ok := c.members[n.Kind()]; ok {
				kind = label
				break
			}
		}
	}
	var name string
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		name = string(source[nameNode.StartByte():nameNode.EndByte()])
	}
	switch {
	case kind != "" && name != "":
		return kind + " " + name
	case name != "":
		return name
	default:
		return kind
	}
}

func trimToNonBlank(b []byte) string {
	s := string(b)
	trimmed := trimSpace(s)
	if trimmed == "" {
		return ""
	}
	return s
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpaceByte(s[start]) {
		start++
	}
	for end > start && isSpaceByte(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

type errUnparseable struct{ ext string }

func (e errUnparseable) Error() string { return "chunker: failed to parse " + e.ext + " source" }
