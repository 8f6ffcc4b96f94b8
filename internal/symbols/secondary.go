package symbols

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agusespa/codecrate/internal/ids"
	"github.com/agusespa/codecrate/internal/types"
	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_c "github.com/tree-sitter/tree-sitter-c/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// IndexBackend produces index-only symbols for a secondary language. Capture
// names in its query select the symbol kind.
type IndexBackend struct {
	name       string
	extensions []string
	parser     *sitter.Parser
	language   *sitter.Language
	query      *sitter.Query
}

var symbolKinds = map[string]types.DefinitionKind{
	"function": types.KindSymbolFunction,
	"method":   types.KindSymbolMethod,
	"type":     types.KindSymbolType,
	"class":    types.KindSymbolClass,
}

func newIndexBackend(name string, extensions []string, lang *sitter.Language, queryText string) (*IndexBackend, error) {
	parser := sitter.NewParser()
	if err := parser.SetLanguage(lang); err != nil {
		parser.Close()
		return nil, fmt.Errorf("failed to set language for %s parser: %w", name, err)
	}
	q, qerr := sitter.NewQuery(lang, queryText)
	if qerr != nil {
		parser.Close()
		return nil, fmt.Errorf("failed to create %s query: %v", name, qerr)
	}
	return &IndexBackend{
		name:       name,
		extensions: extensions,
		parser:     parser,
		language:   lang,
		query:      q,
	}, nil
}

func NewGoBackend() (*IndexBackend, error) {
	return newIndexBackend("Go", []string{".go"},
		sitter.NewLanguage(tree_sitter_go.Language()), `
	(function_declaration) @function
	(method_declaration) @method
	(type_spec) @type
	`)
}

func NewJavaBackend() (*IndexBackend, error) {
	return newIndexBackend("Java", []string{".java"},
		sitter.NewLanguage(tree_sitter_java.Language()), `
	(class_declaration) @class
	(interface_declaration) @type
	(enum_declaration) @type
	(method_declaration) @method
	(constructor_declaration) @method
	`)
}

const typeScriptQuery = `
	(function_declaration) @function
	(class_declaration) @class
	(interface_declaration) @type
	(type_alias_declaration) @type
	(enum_declaration) @type
	(method_definition) @method
	`

func NewTypeScriptBackend() (*IndexBackend, error) {
	return newIndexBackend("TypeScript", []string{".ts", ".mts", ".cts"},
		sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()), typeScriptQuery)
}

func NewTSXBackend() (*IndexBackend, error) {
	return newIndexBackend("TSX", []string{".tsx"},
		sitter.NewLanguage(tree_sitter_typescript.LanguageTSX()), typeScriptQuery)
}

func NewCBackend() (*IndexBackend, error) {
	return newIndexBackend("C", []string{".c", ".h"},
		sitter.NewLanguage(tree_sitter_c.Language()), `
	(function_definition) @function
	(struct_specifier) @type
	(union_specifier) @type
	(enum_specifier) @type
	(type_definition) @type
	`)
}

func (ib *IndexBackend) Language() string {
	return ib.name
}

func (ib *IndexBackend) SupportedExtensions() []string {
	return ib.extensions
}

func (ib *IndexBackend) Close() {
	ib.query.Close()
	ib.parser.Close()
}

func (ib *IndexBackend) Extract(relPath string, src []byte) (*Extraction, error) {
	tree := ib.parser.Parse(src, nil)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse %s file %s: tree-sitter returned nil", ib.name, relPath)
	}
	defer tree.Close()

	captureNames := ib.query.CaptureNames()
	qc := sitter.NewQueryCursor()
	defer qc.Close()

	seen := make(map[string]bool)
	var symbols []types.SymbolRef

	matches := qc.Matches(ib.query, tree.RootNode(), src)
	for {
		m := matches.Next()
		if m == nil {
			break
		}
		for _, c := range m.Captures {
			node := c.Node
			if isForwardReference(&node) {
				continue
			}
			name := declaredName(&node, src)
			if name == "" {
				continue
			}

			capture := captureNames[c.Index]
			line := startLine(&node)
			id := ids.LocationID(relPath, capture+":"+name, line)
			if seen[id] {
				continue
			}
			seen[id] = true

			symbols = append(symbols, types.SymbolRef{
				Path:      relPath,
				Name:      name,
				Kind:      symbolKinds[capture],
				ID:        id,
				StartLine: line,
				EndLine:   endLine(&node),
			})
		}
	}

	sort.SliceStable(symbols, func(i, j int) bool {
		if symbols[i].StartLine != symbols[j].StartLine {
			return symbols[i].StartLine < symbols[j].StartLine
		}
		return symbols[i].Name < symbols[j].Name
	})

	return &Extraction{Module: ModuleName(relPath), Symbols: symbols}, nil
}

// isForwardReference skips C aggregate specifiers used as types rather than defined.
func isForwardReference(node *sitter.Node) bool {
	switch node.Kind() {
	case "struct_specifier", "union_specifier", "enum_specifier":
		return node.ChildByFieldName("body") == nil
	}
	return false
}

// declaredName follows name and declarator fields down to the identifier being declared.
func declaredName(node *sitter.Node, src []byte) string {
	for depth := 0; node != nil && depth < 8; depth++ {
		switch node.Kind() {
		case "identifier", "type_identifier", "field_identifier", "property_identifier":
			return strings.TrimSpace(node.Utf8Text(src))
		}
		if name := node.ChildByFieldName("name"); name != nil {
			return strings.TrimSpace(name.Utf8Text(src))
		}
		node = node.ChildByFieldName("declarator")
	}
	return ""
}
