package symbols

import (
	"fmt"
	"strings"

	"github.com/agusespa/codecrate/internal/ids"
	"github.com/agusespa/codecrate/internal/types"
	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	"github.com/warpfork/go-errcat"
)

// PythonBackend is the primary backend: its definitions are stubbed and deduplicated.
type PythonBackend struct {
	parser   *sitter.Parser
	language *sitter.Language
}

func NewPythonBackend() (*PythonBackend, error) {
	lang := sitter.NewLanguage(tree_sitter_python.Language())
	parser := sitter.NewParser()
	if err := parser.SetLanguage(lang); err != nil {
		parser.Close()
		return nil, fmt.Errorf("failed to set language for parser: %w", err)
	}
	return &PythonBackend{
		parser:   parser,
		language: lang,
	}, nil
}

func (pb *PythonBackend) Language() string {
	return "Python"
}

func (pb *PythonBackend) SupportedExtensions() []string {
	return []string{".py", ".pyi", ".pyw"}
}

func (pb *PythonBackend) Close() {
	pb.parser.Close()
}

// Extract records every function and class in document order. Source that does not
// parse cleanly is a fatal input error: stubbing it could not be reversed reliably.
func (pb *PythonBackend) Extract(relPath string, src []byte) (*Extraction, error) {
	tree := pb.parser.Parse(src, nil)
	if tree == nil {
		return nil, errcat.Errorf(types.ErrFatalInput, "failed to parse Python file %s: tree-sitter returned nil", relPath)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, errcat.Errorf(types.ErrFatalInput, "failed to parse Python file %s: syntax error near line %d", relPath, firstErrorLine(root))
	}

	w := &pythonWalker{
		path:   relPath,
		module: PythonModuleName(relPath),
		src:    src,
		lines:  strings.Split(string(src), "\n"),
	}
	w.walk(root, nil)

	return &Extraction{Module: w.module, Defs: w.defs, Classes: w.classes}, nil
}

type pythonWalker struct {
	path    string
	module  string
	src     []byte
	lines   []string
	defs    []types.DefinitionRef
	classes []types.ClassRef
}

func (w *pythonWalker) walk(node *sitter.Node, stack []string) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "function_definition":
			name := w.addFunction(child, stack)
			w.walk(child, push(stack, name))
		case "class_definition":
			name := w.addClass(child, stack)
			w.walk(child, push(stack, name))
		default:
			w.walk(child, stack)
		}
	}
}

func push(stack []string, name string) []string {
	return append(stack[:len(stack):len(stack)], name)
}

func (w *pythonWalker) nameOf(node *sitter.Node) string {
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		return strings.TrimSpace(nameNode.Utf8Text(w.src))
	}
	return "<anon>"
}

func decoratorStart(node *sitter.Node, defLine int) int {
	if parent := node.Parent(); parent != nil && parent.Kind() == "decorated_definition" {
		return startLine(parent)
	}
	return defLine
}

func (w *pythonWalker) addFunction(node *sitter.Node, stack []string) string {
	name := w.nameOf(node)
	qual := strings.Join(push(stack, name), ".")

	defLine := startLine(node)
	end := w.codeEnd(node, defLine)

	kind := types.KindFunction
	if first := node.Child(0); first != nil && first.Kind() == "async" {
		kind = types.KindAsyncFunction
	}

	bodyStart := end
	var docStart, docEnd int
	if body := node.ChildByFieldName("body"); body != nil {
		if stmt := firstStatement(body); stmt != nil {
			bodyStart = startLine(stmt)
			if isDocString(stmt, w.src) {
				docStart = startLine(stmt)
				docEnd = endLine(stmt)
			}
		}
	}

	localID := ids.LocationID(w.path, qual, defLine)
	w.defs = append(w.defs, types.DefinitionRef{
		Path:           w.path,
		Module:         w.module,
		QualName:       qual,
		CanonicalID:    localID,
		LocalID:        localID,
		Kind:           kind,
		DecoratorStart: decoratorStart(node, defLine),
		DefLine:        defLine,
		BodyStart:      bodyStart,
		EndLine:        end,
		DocStart:       docStart,
		DocEnd:         docEnd,
		IsSingleLine:   defLine == end,
	})
	return name
}

func (w *pythonWalker) addClass(node *sitter.Node, stack []string) string {
	name := w.nameOf(node)
	qual := strings.Join(push(stack, name), ".")
	classLine := startLine(node)

	w.classes = append(w.classes, types.ClassRef{
		Path:           w.path,
		Module:         w.module,
		QualName:       qual,
		ID:             ids.LocationID(w.path, qual, classLine),
		DecoratorStart: decoratorStart(node, classLine),
		ClassLine:      classLine,
		EndLine:        w.codeEnd(node, classLine),
	})
	return name
}

// codeEnd trims trailing blank and comment-only lines the grammar may attach to a block.
func (w *pythonWalker) codeEnd(node *sitter.Node, headerLine int) int {
	end := endLine(node)
	for end > headerLine && end <= len(w.lines) {
		text := strings.TrimSpace(w.lines[end-1])
		if text != "" && !strings.HasPrefix(text, "#") {
			break
		}
		end--
	}
	return end
}

func firstStatement(block *sitter.Node) *sitter.Node {
	for i := uint(0); i < block.NamedChildCount(); i++ {
		child := block.NamedChild(i)
		if child != nil && child.Kind() != "comment" {
			return child
		}
	}
	return nil
}

// isDocString matches a bare, non-formatted, non-bytes string literal statement.
func isDocString(stmt *sitter.Node, src []byte) bool {
	if stmt.Kind() != "expression_statement" || stmt.NamedChildCount() != 1 {
		return false
	}
	expr := stmt.NamedChild(0)
	if expr == nil {
		return false
	}
	switch expr.Kind() {
	case "string":
		return isPlainString(expr, src)
	case "concatenated_string":
		for i := uint(0); i < expr.NamedChildCount(); i++ {
			part := expr.NamedChild(i)
			if part == nil || part.Kind() == "comment" {
				continue
			}
			if part.Kind() != "string" || !isPlainString(part, src) {
				return false
			}
		}
		return true
	}
	return false
}

func isPlainString(node *sitter.Node, src []byte) bool {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		if child := node.NamedChild(i); child != nil && child.Kind() == "interpolation" {
			return false
		}
	}
	text := node.Utf8Text(src)
	quote := strings.IndexAny(text, `'"`)
	if quote < 0 {
		return false
	}
	return !strings.ContainsAny(strings.ToLower(text[:quote]), "bf")
}

func firstErrorLine(node *sitter.Node) int {
	if node.IsError() || node.IsMissing() {
		return startLine(node)
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && child.HasError() {
			return firstErrorLine(child)
		}
	}
	return startLine(node)
}
