// Package symbols extracts definition boundaries from source files with tree-sitter.
package symbols

import (
	"path"
	"strings"

	"github.com/agusespa/codecrate/internal/types"
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Extraction is everything a backend found in one file, in document order.
type Extraction struct {
	Module  string
	Defs    []types.DefinitionRef
	Classes []types.ClassRef
	Symbols []types.SymbolRef
}

type Backend interface {
	// Extract parses one file. path is the slash-separated path relative to the pack root.
	Extract(path string, src []byte) (*Extraction, error)

	// SupportedExtensions returns the lower-case file extensions this backend handles
	SupportedExtensions() []string

	// Language returns the human-readable name of the language this backend handles
	Language() string

	Close()
}

// PythonModuleName converts a relative path to a dotted module name.
// e.g., "src/pkg/helper.py" -> "pkg.helper", "pkg/__init__.py" -> "pkg"
func PythonModuleName(relPath string) string {
	parts := strings.Split(strings.TrimSuffix(relPath, path.Ext(relPath)), "/")
	if len(parts) > 1 && parts[0] == "src" {
		parts = parts[1:]
	}
	if len(parts) > 0 && parts[len(parts)-1] == "__init__" {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, ".")
}

// ModuleName converts a relative path of any other language to a dotted name.
func ModuleName(relPath string) string {
	return strings.ReplaceAll(strings.TrimSuffix(relPath, path.Ext(relPath)), "/", ".")
}

func startLine(node *sitter.Node) int {
	return int(node.StartPosition().Row) + 1
}

// endLine is the 1-based line holding the last character of node. A node that
// ends at column 0 finished on the previous line.
func endLine(node *sitter.Node) int {
	start := node.StartPosition()
	end := node.EndPosition()
	row := end.Row
	if end.Column == 0 && row > start.Row {
		row--
	}
	return int(row) + 1
}
