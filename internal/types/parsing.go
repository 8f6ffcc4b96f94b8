package types

// DefinitionKind names the syntactic shape of a definition occurrence.
type DefinitionKind string

const (
	KindFunction      DefinitionKind = "function"
	KindAsyncFunction DefinitionKind = "async_function"

	KindSymbolFunction DefinitionKind = "symbol_function"
	KindSymbolMethod   DefinitionKind = "symbol_method"
	KindSymbolType     DefinitionKind = "symbol_type"
	KindSymbolClass    DefinitionKind = "symbol_class"
)

// DefinitionRef is one function or method occurrence found in a primary-language file.
// All line numbers are 1-based and EndLine is inclusive. DocStart and DocEnd are zero
// when the body has no leading doc string.
type DefinitionRef struct {
	Path           string
	Module         string
	QualName       string
	CanonicalID    string
	LocalID        string
	Kind           DefinitionKind
	DecoratorStart int
	DefLine        int
	BodyStart      int
	EndLine        int
	DocStart       int
	DocEnd         int
	IsSingleLine   bool
	// HasMarker is set by the stubber when a marker for LocalID was written.
	HasMarker bool
}

// HasDoc reports whether the definition carries a leading doc string.
func (d DefinitionRef) HasDoc() bool {
	return d.DocStart > 0 && d.DocEnd >= d.DocStart
}

// ClassRef is one class occurrence. Classes are indexed but never stubbed.
type ClassRef struct {
	Path           string
	Module         string
	QualName       string
	ID             string
	DecoratorStart int
	ClassLine      int
	EndLine        int
}

// SymbolRef is an index-only entry produced by a secondary symbol backend.
type SymbolRef struct {
	Path      string
	Name      string
	Kind      DefinitionKind
	ID        string
	StartLine int
	EndLine   int
}
