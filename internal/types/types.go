package types

// FileRecord is one packed file. Original and Stubbed are newline-normalised
// and always have the same number of lines.
type FileRecord struct {
	Path      string
	Module    string
	Language  string
	Original  string
	Stubbed   string
	LineCount int
	Classes   []ClassRef
	Defs      []DefinitionRef
	Symbols   []SymbolRef
	Redacted  bool
}

// HasStubs reports whether at least one definition of the file was replaced by a marker.
func (f FileRecord) HasStubs() bool {
	for _, d := range f.Defs {
		if d.HasMarker {
			return true
		}
	}
	return false
}

// PackResult is the root container produced by the pack assembler.
type PackResult struct {
	Root  string
	Label string
	Files []FileRecord
	Defs  []DefinitionRef
}

// CanonicalLibrary maps canonical ids to full definition source text.
type CanonicalLibrary map[string]string

// SkippedFile records a file left out of a pack and the reason for it.
type SkippedFile struct {
	Path   string
	Reason string
}
