// Package pack turns a set of source files into a PackResult and its canonical library.
package pack

import (
	"fmt"
	"strings"

	"github.com/agusespa/codecrate/internal/ids"
	"github.com/agusespa/codecrate/internal/stub"
	"github.com/agusespa/codecrate/internal/symbols"
	"github.com/agusespa/codecrate/internal/types"
	"github.com/agusespa/codecrate/internal/utils"
)

type Options struct {
	KeepDocstrings bool
	Dedupe         bool
}

// Assemble extracts, deduplicates and stubs files in order. It runs on a single
// goroutine: dedup assigns representatives by file order.
func Assemble(root, label string, files []SourceFile, registry *symbols.Registry, opts Options) (*types.PackResult, types.CanonicalLibrary, error) {
	records := make([]types.FileRecord, 0, len(files))

	for _, f := range files {
		record, err := extract(f, registry)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, record)
	}

	library := buildLibrary(records, opts.Dedupe)

	result := &types.PackResult{Root: root, Label: label}
	for i := range records {
		r := &records[i]
		if len(r.Defs) > 0 {
			r.Stubbed, r.Defs = stub.StubFile(r.Original, r.Defs, stub.Options{KeepDocstrings: opts.KeepDocstrings})
		}
		result.Defs = append(result.Defs, r.Defs...)
	}
	result.Files = records

	return result, library, nil
}

func extract(f SourceFile, registry *symbols.Registry) (types.FileRecord, error) {
	record := types.FileRecord{
		Path:      f.Path,
		Language:  utils.DetectLanguageFromFilePath(f.Path),
		Original:  f.Text,
		Stubbed:   f.Text,
		LineCount: utils.CountLines(f.Text),
		Redacted:  f.Redacted,
	}
	if f.Redacted || registry == nil {
		return record, nil
	}

	backend, variant := registry.Resolve(f.Path)
	switch variant {
	case symbols.VariantPrimary:
		ext, err := backend.Extract(f.Path, []byte(f.Text))
		if err != nil {
			return record, fmt.Errorf("pack aborted: %w", err)
		}
		record.Module = ext.Module
		record.Defs = ext.Defs
		record.Classes = ext.Classes
	case symbols.VariantSecondary:
		// Index-only: a file the optional backend cannot handle is packed verbatim.
		if ext, err := backend.Extract(f.Path, []byte(f.Text)); err == nil {
			record.Module = ext.Module
			record.Symbols = ext.Symbols
		}
	}
	return record, nil
}

// buildLibrary fills CanonicalID on every def and returns the library. With dedupe
// off every occurrence is its own entry. With dedupe on, the first occurrence of a
// body hash is the representative and later occurrences share it only when their
// text is exactly equal, so every file still reconstructs byte for byte.
func buildLibrary(records []types.FileRecord, dedupe bool) types.CanonicalLibrary {
	library := make(types.CanonicalLibrary)
	// Every text variant seen for a body hash, in first-seen order.
	byHash := make(map[string][]string)

	for i := range records {
		lines, _ := utils.SplitLines(records[i].Original)
		for j := range records[i].Defs {
			d := &records[i].Defs[j]
			code := CanonicalText(lines, *d)
			d.CanonicalID = d.LocalID

			if dedupe {
				h := ids.BodyHash(code)
				if rep, ok := sameText(library, byHash[h], code); ok {
					d.CanonicalID = rep
					continue
				}
				byHash[h] = append(byHash[h], d.LocalID)
			}
			library[d.LocalID] = code
		}
	}
	return library
}

func sameText(library types.CanonicalLibrary, variants []string, code string) (string, bool) {
	for _, id := range variants {
		if library[id] == code {
			return id, true
		}
	}
	return "", false
}

// CanonicalText is the definition's source from its first decorator through its
// last line, with exactly one trailing newline.
func CanonicalText(lines []string, d types.DefinitionRef) string {
	i0 := max(0, d.DecoratorStart-1)
	i1 := min(len(lines), d.EndLine)
	if i0 >= i1 {
		return "\n"
	}
	return strings.Join(lines[i0:i1], "\n") + "\n"
}
