// Package unpack rebuilds original files from a decoded pack.
package unpack

import (
	"sort"
	"strings"

	"github.com/agusespa/codecrate/internal/codec"
	"github.com/agusespa/codecrate/internal/ids"
	"github.com/agusespa/codecrate/internal/types"
	"github.com/agusespa/codecrate/internal/utils"
)

// Source is what reconstruction needs to know about one stubbed file.
type Source struct {
	Path    string
	Stub    string
	Defs    []codec.ManifestDef
	Library map[string]string
	// LegacyMarkers allows markers keyed by canonical id, as written before
	// the marker format was versioned.
	LegacyMarkers bool
}

type splice struct {
	start, end int
	lines      []string
}

// Reconstruct replaces every marked definition of src.Stub with its canonical
// text. Problems are returned as diagnostics and the rest of the file is still
// rebuilt.
func Reconstruct(src Source) (string, []types.Diagnostic) {
	lines, trailing := utils.SplitLines(src.Stub)
	markers := ids.MarkerIndex(lines)

	defs := make([]codec.ManifestDef, len(src.Defs))
	copy(defs, src.Defs)
	sort.SliceStable(defs, func(i, j int) bool { return defs[i].DefLine > defs[j].DefLine })

	var diags []types.Diagnostic
	var splices []splice
	for _, d := range defs {
		if !d.Marked() {
			continue
		}
		code, ok := src.Library[d.ID]
		if !ok {
			diags = append(diags, types.Warnf(types.CodeMissingCanonical, src.Path,
				"no canonical source for %s (id %s)", d.QualName, d.ID))
			continue
		}

		markerIdx, ok := popMarker(markers, d.LocalID)
		if !ok && src.LegacyMarkers {
			markerIdx, ok = popMarker(markers, d.ID)
		}
		if !ok {
			diags = append(diags, types.Warnf(types.CodeMissingMarker, src.Path,
				"marker %s for %s not found", ids.MarkerToken(d.LocalID), d.QualName))
			continue
		}

		header := resolveHeader(lines, markerIdx, d)
		if header < 0 {
			diags = append(diags, types.Warnf(types.CodeUnresolvedMarker, src.Path,
				"cannot locate the def line of %s above line %d", d.QualName, markerIdx+1))
			continue
		}

		start := header
		if d.DecoratorStart > 0 && d.DecoratorStart < d.DefLine {
			start = max(0, header-(d.DefLine-d.DecoratorStart))
		}
		body, _ := utils.SplitLines(code)
		splices = append(splices, splice{start: start, end: markerIdx, lines: body})
	}

	sort.Slice(splices, func(i, j int) bool { return splices[i].end > splices[j].end })
	limit := len(lines)
	for _, s := range splices {
		if s.end >= limit {
			diags = append(diags, types.Warnf(types.CodeUnresolvedMarker, src.Path,
				"overlapping definitions at line %d", s.end+1))
			continue
		}
		out := make([]string, 0, len(lines)-(s.end-s.start+1)+len(s.lines))
		out = append(out, lines[:s.start]...)
		out = append(out, s.lines...)
		out = append(out, lines[s.end+1:]...)
		lines = out
		limit = s.start
	}

	return utils.JoinLines(lines, trailing), diags
}

// popMarker takes the bottom-most unconsumed marker line for id.
func popMarker(markers map[string][]int, id string) (int, bool) {
	hits := markers[strings.ToUpper(id)]
	if len(hits) == 0 {
		return 0, false
	}
	idx := hits[len(hits)-1]
	markers[strings.ToUpper(id)] = hits[:len(hits)-1]
	return idx, true
}

// resolveHeader finds the 0-based def line for d given its marker line. The
// manifest offset is tried first; otherwise the nearest def of the same name
// indented less than the marker is used.
func resolveHeader(lines []string, markerIdx int, d codec.ManifestDef) int {
	name := d.QualName
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}

	if d.IsSingleLine {
		if isDefLine(lines[markerIdx], name) {
			return markerIdx
		}
		return -1
	}

	if guess := markerIdx - (d.EndLine - d.DefLine); guess >= 0 && guess < markerIdx && isDefLine(lines[guess], name) {
		return guess
	}

	indent := len(utils.Indentation(lines[markerIdx]))
	for i := markerIdx - 1; i >= 0; i-- {
		if len(utils.Indentation(lines[i])) < indent && isDefLine(lines[i], name) {
			return i
		}
	}
	return -1
}

func isDefLine(line, name string) bool {
	s := strings.TrimLeft(line, " \t")
	if rest, ok := strings.CutPrefix(s, "async"); ok && rest != "" && (rest[0] == ' ' || rest[0] == '\t') {
		s = strings.TrimLeft(rest, " \t")
	}
	rest, ok := strings.CutPrefix(s, "def")
	if !ok || rest == "" || (rest[0] != ' ' && rest[0] != '\t') {
		return false
	}
	rest = strings.TrimLeft(rest, " \t")
	rest, ok = strings.CutPrefix(rest, name)
	if !ok {
		return false
	}
	rest = strings.TrimLeft(rest, " \t")
	return strings.HasPrefix(rest, "(") || strings.HasPrefix(rest, "[")
}
