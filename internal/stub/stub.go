// Package stub replaces definition bodies with marker placeholders.
package stub

import (
	"sort"
	"strings"

	"github.com/agusespa/codecrate/internal/ids"
	"github.com/agusespa/codecrate/internal/types"
	"github.com/agusespa/codecrate/internal/utils"
)

type Options struct {
	KeepDocstrings bool
}

// replacement swaps lines [start, end] (0-based, inclusive) for lines.
type replacement struct {
	start int
	end   int
	lines []string
}

// StubFile rewrites text so every definition body becomes a placeholder carrying
// its marker. The result always has the same number of lines as text. The returned
// defs are copies of defs with HasMarker set; definitions nested inside a body that
// was replaced keep HasMarker false.
func StubFile(text string, defs []types.DefinitionRef, opts Options) (string, []types.DefinitionRef) {
	lines, trailing := utils.SplitLines(text)
	out := make([]types.DefinitionRef, len(defs))
	copy(out, defs)

	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return out[order[a]].DefLine < out[order[b]].DefLine
	})

	var reps []replacement
	covered := func(line int) bool {
		for _, r := range reps {
			if line >= r.start && line <= r.end {
				return true
			}
		}
		return false
	}

	for _, i := range order {
		d := &out[i]
		d.HasMarker = false
		defIdx := d.DefLine - 1
		if defIdx < 0 || defIdx >= len(lines) || covered(defIdx) {
			continue
		}

		if rep, ok := planReplacement(lines, *d, opts); ok {
			reps = append(reps, rep)
			d.HasMarker = true
		}
	}

	return utils.JoinLines(apply(lines, reps), trailing), out
}

func planReplacement(lines []string, d types.DefinitionRef, opts Options) (replacement, bool) {
	marker := ids.MarkerComment(d.LocalID)

	if d.IsSingleLine {
		idx := d.DefLine - 1
		line := lines[idx]
		col := signatureColon(line)
		if col < 0 {
			return replacement{}, false
		}
		return replacement{start: idx, end: idx, lines: []string{line[:col+1] + " ...  " + marker}}, true
	}

	start := d.BodyStart
	if opts.KeepDocstrings && d.HasDoc() {
		start = d.DocEnd + 1
	}
	end := min(d.EndLine, len(lines))

	if start > end {
		// Nothing after the kept doc string: the marker rides on its last line.
		idx := d.DocEnd - 1
		if idx < 0 || idx >= len(lines) {
			return replacement{}, false
		}
		return replacement{start: idx, end: idx, lines: []string{lines[idx] + "  " + marker}}, true
	}
	if start <= d.DefLine {
		return replacement{}, false
	}

	i0, i1 := start-1, end-1
	indent := ""
	for i := i0; i <= i1; i++ {
		if strings.TrimSpace(lines[i]) != "" {
			indent = utils.Indentation(lines[i])
			break
		}
	}

	// Fillers first so the placeholder sits on the definition's last line.
	repl := make([]string, i1-i0+1)
	repl[len(repl)-1] = indent + "...  " + marker
	return replacement{start: i0, end: i1, lines: repl}, true
}

func apply(lines []string, reps []replacement) []string {
	sort.Slice(reps, func(a, b int) bool { return reps[a].start < reps[b].start })

	out := make([]string, 0, len(lines))
	next := 0
	for _, r := range reps {
		out = append(out, lines[next:r.start]...)
		out = append(out, r.lines...)
		next = r.end + 1
	}
	return append(out, lines[next:]...)
}

// signatureColon finds the colon closing a def header on a single line: the first
// ':' after "def" outside brackets and string literals.
func signatureColon(line string) int {
	defAt := strings.Index(line, "def ")
	if defAt < 0 {
		return -1
	}

	depth := 0
	var quote byte
	for i := defAt + 4; i < len(line); i++ {
		c := line[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ':':
			if depth == 0 {
				return i
			}
		case '#':
			return -1
		}
	}
	return -1
}
