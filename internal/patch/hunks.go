package patch

import (
	"github.com/agusespa/codecrate/internal/utils"
	"github.com/pmezard/go-difflib/difflib"
)

const (
	defaultContext = 3
	noNewlineLine  = `\ No newline at end of file`
)

// Hunk is one unified diff hunk. Starts follow GNU conventions: 1-based, or the
// line before the hunk when its count is zero. Lines carry their ' ', '-', '+'
// prefixes and may include no-newline marker lines.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []string
}

func (h Hunk) Header() string {
	return utils.FormatHunkHeader(utils.HunkRange{
		Old: utils.LineRange{Start: h.OldStart, Count: h.OldCount},
		New: utils.LineRange{Start: h.NewStart, Count: h.NewCount},
	})
}

// buildHunks diffs old and new text and groups the changes into hunks with
// context lines of surrounding context.
func buildHunks(oldText, newText string, context int) []Hunk {
	oldLines, oldTrailing := utils.SplitLines(oldText)
	newLines, newTrailing := utils.SplitLines(newText)

	// A last line without a newline never equals one with a newline.
	m := difflib.NewMatcher(keysFor(oldLines, oldTrailing), keysFor(newLines, newTrailing))

	var hunks []Hunk
	for _, group := range m.GetGroupedOpCodes(context) {
		hunks = append(hunks, makeHunk(group, oldLines, newLines, oldTrailing, newTrailing))
	}
	return hunks
}

func keysFor(lines []string, trailing bool) []string {
	if trailing || len(lines) == 0 {
		return lines
	}
	keys := make([]string, len(lines))
	copy(keys, lines)
	keys[len(keys)-1] += "\x00"
	return keys
}

func makeHunk(group []difflib.OpCode, oldLines, newLines []string, oldTrailing, newTrailing bool) Hunk {
	h := Hunk{}
	oldLine := func(prefix string, i int) {
		h.Lines = append(h.Lines, prefix+oldLines[i])
		if i == len(oldLines)-1 && !oldTrailing {
			h.Lines = append(h.Lines, noNewlineLine)
		}
	}
	newLine := func(j int) {
		h.Lines = append(h.Lines, "+"+newLines[j])
		if j == len(newLines)-1 && !newTrailing {
			h.Lines = append(h.Lines, noNewlineLine)
		}
	}

	for _, c := range group {
		switch c.Tag {
		case 'e':
			for i := c.I1; i < c.I2; i++ {
				oldLine(" ", i)
			}
		case 'd', 'r':
			for i := c.I1; i < c.I2; i++ {
				oldLine("-", i)
			}
		}
		if c.Tag == 'i' || c.Tag == 'r' {
			for j := c.J1; j < c.J2; j++ {
				newLine(j)
			}
		}
	}

	first, last := group[0], group[len(group)-1]
	h.OldStart, h.OldCount = first.I1, last.I2-first.I1
	h.NewStart, h.NewCount = first.J1, last.J2-first.J1
	if h.OldCount > 0 {
		h.OldStart++
	}
	if h.NewCount > 0 {
		h.NewStart++
	}
	return h
}
