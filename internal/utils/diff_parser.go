package utils

import (
	"fmt"
	"strings"
)

type LineRange struct {
	Start int
	Count int
}

// HunkRange is the pair of ranges carried by a unified diff hunk header.
type HunkRange struct {
	Old LineRange
	New LineRange
}

// GetDiffContext returns the new-side hunk ranges per target path of a unified diff.
// Deleted files are reported under their old path.
func GetDiffContext(diff string) map[string][]LineRange {
	context := make(map[string][]LineRange)
	lines := strings.Split(diff, "\n")

	var oldFile, currentFile string

	for _, line := range lines {
		if strings.HasPrefix(line, "--- ") {
			oldFile = diffHeaderPath(line, "a/")
		} else if strings.HasPrefix(line, "+++ ") {
			currentFile = diffHeaderPath(line, "b/")
			if currentFile == "/dev/null" {
				currentFile = oldFile
			}
		} else if strings.HasPrefix(line, "@@") && currentFile != "" {
			if hunk := ParseHunkHeader(line); hunk != nil {
				context[currentFile] = append(context[currentFile], hunk.New)
			}
		}
	}

	return context
}

// diffHeaderPath reads the path of a "--- " or "+++ " line. The path runs to the
// end of the line or to a tab before a timestamp, so it may contain spaces.
func diffHeaderPath(line, prefix string) string {
	path := line[len("--- "):]
	if i := strings.IndexByte(path, '\t'); i >= 0 {
		path = path[:i]
	}
	return strings.TrimPrefix(strings.TrimSuffix(path, "\r"), prefix)
}

// ParseHunkHeader parses "@@ -a,b +c,d @@" headers. Omitted counts default to 1.
func ParseHunkHeader(header string) *HunkRange {
	// Example: @@ -1,4 +1,6 @@ optional section
	fields := strings.Fields(header)
	if len(fields) < 4 || fields[0] != "@@" || fields[3] != "@@" {
		return nil
	}

	oldRange, ok := parseRange(fields[1], "-")
	if !ok {
		return nil
	}
	newRange, ok := parseRange(fields[2], "+")
	if !ok {
		return nil
	}

	return &HunkRange{Old: oldRange, New: newRange}
}

func parseRange(field, sign string) (LineRange, bool) {
	if !strings.HasPrefix(field, sign) {
		return LineRange{}, false
	}
	parts := strings.Split(strings.TrimPrefix(field, sign), ",")
	if len(parts) > 2 {
		return LineRange{}, false
	}

	start := 0
	count := 1

	if _, err := fmt.Sscanf(parts[0], "%d", &start); err != nil || start < 0 {
		return LineRange{}, false
	}
	if len(parts) > 1 {
		if _, err := fmt.Sscanf(parts[1], "%d", &count); err != nil || count < 0 {
			return LineRange{}, false
		}
	}

	return LineRange{Start: start, Count: count}, true
}

// FormatHunkHeader renders a header the way GNU diff does, omitting counts of 1.
func FormatHunkHeader(h HunkRange) string {
	return fmt.Sprintf("@@ -%s +%s @@", formatRange(h.Old), formatRange(h.New))
}

func formatRange(r LineRange) string {
	if r.Count == 1 {
		return fmt.Sprintf("%d", r.Start)
	}
	return fmt.Sprintf("%d,%d", r.Start, r.Count)
}
