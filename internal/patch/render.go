package patch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agusespa/codecrate/internal/codec"
	"github.com/sourcegraph/go-diff/diff"
)

const (
	patchTitle = "# Codecrate Patch"
	metaInfo   = "codecrate-patch-meta"
	devNull    = "/dev/null"
	noChanges  = "_No changes detected._"
)

// Render writes p as a patch document: a metadata block followed by one diff
// block per file.
func Render(p *Patch) (string, error) {
	var b strings.Builder
	b.WriteString(patchTitle + "\n\n")

	meta, err := json.MarshalIndent(p.Meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialise patch metadata: %w", err)
	}
	writeBlock(&b, metaInfo, string(meta)+"\n")

	if len(p.Files) == 0 {
		b.WriteString("\n" + noChanges + "\n")
		return b.String(), nil
	}

	for _, fd := range p.Files {
		text, err := UnifiedDiff(fd)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "\n## `%s`\n\n", fd.Path)
		writeBlock(&b, "diff", text)
	}
	return b.String(), nil
}

func writeBlock(b *strings.Builder, info, content string) {
	fence := codec.FenceFor(content)
	b.WriteString(fence + info + "\n")
	b.WriteString(content)
	b.WriteString(fence + "\n")
}

// UnifiedDiff renders one file diff with a/ and b/ headers.
func UnifiedDiff(fd FileDiff) (string, error) {
	orig, next := "a/"+fd.Path, "b/"+fd.Path
	switch fd.Op {
	case OpAdd:
		orig = devNull
	case OpDelete:
		next = devNull
	}

	if len(fd.Hunks) == 0 {
		return fmt.Sprintf("--- %s\n+++ %s\n", orig, next), nil
	}

	out := &diff.FileDiff{OrigName: orig, NewName: next}
	for _, h := range fd.Hunks {
		body := strings.Join(h.Lines, "\n") + "\n"
		out.Hunks = append(out.Hunks, &diff.Hunk{
			OrigStartLine: int32(h.OldStart),
			OrigLines:     int32(h.OldCount),
			NewStartLine:  int32(h.NewStart),
			NewLines:      int32(h.NewCount),
			Body:          []byte(body),
		})
	}

	data, err := diff.PrintFileDiff(out)
	if err != nil {
		return "", fmt.Errorf("failed to render diff for %s: %w", fd.Path, err)
	}
	return string(data), nil
}
