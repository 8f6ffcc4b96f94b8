package codec

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Part is one chunk of a split document.
type Part struct {
	Path    string
	Content string
}

// SplitByMaxChars cuts a document at blank-line boundaries into parts of at most
// maxChars characters where possible. A block larger than maxChars becomes a part
// of its own. With maxChars <= 0, or a document that already fits, the result is
// the document itself at outPath. Parts are for reading only; they do not decode.
func SplitByMaxChars(doc, outPath string, maxChars int) []Part {
	if maxChars <= 0 || len(doc) <= maxChars {
		return []Part{{Path: outPath, Content: doc}}
	}

	var parts []Part
	var chunk strings.Builder
	flush := func() {
		parts = append(parts, Part{
			Path:    PartPath(outPath, len(parts)+1),
			Content: strings.TrimRight(chunk.String(), " \t\n") + "\n",
		})
		chunk.Reset()
	}

	for _, block := range strings.Split(doc, "\n\n") {
		add := block + "\n\n"
		if chunk.Len() > 0 && chunk.Len()+len(add) > maxChars {
			flush()
		}
		chunk.WriteString(add)
	}
	if chunk.Len() > 0 {
		flush()
	}
	return parts
}

// PartPath names the n-th part: context.md becomes context.part2.md.
func PartPath(outPath string, n int) string {
	ext := filepath.Ext(outPath)
	return fmt.Sprintf("%s.part%d%s", strings.TrimSuffix(outPath, ext), n, ext)
}
