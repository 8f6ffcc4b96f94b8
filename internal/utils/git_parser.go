package utils

import (
	"strings"
)

// ParseFileList splits `git ls-files` output into paths. NUL-separated output
// (from -z) is preferred when present.
func ParseFileList(output string) []string {
	if output == "" {
		return []string{}
	}

	sep := "\n"
	if strings.Contains(output, "\x00") {
		sep = "\x00"
	}

	var files []string
	lines := strings.SplitSeq(strings.Trim(output, "\n\x00"), sep)

	for line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			files = append(files, line)
		}
	}

	return files
}
