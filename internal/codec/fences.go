package codec

import (
	"regexp"
	"strings"
)

var fenceOpen = regexp.MustCompile("^(`{3,})[ \t]*([A-Za-z0-9_.+-]*)(?:[ \t]+.*)?$")

// FenceFor returns a backtick run longer than any run inside content.
func FenceFor(content string) string {
	longest, run := 0, 0
	for i := 0; i < len(content); i++ {
		if content[i] == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}

// writeFenced appends a fenced block. Content always ends up newline-terminated.
func writeFenced(b *strings.Builder, info, content string) {
	fence := FenceFor(content)
	b.WriteString(fence)
	b.WriteString(info)
	b.WriteString("\n")
	b.WriteString(content)
	if content != "" && !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(fence)
	b.WriteString("\n")
}

// Block is one fenced block. Start and End are the 0-based lines of the opening
// and closing fences; End is -1 for a block left open at end of input.
type Block struct {
	Info    string
	Fence   string
	Start   int
	End     int
	Content string
}

func parseFenceOpen(line string) (fence, info string, ok bool) {
	m := fenceOpen.FindStringSubmatch(strings.TrimRight(line, " \t"))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

func isFenceClose(line, fence string) bool {
	trimmed := strings.TrimSpace(line)
	return len(trimmed) >= len(fence) && strings.Trim(trimmed, "`") == ""
}

// ScanBlocks finds fenced blocks. Openers accept any run of three or more backticks,
// whitespace before the info string and trailing tokens after it.
func ScanBlocks(lines []string) []Block {
	var blocks []Block
	for i := 0; i < len(lines); i++ {
		fence, info, ok := parseFenceOpen(lines[i])
		if !ok {
			continue
		}
		block := Block{Info: info, Fence: fence, Start: i, End: -1}
		j := i + 1
		for ; j < len(lines); j++ {
			if isFenceClose(lines[j], fence) {
				block.End = j
				break
			}
		}
		body := lines[i+1 : min(j, len(lines))]
		if len(body) > 0 {
			block.Content = strings.Join(body, "\n") + "\n"
		}
		blocks = append(blocks, block)
		i = j
	}
	return blocks
}

// outsideFences calls fn for every line that is not part of a fenced block.
func outsideFences(lines []string, fn func(i int, line string)) {
	inFence := ""
	for i, line := range lines {
		if inFence != "" {
			if isFenceClose(line, inFence) {
				inFence = ""
			}
			continue
		}
		if fence, _, ok := parseFenceOpen(line); ok {
			inFence = fence
			continue
		}
		fn(i, line)
	}
}
