package patch

import (
	"encoding/json"
	"strings"

	"github.com/agusespa/codecrate/internal/codec"
	"github.com/agusespa/codecrate/internal/types"
	"github.com/agusespa/codecrate/internal/utils"
	"github.com/warpfork/go-errcat"
)

// ParseDocument extracts the metadata block (nil when absent) and the text of
// every diff block. Text without diff blocks is returned whole, so plain unified
// diffs are accepted too.
func ParseDocument(text string) (*Meta, string, error) {
	lines, _ := utils.SplitLines(utils.NormalizeNewlines(text))

	var meta *Meta
	var diffs []string
	for _, blk := range codec.ScanBlocks(lines) {
		switch blk.Info {
		case metaInfo:
			if meta != nil {
				continue
			}
			var m Meta
			if err := json.Unmarshal([]byte(blk.Content), &m); err != nil {
				return nil, "", errcat.Errorf(types.ErrFatalInput, "malformed patch metadata: %s", err)
			}
			if m.Format != PatchFormat {
				return nil, "", errcat.Errorf(types.ErrFatalInput, "unsupported format: patch format %q (want %q)", m.Format, PatchFormat)
			}
			meta = &m
		case "diff":
			diffs = append(diffs, blk.Content)
		}
	}

	if len(diffs) == 0 {
		return meta, utils.NormalizeNewlines(text), nil
	}
	return meta, strings.Join(diffs, ""), nil
}

// ParseUnifiedDiff reads file diffs from unified diff text. Paths are checked
// before anything else: an unsafe path rejects the whole diff.
func ParseUnifiedDiff(text string) ([]FileDiff, error) {
	lines, _ := utils.SplitLines(utils.NormalizeNewlines(text))
	isHeader := func(i int) bool {
		return i+1 < len(lines) && strings.HasPrefix(lines[i], "--- ") && strings.HasPrefix(lines[i+1], "+++ ")
	}

	var out []FileDiff
	for i := 0; i < len(lines); {
		if !isHeader(i) {
			i++
			continue
		}
		from, err := sidePath(lines[i][4:], "a/")
		if err != nil {
			return nil, err
		}
		to, err := sidePath(lines[i+1][4:], "b/")
		if err != nil {
			return nil, err
		}
		i += 2

		fd := FileDiff{Path: to, Op: OpModify}
		switch {
		case from == "" && to == "":
			continue
		case from == "":
			fd.Op = OpAdd
		case to == "":
			fd.Path, fd.Op = from, OpDelete
		}

		for i < len(lines) && !isHeader(i) {
			if !strings.HasPrefix(lines[i], "@@") {
				i++
				continue
			}
			header := utils.ParseHunkHeader(lines[i])
			if header == nil {
				return nil, errcat.Errorf(types.ErrInconsistent, "%s: bad hunk header: %s", fd.Path, lines[i])
			}
			h := Hunk{
				OldStart: header.Old.Start, OldCount: header.Old.Count,
				NewStart: header.New.Start, NewCount: header.New.Count,
			}
			i++
			i = readHunkBody(lines, i, &h)
			fd.Hunks = append(fd.Hunks, h)
		}
		out = append(out, fd)
	}
	return out, nil
}

// readHunkBody consumes body lines until the declared counts are met, then any
// no-newline markers that follow. It stops early at a line that is not part of a
// hunk body and leaves the count check to the applier.
func readHunkBody(lines []string, i int, h *Hunk) int {
	var oldSeen, newSeen int
	for i < len(lines) && (oldSeen < h.OldCount || newSeen < h.NewCount) {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, " "):
			oldSeen++
			newSeen++
		case strings.HasPrefix(line, "-"):
			oldSeen++
		case strings.HasPrefix(line, "+"):
			newSeen++
		case strings.HasPrefix(line, `\`):
		default:
			return i
		}
		h.Lines = append(h.Lines, line)
		i++
	}
	for i < len(lines) && strings.HasPrefix(lines[i], `\`) {
		h.Lines = append(h.Lines, lines[i])
		i++
	}
	return i
}

func sidePath(raw, prefix string) (string, error) {
	raw = strings.TrimSpace(raw)
	if tab := strings.IndexByte(raw, '\t'); tab >= 0 {
		raw = raw[:tab]
	}
	if raw == devNull {
		return "", nil
	}
	return utils.CleanRelPath(strings.TrimPrefix(raw, prefix))
}
