package patch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agusespa/codecrate/internal/ids"
	"github.com/agusespa/codecrate/internal/types"
	"github.com/agusespa/codecrate/internal/utils"
	"github.com/warpfork/go-errcat"
)

// BaselinePolicy decides whether a patch is checked against the tree it is applied to.
type BaselinePolicy string

const (
	BaselineAuto    BaselinePolicy = "auto"
	BaselineRequire BaselinePolicy = "require"
	BaselineIgnore  BaselinePolicy = "ignore"
)

const maxReportedMismatches = 5

func ParseBaselinePolicy(s string) (BaselinePolicy, error) {
	switch p := BaselinePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return BaselineAuto, nil
	case BaselineAuto, BaselineRequire, BaselineIgnore:
		return p, nil
	default:
		return "", errcat.Errorf(types.ErrUsage, "unknown baseline policy %q (want auto, require or ignore)", s)
	}
}

type ApplyOptions struct {
	Policy BaselinePolicy
	Meta   *Meta
	DryRun bool
}

type ApplyResult struct {
	Changed []string
	Deleted []string
}

type plannedWrite struct {
	path   string
	target string
	text   string
	delete bool
}

// Apply applies diffs under root. Every file is computed in memory first; nothing
// is written unless all of them succeed.
func Apply(diffs []FileDiff, root string, opts ApplyOptions) (*ApplyResult, error) {
	policy := opts.Policy
	if policy == "" {
		policy = BaselineAuto
	}
	if err := verifyBaseline(diffs, root, policy, opts.Meta); err != nil {
		return nil, err
	}

	var plan []plannedWrite
	for _, fd := range diffs {
		target, err := utils.SafeJoin(root, fd.Path)
		if err != nil {
			return nil, err
		}
		if fd.Op == OpDelete {
			plan = append(plan, plannedWrite{path: fd.Path, target: target, delete: true})
			continue
		}

		old := ""
		if fd.Op == OpModify {
			data, err := os.ReadFile(target)
			if err != nil {
				return nil, errcat.Errorf(types.ErrIO, "%s: cannot read file to patch: %s", fd.Path, err)
			}
			old = utils.NormalizeNewlines(string(data))
		}
		text, err := ApplyToText(old, fd.Hunks)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fd.Path, err)
		}
		plan = append(plan, plannedWrite{path: fd.Path, target: target, text: text})
	}

	result := &ApplyResult{}
	for _, w := range plan {
		if w.delete {
			result.Deleted = append(result.Deleted, w.path)
		} else {
			result.Changed = append(result.Changed, w.path)
		}
		if opts.DryRun {
			continue
		}
		if err := write(root, w); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func write(root string, w plannedWrite) error {
	// Re-resolve right before touching the filesystem.
	target, err := utils.SafeJoin(root, w.path)
	if err != nil {
		return err
	}
	if w.delete {
		if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errcat.Errorf(types.ErrIO, "%s: failed to delete: %s", w.path, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errcat.Errorf(types.ErrIO, "%s: failed to create parent directory: %s", w.path, err)
	}
	if err := os.WriteFile(target, []byte(w.text), 0o644); err != nil {
		return errcat.Errorf(types.ErrIO, "%s: failed to write: %s", w.path, err)
	}
	return nil
}

func verifyBaseline(diffs []FileDiff, root string, policy BaselinePolicy, meta *Meta) error {
	if policy == BaselineIgnore {
		return nil
	}
	hasBaseline := meta != nil && len(meta.BaselineFiles) > 0
	if !hasBaseline {
		if policy == BaselineRequire {
			return errcat.Errorf(types.ErrInconsistent, "baseline verification required but the patch carries no baseline metadata")
		}
		return nil
	}

	var mismatches []string
	for _, fd := range diffs {
		target, err := utils.SafeJoin(root, fd.Path)
		if err != nil {
			return err
		}
		data, readErr := os.ReadFile(target)
		exists := readErr == nil

		if fd.Op == OpAdd {
			if exists {
				mismatches = append(mismatches, fmt.Sprintf("%s: expected absent for add, but the file exists", fd.Path))
			}
			continue
		}

		expected, ok := meta.BaselineFiles[fd.Path]
		switch {
		case !ok:
			mismatches = append(mismatches, fmt.Sprintf("%s: not recorded in the baseline", fd.Path))
		case !exists:
			mismatches = append(mismatches, fmt.Sprintf("%s: missing on disk", fd.Path))
		case ids.ContentHash(string(data)) != expected:
			mismatches = append(mismatches, fmt.Sprintf("%s: content differs from the baseline", fd.Path))
		}
	}

	if len(mismatches) == 0 {
		return nil
	}
	sort.Strings(mismatches)
	shown := mismatches[:min(len(mismatches), maxReportedMismatches)]
	msg := strings.Join(shown, "; ")
	if rest := len(mismatches) - len(shown); rest > 0 {
		msg += fmt.Sprintf("; and %d more", rest)
	}
	return errcat.Errorf(types.ErrInconsistent, "baseline verification failed: %s", msg)
}

// ApplyToText applies hunks in order to old. Context and deleted lines must match
// exactly and every hunk must consume and produce exactly its declared counts.
func ApplyToText(old string, hunks []Hunk) (string, error) {
	oldLines, oldTrailing := utils.SplitLines(utils.NormalizeNewlines(old))
	var out []string
	pos := 0
	trailing := oldTrailing

	for _, h := range hunks {
		header := h.Header()
		start := h.OldStart
		if h.OldCount > 0 {
			start--
		}
		if start < pos {
			return "", errcat.Errorf(types.ErrInconsistent, "%s: overlapping hunks", header)
		}
		if start > len(oldLines) {
			return "", errcat.Errorf(types.ErrInconsistent, "%s: hunk start out of range (file has %d lines)", header, len(oldLines))
		}
		out = append(out, oldLines[pos:start]...)
		pos = start

		var consumed, produced int
		var prev byte
		for _, line := range h.Lines {
			if strings.HasPrefix(line, `\`) {
				switch prev {
				case ' ', '+':
					trailing = false
				case 0:
					return "", errcat.Errorf(types.ErrInconsistent, "%s: dangling no-newline marker", header)
				}
				continue
			}
			if line == "" {
				return "", errcat.Errorf(types.ErrInconsistent, "%s: empty line in hunk body", header)
			}

			tag, payload := line[0], line[1:]
			switch tag {
			case ' ', '-':
				if pos >= len(oldLines) || oldLines[pos] != payload {
					actual := "<EOF>"
					if pos < len(oldLines) {
						actual = oldLines[pos]
					}
					kind := "context"
					if tag == '-' {
						kind = "delete"
					}
					return "", errcat.Errorf(types.ErrInconsistent, "%s: %s mismatch at line %d; expected %q, got %q", header, kind, pos+1, payload, actual)
				}
				pos++
				consumed++
				if tag == ' ' {
					out = append(out, payload)
					produced++
					trailing = true
				}
			case '+':
				out = append(out, payload)
				produced++
				trailing = true
			default:
				return "", errcat.Errorf(types.ErrInconsistent, "%s: unexpected diff line tag %q", header, string(tag))
			}
			prev = tag
		}

		if consumed != h.OldCount {
			return "", errcat.Errorf(types.ErrInconsistent, "%s: hunk old-line count mismatch (expected %d, got %d)", header, h.OldCount, consumed)
		}
		if produced != h.NewCount {
			return "", errcat.Errorf(types.ErrInconsistent, "%s: hunk new-line count mismatch (expected %d, got %d)", header, h.NewCount, produced)
		}
	}

	if pos < len(oldLines) {
		out = append(out, oldLines[pos:]...)
		trailing = oldTrailing
	}
	if len(out) == 0 {
		return "", nil
	}
	return utils.JoinLines(out, trailing), nil
}
