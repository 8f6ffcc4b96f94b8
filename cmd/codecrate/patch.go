package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/agusespa/codecrate/internal/codec"
	"github.com/agusespa/codecrate/internal/discover"
	"github.com/agusespa/codecrate/internal/pack"
	"github.com/agusespa/codecrate/internal/patch"
	"github.com/agusespa/codecrate/internal/safety"
	"github.com/agusespa/codecrate/internal/types"
	"github.com/agusespa/codecrate/internal/utils"
	"github.com/agusespa/codecrate/pkg/config"
	"github.com/spf13/cobra"
	"github.com/warpfork/go-errcat"
)

func newPatchCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		output string
		repo   string
	)

	cmd := &cobra.Command{
		Use:   "patch OLD_FILE ROOT",
		Short: "Diff a tree against the context document it was packed into",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readDocument(args[0])
			if err != nil {
				return err
			}
			doc, err := codec.Decode(text)
			if err != nil {
				return err
			}
			baseline, err := doc.Select(repo)
			if err != nil {
				return err
			}

			current, skipped, err := currentFiles(cmd, args[1], baseline.Manifest)
			if err != nil {
				return err
			}
			for _, sk := range skipped {
				warn(stderr, []string{fmt.Sprintf("left sensitive file %s out of the patch (%s)", sk.Path, sk.Reason)})
			}
			p, err := patch.Generate(baseline, current, patch.Options{})
			if err != nil {
				return err
			}
			rendered, err := patch.Render(p)
			if err != nil {
				return err
			}
			for _, d := range p.Diagnostics {
				warn(stderr, []string{d.String()})
			}

			if output == "" {
				fmt.Fprint(stdout, rendered)
				return nil
			}
			if err := writeText(output, rendered); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Wrote %s (%d file(s) changed)\n", output, len(p.Files))
			return printChangedRanges(stdout, p)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Patch file to write (default: stdout)")
	cmd.Flags().StringVar(&repo, "repo", "", "Repository label or slug of the baseline in a multi-repository document")
	return cmd
}

// currentFiles reads what the tree holds now: every discovered file plus every
// baseline path that still exists, so files outside the include globs diff too.
// Sensitive files get the same treatment pack gives them.
func currentFiles(cmd *cobra.Command, root string, manifest *codec.Manifest) ([]patch.CurrentFile, []types.SkippedFile, error) {
	cfg, err := config.LoadConfig(root)
	if err != nil {
		return nil, nil, errcat.Errorf(types.ErrUsage, "%s", err)
	}
	action, err := safety.ParseAction(cfg.SafetyAction)
	if err != nil {
		return nil, nil, err
	}
	disc, err := discover.Discover(root, discover.Options{
		Include:          cfg.Include,
		Exclude:          cfg.Exclude,
		RespectGitignore: cfg.RespectGitignore,
	})
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool)
	paths := append([]string{}, disc.Files...)
	for _, p := range paths {
		seen[p] = true
	}
	for _, mf := range manifest.Files {
		if seen[mf.Path] {
			continue
		}
		target, err := utils.SafeJoin(disc.Root, mf.Path)
		if err != nil {
			return nil, nil, err
		}
		if info, err := os.Stat(target); err == nil && info.Mode().IsRegular() {
			seen[mf.Path] = true
			paths = append(paths, mf.Path)
		}
	}
	sort.Strings(paths)

	files, err := pack.LoadFiles(cmd.Context(), disc.Root, paths, pack.LoadOptions{
		Workers:  cfg.Workers,
		Encoding: pack.EncodingReplace,
	})
	if err != nil {
		return nil, nil, err
	}
	files, skipped := pack.Partition(files, safetyFilter(cfg, action))

	current := make([]patch.CurrentFile, len(files))
	for i, f := range files {
		current[i] = patch.CurrentFile{Path: f.Path, Text: f.Text}
	}
	return current, skipped, nil
}

// printChangedRanges lists the new-side line ranges each file diff touches.
func printChangedRanges(w io.Writer, p *patch.Patch) error {
	var diffText strings.Builder
	for _, fd := range p.Files {
		text, err := patch.UnifiedDiff(fd)
		if err != nil {
			return err
		}
		diffText.WriteString(text)
	}

	ranges := utils.GetDiffContext(diffText.String())
	for _, fd := range p.Files {
		var spans []string
		for _, r := range ranges[fd.Path] {
			switch {
			case r.Count == 0:
				spans = append(spans, fmt.Sprintf("after L%d", r.Start))
			case r.Count == 1:
				spans = append(spans, fmt.Sprintf("L%d", r.Start))
			default:
				spans = append(spans, fmt.Sprintf("L%d-L%d", r.Start, r.Start+r.Count-1))
			}
		}
		if len(spans) == 0 {
			fmt.Fprintf(w, "  %s %s\n", fd.Op, fd.Path)
			continue
		}
		fmt.Fprintf(w, "  %s %s: %s\n", fd.Op, fd.Path, strings.Join(spans, ", "))
	}
	return nil
}
