package main

import (
	"fmt"
	"io"

	"github.com/agusespa/codecrate/internal/patch"
	"github.com/spf13/cobra"
)

func newApplyCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		baseline string
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "apply PATCH_FILE ROOT",
		Short: "Apply a patch document to a tree",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := patch.ParseBaselinePolicy(baseline)
			if err != nil {
				return err
			}
			text, err := readDocument(args[0])
			if err != nil {
				return err
			}
			meta, diffText, err := patch.ParseDocument(text)
			if err != nil {
				return err
			}
			diffs, err := patch.ParseUnifiedDiff(diffText)
			if err != nil {
				return err
			}
			if meta == nil && policy == patch.BaselineAuto {
				fmt.Fprintln(stderr, "Warning: patch has no baseline metadata; applying without verification")
			}

			result, err := patch.Apply(diffs, args[1], patch.ApplyOptions{Policy: policy, Meta: meta, DryRun: dryRun})
			if err != nil {
				return err
			}

			if dryRun {
				fmt.Fprintf(stdout, "Dry run: patch applies cleanly to %d file(s).\n", len(result.Changed)+len(result.Deleted))
			} else {
				fmt.Fprintf(stdout, "Applied patch to %d file(s).\n", len(result.Changed)+len(result.Deleted))
			}
			for _, p := range result.Deleted {
				fmt.Fprintf(stdout, "  deleted %s\n", p)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseline, "baseline", string(patch.BaselineAuto), "Baseline verification: auto, require or ignore")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Check that the patch applies without writing anything")
	return cmd
}
