package main

import (
	"fmt"
	"io"
	"os"

	"github.com/agusespa/codecrate/internal/pack"
	"github.com/agusespa/codecrate/internal/types"
	"github.com/agusespa/codecrate/internal/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/warpfork/go-errcat"
)

var version = "dev"

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	if err == nil {
		return int(types.ExitSuccess)
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	if hint := hintFor(err); hint != "" {
		fmt.Fprintf(stderr, "Hint: %s\n", hint)
	}
	return int(types.ExitCodeFor(err))
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "codecrate",
		Short: "Pack Python repositories into round-trippable Markdown context",
		Long: `Codecrate packs a source tree into one Markdown document that an LLM can read.
Function bodies can be moved into a deduplicated library and replaced by
marker stubs; the document still reconstructs every file byte for byte.

Edits made against a pack come back as a patch document that applies to
the original tree.`,
		Version:       version,
		Args:          usageArgs(cobra.NoArgs),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return errcat.Errorf(types.ErrUsage, "%s", err)
	})

	rootCmd.AddCommand(
		newPackCmd(stdout, stderr),
		newUnpackCmd(stdout, stderr),
		newPatchCmd(stdout, stderr),
		newApplyCmd(stdout, stderr),
		newValidateCmd(stdout, stderr),
	)
	return rootCmd
}

// usageArgs reports positional argument errors as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return errcat.Errorf(types.ErrUsage, "%s", err)
		}
		return nil
	}
}

func hintFor(err error) string {
	switch types.CategoryOf(err) {
	case types.ErrUsage:
		return "run 'codecrate --help' for usage"
	case types.ErrFatalInput:
		return "the input is not a document this version can read; re-create it with 'codecrate pack'"
	case types.ErrSecurity:
		return "paths in packs and patches must stay inside the target root"
	case types.ErrInconsistent:
		return "run 'codecrate validate-pack' on the document for a full report"
	default:
		return ""
	}
}

// readDocument loads a pack or patch document with invalid bytes replaced.
func readDocument(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errcat.Errorf(types.ErrUsage, "cannot read %s: %s", path, err)
	}
	text, err := pack.Decode(data, pack.EncodingReplace)
	if err != nil {
		return "", errcat.Errorf(types.ErrIO, "cannot decode %s: %s", path, err)
	}
	return utils.NormalizeNewlines(text), nil
}

func writeText(path, text string) error {
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return errcat.Errorf(types.ErrIO, "failed to write %s: %s", path, err)
	}
	return nil
}

func warn(stderr io.Writer, messages []string) {
	for _, m := range messages {
		fmt.Fprintf(stderr, "Warning: %s\n", m)
	}
}
