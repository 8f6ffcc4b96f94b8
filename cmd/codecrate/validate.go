package main

import (
	"fmt"
	"io"

	"github.com/agusespa/codecrate/internal/pack"
	"github.com/agusespa/codecrate/internal/types"
	"github.com/agusespa/codecrate/internal/validate"
	"github.com/spf13/cobra"
)

func newValidateCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		root           string
		strict         bool
		asJSON         bool
		encodingErrors string
	)

	cmd := &cobra.Command{
		Use:   "validate-pack FILE",
		Short: "Check that a context document is internally consistent",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			encoding, err := pack.ParseEncodingPolicy(encodingErrors)
			if err != nil {
				return err
			}
			text, err := readDocument(args[0])
			if err != nil {
				return err
			}
			report, err := validate.Document(text, validate.Options{Root: root, Strict: strict, Encoding: encoding})
			if err != nil {
				return err
			}

			if asJSON {
				data, err := report.JSON()
				if err != nil {
					return err
				}
				fmt.Fprint(stdout, string(data))
			} else {
				printDiagnostics(stdout, "Warnings:", report.Warnings())
				printDiagnostics(stdout, "Errors:", report.Errors())
				if report.OK() {
					fmt.Fprintln(stdout, "OK: pack is internally consistent.")
				}
			}

			if !report.OK() {
				return fmt.Errorf("validation failed with %d error(s)", len(report.Errors()))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Also compare the reconstructed files with this directory")
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat missing and unresolved markers as errors")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.Flags().StringVar(&encodingErrors, "encoding-errors", string(pack.EncodingReplace), "Invalid UTF-8 on disk: replace or strict")
	return cmd
}

func printDiagnostics(w io.Writer, title string, diags []types.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	fmt.Fprintln(w, title)
	for _, d := range diags {
		fmt.Fprintf(w, "- [%s] %s\n", d.Code, d)
	}
}
