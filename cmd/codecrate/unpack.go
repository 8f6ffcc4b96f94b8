package main

import (
	"fmt"
	"io"

	"github.com/agusespa/codecrate/internal/codec"
	"github.com/agusespa/codecrate/internal/types"
	"github.com/agusespa/codecrate/internal/unpack"
	"github.com/spf13/cobra"
	"github.com/warpfork/go-errcat"
)

func newUnpackCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		outDir string
		repo   string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "unpack FILE -o DIR",
		Short: "Reconstruct the original files of a context document",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outDir == "" {
				return errcat.Errorf(types.ErrUsage, "unpack: -o DIR is required")
			}
			text, err := readDocument(args[0])
			if err != nil {
				return err
			}
			doc, err := codec.Decode(text)
			if err != nil {
				return err
			}

			result, err := unpack.ToDir(doc, outDir, unpack.Options{Strict: strict, Repo: repo})
			if err != nil {
				return err
			}
			warn(stderr, result.Warnings())
			fmt.Fprintln(stdout, unpack.Summary(result, outDir))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "output", "o", "", "Directory to write the files into")
	cmd.Flags().StringVar(&repo, "repo", "", "Repository label or slug to unpack from a multi-repository document")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail on missing or unresolved markers")
	return cmd
}
