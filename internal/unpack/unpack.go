package unpack

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agusespa/codecrate/internal/codec"
	"github.com/agusespa/codecrate/internal/ids"
	"github.com/agusespa/codecrate/internal/types"
	"github.com/agusespa/codecrate/internal/utils"
	"github.com/warpfork/go-errcat"
)

type Options struct {
	// Strict turns reconstruction issues into an error instead of warnings.
	Strict bool
	// Repo selects one section of a multi-repository document by label or slug.
	Repo string
}

type File struct {
	Path string
	Text string
}

type Result struct {
	Files       []File
	Diagnostics []types.Diagnostic
}

// Warnings renders the diagnostics for display.
func (r *Result) Warnings() []string {
	out := make([]string, len(r.Diagnostics))
	for i, d := range r.Diagnostics {
		out[i] = d.String()
	}
	return out
}

// Section reconstructs every file listed in the section's manifest, in manifest order.
func Section(s *codec.Section, opts Options) (*Result, error) {
	if s.Manifest == nil {
		return nil, errcat.Errorf(types.ErrFatalInput, "repository %q has no manifest", s.Label)
	}

	result := &Result{}
	stubbed := s.Stubbed()
	for _, mf := range s.Manifest.Files {
		text, ok := s.FileText(mf.Path)
		if !ok {
			d := types.Warnf(types.CodeMissingFileBlock, mf.Path, "no file block in the document")
			if opts.Strict {
				return nil, errcat.Errorf(types.ErrInconsistent, "%s", d)
			}
			result.add(s, d)
			continue
		}

		if stubbed && len(mf.Defs) > 0 {
			var diags []types.Diagnostic
			text, diags = Reconstruct(Source{
				Path:          mf.Path,
				Stub:          text,
				Defs:          mf.Defs,
				Library:       s.Library,
				LegacyMarkers: s.Manifest.MarkerFormatVersion == "",
			})
			if opts.Strict && len(diags) > 0 {
				return nil, issuesError(mf.Path, diags)
			}
			for _, d := range diags {
				result.add(s, d)
			}
		}

		if got := ids.ContentHash(text); got != mf.SHA256Original {
			result.add(s, types.Warnf(types.CodeOriginalHashMismatch, mf.Path,
				"reconstructed content hash %s does not match manifest %s", short(got), short(mf.SHA256Original)))
		}
		result.Files = append(result.Files, File{Path: mf.Path, Text: text})
	}
	return result, nil
}

func (r *Result) add(s *codec.Section, d types.Diagnostic) {
	d.Repo = s.Label
	r.Diagnostics = append(r.Diagnostics, d)
}

func issuesError(path string, diags []types.Diagnostic) error {
	msgs := make([]string, len(diags))
	for i, d := range diags {
		msgs[i] = d.Message
	}
	return errcat.Errorf(types.ErrInconsistent, "%s: cannot reconstruct: %s", path, strings.Join(msgs, "; "))
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

// ToDir reconstructs doc and writes it under outDir. A multi-repository document
// without a selector is written as one subdirectory per repository slug.
func ToDir(doc *codec.Document, outDir string, opts Options) (*Result, error) {
	type target struct {
		section *codec.Section
		dir     string
	}

	var targets []target
	switch {
	case opts.Repo != "" || !doc.Multi():
		s, err := doc.Select(opts.Repo)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target{s, outDir})
	default:
		for _, s := range doc.Sections {
			targets = append(targets, target{s, filepath.Join(outDir, s.Slug)})
		}
	}

	total := &Result{}
	for _, tg := range targets {
		result, err := Section(tg.section, opts)
		if err != nil {
			return nil, err
		}
		for _, f := range result.Files {
			if err := writeFile(tg.dir, f); err != nil {
				return nil, err
			}
		}
		total.Files = append(total.Files, result.Files...)
		total.Diagnostics = append(total.Diagnostics, result.Diagnostics...)
	}
	return total, nil
}

func writeFile(dir string, f File) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errcat.Errorf(types.ErrIO, "failed to create %s: %s", dir, err)
	}
	target, err := utils.SafeJoin(dir, f.Path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errcat.Errorf(types.ErrIO, "failed to create directory for %s: %s", f.Path, err)
	}
	if err := os.WriteFile(target, []byte(f.Text), 0o644); err != nil {
		return errcat.Errorf(types.ErrIO, "failed to write %s: %s", f.Path, err)
	}
	return nil
}

// Summary is a one-line report of what ToDir wrote.
func Summary(r *Result, outDir string) string {
	return fmt.Sprintf("Unpacked %d file(s) into %s", len(r.Files), outDir)
}
