// Package validate checks that a packed document is internally consistent and,
// optionally, that it matches a tree on disk.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agusespa/codecrate/internal/codec"
	"github.com/agusespa/codecrate/internal/ids"
	"github.com/agusespa/codecrate/internal/pack"
	"github.com/agusespa/codecrate/internal/types"
	"github.com/agusespa/codecrate/internal/unpack"
	"github.com/agusespa/codecrate/internal/utils"
)

type Options struct {
	// Root, when set, is compared against the reconstructed files. Multi-repository
	// documents use one subdirectory per repository slug.
	Root     string
	Strict   bool
	Encoding pack.EncodingPolicy
}

// strictCodes are warnings that strict mode treats as errors.
var strictCodes = []string{types.CodeMissingMarker, types.CodeUnresolvedMarker}

type Report struct {
	Diagnostics []types.Diagnostic `json:"diagnostics"`
}

func (r *Report) Errors() []types.Diagnostic {
	return r.filter(types.SeverityError)
}

func (r *Report) Warnings() []types.Diagnostic {
	return r.filter(types.SeverityWarning)
}

func (r *Report) filter(sev types.Severity) []types.Diagnostic {
	var out []types.Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == sev {
			out = append(out, d)
		}
	}
	return out
}

func (r *Report) OK() bool {
	return len(r.Errors()) == 0
}

func (r *Report) JSON() ([]byte, error) {
	payload := struct {
		OK          bool               `json:"ok"`
		Errors      int                `json:"errors"`
		Warnings    int                `json:"warnings"`
		Diagnostics []types.Diagnostic `json:"diagnostics"`
	}{r.OK(), len(r.Errors()), len(r.Warnings()), r.Diagnostics}
	if payload.Diagnostics == nil {
		payload.Diagnostics = []types.Diagnostic{}
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialise report: %w", err)
	}
	return append(data, '\n'), nil
}

// Document validates every repository section of text. It fails only when the
// document cannot be parsed at all.
func Document(text string, opts Options) (*Report, error) {
	doc, err := codec.Parse(text)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	anchorOwner := make(map[string]string)
	for _, s := range doc.Sections {
		if s.ManifestCount == 0 && len(s.FileBlocks) == 0 && len(s.Library) == 0 {
			report.add(s, types.Errorf(types.CodeEmptySection, "", "repository section is empty"))
			continue
		}

		scope := fmt.Sprintf("%s (%s)", s.Label, s.Slug)
		for _, anchor := range s.Anchors {
			owner, seen := anchorOwner[anchor]
			if !seen {
				anchorOwner[anchor] = scope
				continue
			}
			if owner != scope {
				report.add(s, types.Errorf(types.CodeAnchorCollision, "", "anchor %q also used by %s", anchor, owner))
			}
		}

		sectionOpts := opts
		if opts.Root != "" && doc.Multi() {
			sectionOpts.Root = filepath.Join(opts.Root, s.Slug)
		}
		for _, d := range Section(s, sectionOpts) {
			report.add(s, d)
		}
	}
	return report, nil
}

func (r *Report) add(s *codec.Section, d types.Diagnostic) {
	d.Repo = s.Label
	r.Diagnostics = append(r.Diagnostics, d)
}

// Section runs every check on one repository section.
func Section(s *codec.Section, opts Options) []types.Diagnostic {
	var diags []types.Diagnostic

	if s.ManifestCount != 1 {
		diags = append(diags, types.Errorf(types.CodeManifestCount, "",
			"expected exactly one %s block, found %d", codec.ManifestInfo, s.ManifestCount))
	}
	if s.HeaderCount != 1 {
		diags = append(diags, types.Errorf(types.CodeHeaderCount, "",
			"expected exactly one %s block, found %d", codec.MachineHeaderInfo, s.HeaderCount))
	}
	if s.ManifestErr != nil {
		diags = append(diags, types.Errorf(types.CodeManifestSchema, "", "%s", s.ManifestErr))
	}
	if s.Manifest == nil {
		return diags
	}

	diags = append(diags, checkSchema(s.Manifest)...)
	diags = append(diags, checkHeader(s)...)
	diags = append(diags, checkStructure(s)...)

	markerOwners := make(map[string][]string)
	for _, mf := range s.Manifest.Files {
		fileDiags, markers := checkFile(s, mf, opts)
		diags = append(diags, fileDiags...)
		for _, id := range markers {
			markerOwners[id] = append(markerOwners[id], mf.Path)
		}
	}

	markerIDs := make([]string, 0, len(markerOwners))
	for id := range markerOwners {
		markerIDs = append(markerIDs, id)
	}
	sort.Strings(markerIDs)
	for _, id := range markerIDs {
		if owners := markerOwners[id]; len(owners) > 1 {
			diags = append(diags, types.Warnf(types.CodeMarkerCollision, "",
				"marker %s appears in several files: %s", id, strings.Join(owners, ", ")))
		}
	}

	if opts.Strict {
		diags = types.Promote(diags, strictCodes...)
	}
	return diags
}

func checkSchema(m *codec.Manifest) []types.Diagnostic {
	var diags []types.Diagnostic
	schema := func(path, format string, args ...any) {
		diags = append(diags, types.Errorf(types.CodeManifestSchema, path, format, args...))
	}

	if err := m.CheckFormat(); err != nil {
		schema("", "%s", err)
	}
	for i, f := range m.Files {
		if strings.TrimSpace(f.Path) == "" {
			schema("", "file[%d] has an empty path", i)
		}
		if f.LineCount < 0 {
			schema(f.Path, "invalid line_count %d", f.LineCount)
		}
		if !ids.IsContentHash(f.SHA256Original) {
			schema(f.Path, "invalid sha256_original %q", f.SHA256Original)
		}
		if f.SHA256Stubbed != "" && !ids.IsContentHash(f.SHA256Stubbed) {
			schema(f.Path, "invalid sha256_stubbed %q", f.SHA256Stubbed)
		}
		if len(f.Defs) > 0 && f.SHA256Stubbed == "" {
			schema(f.Path, "sha256_stubbed is required when defs are listed")
		}
		for j, d := range f.Defs {
			if d.ID == "" {
				schema(f.Path, "def[%d] has an empty id", j)
			}
			if d.LocalID == "" {
				schema(f.Path, "def[%d] has an empty local_id", j)
			}
			if d.QualName == "" {
				schema(f.Path, "def[%d] has an empty qualname", j)
			}
		}
	}
	return diags
}

func checkHeader(s *codec.Section) []types.Diagnostic {
	if s.HeaderErr != nil {
		return []types.Diagnostic{types.Errorf(types.CodeMachineHeader, "", "%s", s.HeaderErr)}
	}
	if s.Header == nil {
		return nil
	}

	var diags []types.Diagnostic
	if s.Header.Format != "" && s.Header.Format != s.Manifest.Format {
		diags = append(diags, types.Errorf(types.CodeMachineHeader, "",
			"machine header format %q does not match manifest format %q", s.Header.Format, s.Manifest.Format))
	}
	want, err := s.Manifest.Hash()
	switch {
	case err != nil:
		diags = append(diags, types.Errorf(types.CodeMachineHeader, "", "%s", err))
	case s.Header.ManifestSHA256 == "":
		diags = append(diags, types.Errorf(types.CodeMachineHeader, "", "machine header is missing manifest_sha256"))
	case s.Header.ManifestSHA256 != want:
		diags = append(diags, types.Errorf(types.CodeMachineHeader, "",
			"machine header checksum mismatch: expected %s, got %s", want, s.Header.ManifestSHA256))
	}
	return diags
}

func checkStructure(s *codec.Section) []types.Diagnostic {
	var diags []types.Diagnostic

	dups := append([]string(nil), s.FileDuplicates...)
	sort.Strings(dups)
	for _, p := range dups {
		diags = append(diags, types.Errorf(types.CodeDuplicateFileBlock, p, "duplicate file block"))
	}

	listed := make(map[string]bool, len(s.Manifest.Files))
	referenced := make(map[string]bool)
	for _, f := range s.Manifest.Files {
		listed[f.Path] = true
		if _, ok := s.FileBlocks[f.Path]; !ok {
			diags = append(diags, types.Errorf(types.CodeMissingFileBlock, f.Path, "manifest file has no file block"))
		}
		for _, d := range f.Defs {
			referenced[strings.ToUpper(d.ID)] = true
		}
	}
	for _, p := range s.FileOrder {
		if !listed[p] {
			diags = append(diags, types.Errorf(types.CodeUnexpectedFileBlock, p, "file block is not listed in the manifest"))
		}
	}

	orphans := make([]string, 0)
	for _, id := range s.LibraryOrder {
		if !referenced[id] {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	for _, id := range orphans {
		diags = append(diags, types.Errorf(types.CodeOrphanLibraryEntry, "", "function library entry %s is not referenced by any definition", id))
	}
	return diags
}

// checkFile validates one manifest entry and returns the marker ids found in its block.
func checkFile(s *codec.Section, mf codec.ManifestFile, opts Options) ([]types.Diagnostic, []string) {
	text, ok := s.FileText(mf.Path)
	if !ok {
		return nil, nil
	}
	var diags []types.Diagnostic

	if mf.SHA256Stubbed != "" {
		if got := ids.ContentHash(text); got != mf.SHA256Stubbed {
			diags = append(diags, types.Errorf(types.CodeStubHashMismatch, mf.Path,
				"stub hash mismatch: expected %s, got %s", mf.SHA256Stubbed, got))
		}
	}

	lines, _ := utils.SplitLines(text)
	counts := make(map[string]int)
	var markers []string
	for _, hit := range ids.ScanMarkers(lines) {
		if counts[hit.ID] == 0 {
			markers = append(markers, hit.ID)
		}
		counts[hit.ID]++
	}
	var repeated []string
	for _, id := range markers {
		if counts[id] > 1 {
			repeated = append(repeated, id)
		}
	}
	if len(repeated) > 0 {
		sort.Strings(repeated)
		diags = append(diags, types.Warnf(types.CodeMarkerCollision, mf.Path,
			"marker collision: %s", strings.Join(repeated, ", ")))
	}

	legacy := s.Manifest.MarkerFormatVersion == ""
	for _, d := range mf.Defs {
		if _, ok := s.Library[strings.ToUpper(d.ID)]; !ok {
			diags = append(diags, types.Errorf(types.CodeMissingCanonical, mf.Path,
				"no canonical source for %s (id %s)", d.QualName, d.ID))
		}
		if !d.Marked() {
			continue
		}
		found := counts[strings.ToUpper(d.LocalID)] > 0
		if !found && legacy {
			found = counts[strings.ToUpper(d.ID)] > 0
		}
		if !found {
			diags = append(diags, types.Warnf(types.CodeMissingMarker, mf.Path,
				"missing marker for %s (local_id %s, id %s)", d.QualName, d.LocalID, d.ID))
		}
	}

	original := text
	if s.Stubbed() && len(mf.Defs) > 0 {
		var issues []types.Diagnostic
		original, issues = unpack.Reconstruct(unpack.Source{
			Path:          mf.Path,
			Stub:          text,
			Defs:          mf.Defs,
			Library:       s.Library,
			LegacyMarkers: legacy,
		})
		for _, issue := range issues {
			// Missing canonicals and markers are reported above.
			if issue.Code == types.CodeUnresolvedMarker {
				diags = append(diags, issue)
			}
		}
	}

	if got := ids.ContentHash(original); got != mf.SHA256Original {
		diags = append(diags, types.Errorf(types.CodeOriginalHashMismatch, mf.Path,
			"original hash mismatch: expected %s, got %s", mf.SHA256Original, got))
	} else if n := utils.CountLines(original); n != mf.LineCount {
		diags = append(diags, types.Errorf(types.CodeLineCountMismatch, mf.Path,
			"line count mismatch: manifest says %d, file has %d", mf.LineCount, n))
	}

	if opts.Root != "" {
		diags = append(diags, checkDisk(opts, mf.Path, original)...)
	}
	return diags, markers
}

func checkDisk(opts Options, path, original string) []types.Diagnostic {
	target, err := utils.SafeJoin(opts.Root, path)
	if err != nil {
		return []types.Diagnostic{types.Errorf(types.CodeDiskMissing, path, "%s", err)}
	}
	data, err := os.ReadFile(target)
	if errors.Is(err, os.ErrNotExist) {
		return []types.Diagnostic{types.Warnf(types.CodeDiskMissing, path, "file missing under %s", opts.Root)}
	}
	if err != nil {
		return []types.Diagnostic{types.Errorf(types.CodeDiskDecode, path, "cannot read on-disk file: %s", err)}
	}
	disk, err := pack.Decode(data, opts.Encoding)
	if err != nil {
		return []types.Diagnostic{types.Errorf(types.CodeDiskDecode, path,
			"cannot decode on-disk file (encoding_errors=%s): %s", opts.Encoding, err)}
	}
	if ids.ContentHash(disk) != ids.ContentHash(original) {
		return []types.Diagnostic{types.Warnf(types.CodeDiskMismatch, path, "on-disk file differs from the pack")}
	}
	return nil
}
