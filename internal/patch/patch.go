// Package patch generates and applies line diffs between a baseline pack and a
// working tree.
package patch

import (
	"sort"

	"github.com/agusespa/codecrate/internal/codec"
	"github.com/agusespa/codecrate/internal/ids"
	"github.com/agusespa/codecrate/internal/types"
	"github.com/agusespa/codecrate/internal/unpack"
	"github.com/warpfork/go-errcat"
)

const PatchFormat = "codecrate.patch.v1"

type Op string

const (
	OpAdd    Op = "add"
	OpModify Op = "modify"
	OpDelete Op = "delete"
)

// Meta ties a patch to the baseline it was computed against.
type Meta struct {
	Format                 string            `json:"format"`
	BaselineManifestSHA256 string            `json:"baseline_manifest_sha256,omitempty"`
	BaselineFiles          map[string]string `json:"baseline_files,omitempty"`
}

type FileDiff struct {
	Path  string
	Op    Op
	Hunks []Hunk
}

type Patch struct {
	Meta  Meta
	Files []FileDiff
	// Diagnostics are reconstruction warnings raised while rebuilding the baseline.
	Diagnostics []types.Diagnostic
}

// CurrentFile is the working-tree state of one path.
type CurrentFile struct {
	Path string
	Text string
}

type Options struct {
	Context int
}

// Generate diffs every baseline file against current. Baseline files absent from
// current are deletions; current files absent from the baseline are additions.
func Generate(baseline *codec.Section, current []CurrentFile, opts Options) (*Patch, error) {
	if baseline.Manifest == nil {
		return nil, errcat.Errorf(types.ErrFatalInput, "baseline %q has no manifest", baseline.Label)
	}
	context := opts.Context
	if context <= 0 {
		context = defaultContext
	}

	hash, err := baseline.Manifest.Hash()
	if err != nil {
		return nil, err
	}
	p := &Patch{Meta: Meta{
		Format:                 PatchFormat,
		BaselineManifestSHA256: hash,
		BaselineFiles:          make(map[string]string),
	}}

	original, err := unpack.Section(baseline, unpack.Options{})
	if err != nil {
		return nil, err
	}
	p.Diagnostics = original.Diagnostics
	before := make(map[string]string, len(original.Files))
	for _, f := range original.Files {
		before[f.Path] = f.Text
		p.Meta.BaselineFiles[f.Path] = ids.ContentHash(f.Text)
	}

	after := make(map[string]string, len(current))
	for _, f := range current {
		after[f.Path] = f.Text
	}

	for _, f := range original.Files {
		text, ok := after[f.Path]
		op := OpModify
		if !ok {
			op = OpDelete
		}
		if hunks := buildHunks(f.Text, text, context); len(hunks) > 0 {
			p.Files = append(p.Files, FileDiff{Path: f.Path, Op: op, Hunks: hunks})
		} else if op == OpDelete {
			// An empty file that disappeared still needs a delete entry.
			p.Files = append(p.Files, FileDiff{Path: f.Path, Op: op})
		}
	}

	var added []string
	for path := range after {
		if _, ok := before[path]; !ok {
			added = append(added, path)
		}
	}
	sort.Strings(added)
	for _, path := range added {
		p.Files = append(p.Files, FileDiff{Path: path, Op: OpAdd, Hunks: buildHunks("", after[path], context)})
	}
	return p, nil
}
