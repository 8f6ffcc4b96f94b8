package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agusespa/codecrate/internal/ids"
	"github.com/agusespa/codecrate/internal/types"
	"github.com/warpfork/go-errcat"
)

// Wire format constants shared by encoder and decoder.
const (
	PackFormat    = "codecrate.v4"
	SidecarFormat = "codecrate.manifest-json.v1"

	MachineHeaderInfo = "codecrate-machine-header"
	ManifestInfo      = "codecrate-manifest"
)

type Layout string

const (
	LayoutAuto  Layout = "auto"
	LayoutStubs Layout = "stubs"
	LayoutFull  Layout = "full"
)

func ParseLayout(s string) (Layout, error) {
	switch l := Layout(strings.ToLower(strings.TrimSpace(s))); l {
	case "":
		return LayoutAuto, nil
	case LayoutAuto, LayoutStubs, LayoutFull:
		return l, nil
	default:
		return "", errcat.Errorf(types.ErrUsage, "unknown layout %q (want auto, stubs or full)", s)
	}
}

// ResolveLayout turns auto into stubs when at least one definition was stubbed.
func ResolveLayout(layout Layout, pack *types.PackResult) Layout {
	if layout != LayoutAuto && layout != "" {
		return layout
	}
	for _, f := range pack.Files {
		if f.HasStubs() {
			return LayoutStubs
		}
	}
	return LayoutFull
}

type Manifest struct {
	Format              string         `json:"format"`
	IDFormatVersion     string         `json:"id_format_version,omitempty"`
	MarkerFormatVersion string         `json:"marker_format_version,omitempty"`
	Layout              Layout         `json:"layout,omitempty"`
	Root                string         `json:"root"`
	Files               []ManifestFile `json:"files"`
}

type ManifestFile struct {
	Path              string           `json:"path"`
	Module            string           `json:"module,omitempty"`
	Language          string           `json:"language,omitempty"`
	LineCount         int              `json:"line_count"`
	SHA256Original    string           `json:"sha256_original"`
	SHA256Stubbed     string           `json:"sha256_stubbed,omitempty"`
	NoTrailingNewline bool             `json:"no_trailing_newline,omitempty"`
	Redacted          bool             `json:"redacted,omitempty"`
	Classes           []ManifestClass  `json:"classes,omitempty"`
	Defs              []ManifestDef    `json:"defs,omitempty"`
	Symbols           []ManifestSymbol `json:"symbols,omitempty"`
}

type ManifestClass struct {
	QualName       string `json:"qualname"`
	ID             string `json:"id"`
	DecoratorStart int    `json:"decorator_start"`
	ClassLine      int    `json:"class_line"`
	EndLine        int    `json:"end_line"`
}

type ManifestDef struct {
	QualName       string `json:"qualname"`
	ID             string `json:"id"`
	LocalID        string `json:"local_id"`
	Kind           string `json:"kind"`
	DecoratorStart int    `json:"decorator_start"`
	DefLine        int    `json:"def_line"`
	BodyStart      int    `json:"body_start"`
	EndLine        int    `json:"end_line"`
	DocStart       int    `json:"doc_start,omitempty"`
	DocEnd         int    `json:"doc_end,omitempty"`
	IsSingleLine   bool   `json:"is_single_line,omitempty"`
	// HasMarker is absent in documents written before markerless definitions were tracked.
	HasMarker *bool `json:"has_marker,omitempty"`
}

// Marked reports whether the stub is expected to carry a marker for this definition.
func (d ManifestDef) Marked() bool {
	return d.HasMarker == nil || *d.HasMarker
}

type ManifestSymbol struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	ID        string `json:"id"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// BuildManifest summarises pack. The full layout writes the minimal form without
// definition metadata.
func BuildManifest(pack *types.PackResult, layout Layout) *Manifest {
	m := &Manifest{
		Format:              PackFormat,
		IDFormatVersion:     ids.IDFormatVersion,
		MarkerFormatVersion: ids.MarkerFormatVersion,
		Layout:              layout,
		Root:                pack.Label,
		Files:               make([]ManifestFile, 0, len(pack.Files)),
	}

	for _, f := range pack.Files {
		mf := ManifestFile{
			Path:              f.Path,
			Module:            f.Module,
			Language:          f.Language,
			LineCount:         f.LineCount,
			SHA256Original:    ids.ContentHash(f.Original),
			NoTrailingNewline: f.Original != "" && !strings.HasSuffix(f.Original, "\n"),
			Redacted:          f.Redacted,
		}
		for _, s := range f.Symbols {
			mf.Symbols = append(mf.Symbols, ManifestSymbol{
				Name: s.Name, Kind: string(s.Kind), ID: s.ID, StartLine: s.StartLine, EndLine: s.EndLine,
			})
		}
		if layout == LayoutStubs {
			mf.SHA256Stubbed = ids.ContentHash(f.Stubbed)
			for _, c := range f.Classes {
				mf.Classes = append(mf.Classes, ManifestClass{
					QualName: c.QualName, ID: c.ID, DecoratorStart: c.DecoratorStart, ClassLine: c.ClassLine, EndLine: c.EndLine,
				})
			}
			for _, d := range f.Defs {
				hasMarker := d.HasMarker
				mf.Defs = append(mf.Defs, ManifestDef{
					QualName:       d.QualName,
					ID:             d.CanonicalID,
					LocalID:        d.LocalID,
					Kind:           string(d.Kind),
					DecoratorStart: d.DecoratorStart,
					DefLine:        d.DefLine,
					BodyStart:      d.BodyStart,
					EndLine:        d.EndLine,
					DocStart:       d.DocStart,
					DocEnd:         d.DocEnd,
					IsSingleLine:   d.IsSingleLine,
					HasMarker:      &hasMarker,
				})
			}
		}
		m.Files = append(m.Files, mf)
	}
	return m
}

// Hash is the sha256 of the compact JSON form of the manifest.
func (m *Manifest) Hash() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to serialise manifest: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (m *Manifest) File(path string) (*ManifestFile, bool) {
	for i := range m.Files {
		if m.Files[i].Path == path {
			return &m.Files[i], true
		}
	}
	return nil, false
}

// Stubbed reports whether file blocks hold stubs rather than full text.
func (m *Manifest) Stubbed() bool {
	if m.Layout != "" {
		return m.Layout == LayoutStubs
	}
	for _, f := range m.Files {
		if len(f.Defs) > 0 {
			return true
		}
	}
	return false
}

// CheckFormat rejects documents whose format tags this decoder does not speak.
func (m *Manifest) CheckFormat() error {
	if m.Format != PackFormat {
		return errcat.Errorf(types.ErrFatalInput, "unsupported format: manifest format %q (want %q)", m.Format, PackFormat)
	}
	if m.IDFormatVersion != "" && m.IDFormatVersion != ids.IDFormatVersion {
		return errcat.Errorf(types.ErrFatalInput, "unsupported format: id_format_version %q (want %q)", m.IDFormatVersion, ids.IDFormatVersion)
	}
	if m.MarkerFormatVersion != "" && m.MarkerFormatVersion != ids.MarkerFormatVersion {
		return errcat.Errorf(types.ErrFatalInput, "unsupported format: marker_format_version %q (want %q)", m.MarkerFormatVersion, ids.MarkerFormatVersion)
	}
	return nil
}

type MachineHeader struct {
	Format         string `json:"format"`
	PackGroup      string `json:"pack_group"`
	ManifestSHA256 string `json:"manifest_sha256"`
}
