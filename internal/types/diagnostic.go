package types

import "fmt"

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic codes reported by reconstruction and validation.
const (
	CodeManifestSchema       = "manifest-schema"
	CodeMachineHeader        = "machine-header"
	CodeManifestCount        = "manifest-count"
	CodeHeaderCount          = "header-count"
	CodeMissingFileBlock     = "missing-file-block"
	CodeUnexpectedFileBlock  = "file-block-not-in-manifest"
	CodeDuplicateFileBlock   = "duplicate-file-block"
	CodeOrphanLibraryEntry   = "orphan-library-entry"
	CodeMissingCanonical     = "missing-canonical"
	CodeStubHashMismatch     = "stub-hash-mismatch"
	CodeOriginalHashMismatch = "original-hash-mismatch"
	CodeMissingMarker        = "missing-marker"
	CodeUnresolvedMarker     = "unresolved-marker"
	CodeMarkerCollision      = "marker-collision"
	CodeLineCountMismatch    = "line-count-mismatch"
	CodeDiskMissing          = "disk-missing"
	CodeDiskMismatch         = "disk-mismatch"
	CodeDiskDecode           = "disk-decode"
	CodeAnchorCollision      = "anchor-collision"
	CodeEmptySection         = "empty-section"
)

// Diagnostic is a structured error or warning about a pack.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Path     string   `json:"path,omitempty"`
	Repo     string   `json:"repo,omitempty"`
}

func (d Diagnostic) String() string {
	msg := d.Message
	if d.Path != "" {
		msg = fmt.Sprintf("%s: %s", d.Path, msg)
	}
	if d.Repo != "" {
		msg = fmt.Sprintf("[%s] %s", d.Repo, msg)
	}
	return msg
}

func Errorf(code, path, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityError, Code: code, Path: path, Message: fmt.Sprintf(format, args...)}
}

func Warnf(code, path, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Code: code, Path: path, Message: fmt.Sprintf(format, args...)}
}

// Promote returns a copy of diags where the listed codes are raised to errors.
func Promote(diags []Diagnostic, codes ...string) []Diagnostic {
	out := make([]Diagnostic, len(diags))
	for i, d := range diags {
		for _, c := range codes {
			if d.Code == c {
				d.Severity = SeverityError
				break
			}
		}
		out[i] = d
	}
	return out
}
