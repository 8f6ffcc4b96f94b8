package codec

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Sidecar carries every repository's manifest outside the document, for tools
// that do not want to parse Markdown.
type Sidecar struct {
	Format       string              `json:"format"`
	Repositories []SidecarRepository `json:"repositories"`
}

type SidecarRepository struct {
	Label          string    `json:"label"`
	Slug           string    `json:"slug"`
	ManifestSHA256 string    `json:"manifest_sha256"`
	Manifest       *Manifest `json:"manifest"`
}

// SidecarPath derives the default sidecar location from the document path:
// context.md becomes context.manifest.json.
func SidecarPath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + ".manifest.json"
}

func (s *Sidecar) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialise manifest sidecar: %w", err)
	}
	return append(data, '\n'), nil
}
