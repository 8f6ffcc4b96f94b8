package codec

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/agusespa/codecrate/internal/types"
	"github.com/agusespa/codecrate/internal/utils"
	"github.com/warpfork/go-errcat"
)

const (
	headingLibrary = "Function Library"
	headingFiles   = "Files"
)

var (
	fileHeading = regexp.MustCompile("^`(.+)`(?:\\s+\\(L\\d+[–-]L\\d+\\))?\\s*$")
	anchorTag   = regexp.MustCompile(`<a id="([^"]+)"></a>`)
)

// Section is the decoded content of one repository. Parsing is tolerant: problems
// are recorded on the section so that validation can report all of them.
type Section struct {
	Label string
	Slug  string

	Manifest      *Manifest
	ManifestErr   error
	ManifestCount int

	Header      *MachineHeader
	HeaderErr   error
	HeaderCount int

	Library           map[string]string
	LibraryOrder      []string
	LibraryDuplicates []string

	FileBlocks     map[string]string
	FileOrder      []string
	FileDuplicates []string

	Anchors []string
}

type Document struct {
	Sections []*Section
}

// Parse reads a document without enforcing format tags. It fails only when the
// document carries no manifest block at all.
func Parse(text string) (*Document, error) {
	doc := &Document{}
	found := false
	for _, raw := range SplitSections(text) {
		s := parseSection(raw)
		if s.ManifestCount > 0 {
			found = true
		}
		doc.Sections = append(doc.Sections, s)
	}
	if !found {
		return nil, errcat.Errorf(types.ErrFatalInput, "no %s block found; was the pack written with the manifest disabled?", ManifestInfo)
	}
	return doc, nil
}

// Decode parses text and rejects malformed manifests and unsupported formats.
func Decode(text string) (*Document, error) {
	doc, err := Parse(text)
	if err != nil {
		return nil, err
	}
	for _, s := range doc.Sections {
		if s.ManifestErr != nil {
			return nil, s.ManifestErr
		}
		if s.Manifest == nil {
			return nil, errcat.Errorf(types.ErrFatalInput, "repository %q has no %s block", s.Label, ManifestInfo)
		}
		if err := s.Manifest.CheckFormat(); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func parseSection(raw RawSection) *Section {
	s := &Section{
		Label:      raw.Label,
		Slug:       raw.Slug,
		Library:    make(map[string]string),
		FileBlocks: make(map[string]string),
	}

	lines, _ := utils.SplitLines(utils.NormalizeNewlines(raw.Text))
	byStart := make(map[int]Block)
	for _, blk := range ScanBlocks(lines) {
		byStart[blk.Start] = blk
	}

	h2, h3 := "", ""
	for i := 0; i < len(lines); i++ {
		if blk, ok := byStart[i]; ok {
			s.addBlock(h2, h3, blk)
			h3 = ""
			if blk.End < 0 {
				break
			}
			i = blk.End
			continue
		}

		line := lines[i]
		switch {
		case strings.HasPrefix(line, "### "):
			h3 = strings.TrimSpace(line[4:])
		case strings.HasPrefix(line, "## "):
			h2 = strings.TrimSpace(line[3:])
			h3 = ""
		default:
			for _, m := range anchorTag.FindAllStringSubmatch(line, -1) {
				s.Anchors = append(s.Anchors, m[1])
			}
		}
	}

	if s.Label == "" && s.Manifest != nil {
		s.Label = s.Manifest.Root
	}
	if s.Slug == "" {
		s.Slug = Slugify(s.Label)
	}
	return s
}

func (s *Section) addBlock(h2, h3 string, blk Block) {
	switch {
	case blk.Info == MachineHeaderInfo:
		s.HeaderCount++
		if s.HeaderCount > 1 {
			return
		}
		var h MachineHeader
		if err := json.Unmarshal([]byte(blk.Content), &h); err != nil {
			s.HeaderErr = fmt.Errorf("malformed machine header: %w", err)
			return
		}
		s.Header = &h

	case blk.Info == ManifestInfo:
		s.ManifestCount++
		if s.ManifestCount > 1 {
			return
		}
		var m Manifest
		if err := json.Unmarshal([]byte(blk.Content), &m); err != nil {
			s.ManifestErr = errcat.Errorf(types.ErrFatalInput, "malformed manifest JSON: %s", err)
			return
		}
		s.Manifest = &m

	case h2 == headingLibrary && h3 != "":
		id := strings.ToUpper(strings.Trim(h3, "` "))
		if _, dup := s.Library[id]; dup {
			s.LibraryDuplicates = append(s.LibraryDuplicates, id)
			return
		}
		s.Library[id] = blk.Content
		s.LibraryOrder = append(s.LibraryOrder, id)

	case h2 == headingFiles && h3 != "":
		m := fileHeading.FindStringSubmatch(h3)
		if m == nil {
			return
		}
		path := m[1]
		if _, dup := s.FileBlocks[path]; dup {
			s.FileDuplicates = append(s.FileDuplicates, path)
			return
		}
		s.FileBlocks[path] = blk.Content
		s.FileOrder = append(s.FileOrder, path)
	}
}

// FileText returns the block content for path with the file's original
// trailing-newline state restored.
func (s *Section) FileText(path string) (string, bool) {
	text, ok := s.FileBlocks[path]
	if !ok {
		return "", false
	}
	if s.Manifest != nil {
		if mf, ok := s.Manifest.File(path); ok && mf.NoTrailingNewline {
			text = strings.TrimSuffix(text, "\n")
		}
	}
	return text, true
}

// Stubbed reports whether the section's file blocks hold stubs.
func (s *Section) Stubbed() bool {
	return s.Manifest != nil && s.Manifest.Stubbed()
}

func (d *Document) Multi() bool { return len(d.Sections) > 1 }

// Select picks one section by label, then by slug. An empty selector is only
// accepted for single-repository documents.
func (d *Document) Select(selector string) (*Section, error) {
	return SelectSection(d.Sections, selector)
}

func SelectSection(sections []*Section, selector string) (*Section, error) {
	if selector == "" {
		if len(sections) == 1 {
			return sections[0], nil
		}
		return nil, errcat.Errorf(types.ErrUsage, "document holds %d repositories; choose one with --repo (%s)", len(sections), describe(sections))
	}
	for _, s := range sections {
		if s.Label == selector {
			return s, nil
		}
	}
	for _, s := range sections {
		if s.Slug == selector {
			return s, nil
		}
	}
	return nil, errcat.Errorf(types.ErrUsage, "no repository matches %q (%s)", selector, describe(sections))
}

func describe(sections []*Section) string {
	names := make([]string, len(sections))
	for i, s := range sections {
		names[i] = fmt.Sprintf("%s [%s]", s.Label, s.Slug)
	}
	return "available: " + strings.Join(names, ", ")
}
