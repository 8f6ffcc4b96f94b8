package codec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/agusespa/codecrate/internal/ids"
	"github.com/agusespa/codecrate/internal/types"
	"github.com/warpfork/go-errcat"
)

const documentTitle = "# Codecrate Context Pack"

const howToUse = `This document is a machine-checkable snapshot of a source tree. File blocks
under "Files" may hold stubs: a definition body replaced by "..." and a marker
comment. The full body lives under "Function Library", keyed by the id in the
marker. Do not edit the manifest or the marker comments by hand.
`

// Repository is one packed tree to encode.
type Repository struct {
	Label   string
	Pack    *types.PackResult
	Library types.CanonicalLibrary
}

type EncodeOptions struct {
	Layout       Layout
	OmitManifest bool
}

// Encoded is a rendered document plus the manifest sidecar describing it.
type Encoded struct {
	Text    string
	Sidecar *Sidecar
}

// Encode renders repositories into one document. More than one repository
// produces "# Repository:" sections with slug-prefixed anchors.
func Encode(repos []Repository, opts EncodeOptions) (*Encoded, error) {
	if len(repos) == 0 {
		return nil, errcat.Errorf(types.ErrUsage, "nothing to encode")
	}

	labels := make([]string, len(repos))
	for i, r := range repos {
		labels[i] = r.Label
	}
	slugs := uniqueSlugs(labels)

	var b strings.Builder
	b.WriteString(documentTitle + "\n\n")
	b.WriteString(howToUse)

	sidecar := &Sidecar{Format: SidecarFormat}
	for i, repo := range repos {
		layout := opts.Layout
		if opts.OmitManifest && (layout == LayoutAuto || layout == "") {
			// Stubs cannot be reconstructed without a manifest.
			layout = LayoutFull
		}
		layout = ResolveLayout(layout, repo.Pack)
		if opts.OmitManifest && layout == LayoutStubs {
			return nil, errcat.Errorf(types.ErrUsage, "repository %q: omitting the manifest requires the full layout", repo.Label)
		}

		manifest := BuildManifest(repo.Pack, layout)
		hash, err := manifest.Hash()
		if err != nil {
			return nil, err
		}
		sidecar.Repositories = append(sidecar.Repositories, SidecarRepository{
			Label: repo.Label, Slug: slugs[i], ManifestSHA256: hash, Manifest: manifest,
		})

		b.WriteString("\n")
		if len(repos) > 1 {
			b.WriteString(repositoryHeadingPrefix + repo.Label + "\n\n")
		}
		w := sectionWriter{b: &b, repo: repo, slug: slugs[i], layout: layout}
		if err := w.write(manifest, hash, !opts.OmitManifest); err != nil {
			return nil, err
		}
	}

	return &Encoded{Text: b.String(), Sidecar: sidecar}, nil
}

type sectionWriter struct {
	b      *strings.Builder
	repo   Repository
	slug   string
	layout Layout
}

func (w sectionWriter) write(manifest *Manifest, hash string, withManifest bool) error {
	b := w.b
	fmt.Fprintf(b, "Root: `%s`\n", w.repo.Label)
	fmt.Fprintf(b, "Layout: `%s`\n\n", w.layout)

	if withManifest {
		header, err := json.Marshal(MachineHeader{Format: PackFormat, PackGroup: w.repo.Label, ManifestSHA256: hash})
		if err != nil {
			return fmt.Errorf("failed to serialise machine header: %w", err)
		}
		b.WriteString("## Machine Header\n\n")
		writeFenced(b, MachineHeaderInfo, string(header)+"\n")
		b.WriteString("\n")

		body, err := json.MarshalIndent(manifest, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialise manifest: %w", err)
		}
		b.WriteString("## Manifest\n\n")
		writeFenced(b, ManifestInfo, string(body)+"\n")
		b.WriteString("\n")
	}

	paths := make([]string, len(w.repo.Pack.Files))
	for i, f := range w.repo.Pack.Files {
		paths[i] = f.Path
	}
	b.WriteString("## Directory Tree\n\n")
	writeFenced(b, "text", RenderTree(w.repo.Label, paths))
	b.WriteString("\n")

	fileAnchors := w.fileAnchors()
	w.writeSymbolIndex(fileAnchors)

	if w.layout == LayoutStubs {
		w.writeLibrary()
	}

	b.WriteString("## Files\n\n")
	for _, f := range w.repo.Pack.Files {
		text := f.Original
		if w.layout == LayoutStubs {
			text = f.Stubbed
		}
		fmt.Fprintf(b, "### `%s` (L1–L%d)\n", f.Path, f.LineCount)
		fmt.Fprintf(b, "<a id=\"%s\"></a>\n\n", fileAnchors[f.Path])
		writeFenced(b, f.Language, text)
		b.WriteString("\n")
	}
	return nil
}

func (w sectionWriter) fileAnchors() map[string]string {
	anchors := make(map[string]string, len(w.repo.Pack.Files))
	used := make(map[string]bool)
	for _, f := range w.repo.Pack.Files {
		base := w.slug + "-file-" + Slugify(f.Path)
		anchor := base
		for n := 2; used[anchor]; n++ {
			anchor = fmt.Sprintf("%s-%d", base, n)
		}
		used[anchor] = true
		anchors[f.Path] = anchor
	}
	return anchors
}

// FuncAnchor is the anchor id of a library entry.
func FuncAnchor(slug, id string) string {
	return slug + "-func-" + strings.ToLower(id)
}

func (w sectionWriter) writeSymbolIndex(fileAnchors map[string]string) {
	b := w.b
	b.WriteString("## Symbol Index\n\n")
	for _, f := range w.repo.Pack.Files {
		if len(f.Defs) == 0 && len(f.Classes) == 0 && len(f.Symbols) == 0 {
			continue
		}
		fmt.Fprintf(b, "### `%s`\n\n", f.Path)
		for _, c := range f.Classes {
			fmt.Fprintf(b, "- class `%s` (L%d–L%d)\n", c.QualName, c.ClassLine, c.EndLine)
		}
		for _, d := range f.Defs {
			target := fileAnchors[f.Path]
			if w.layout == LayoutStubs {
				target = FuncAnchor(w.slug, d.CanonicalID)
			}
			fmt.Fprintf(b, "- `%s` → %s (L%d–L%d) — [jump](#%s)\n", d.QualName, ids.MarkerToken(d.LocalID), d.DefLine, d.EndLine, target)
		}
		for _, s := range f.Symbols {
			fmt.Fprintf(b, "- %s `%s` (L%d–L%d)\n", strings.TrimPrefix(string(s.Kind), "symbol_"), s.Name, s.StartLine, s.EndLine)
		}
		b.WriteString("\n")
	}
}

func (w sectionWriter) writeLibrary() {
	b := w.b
	b.WriteString("## Function Library\n\n")

	seen := make(map[string]bool)
	for _, d := range w.repo.Pack.Defs {
		id := d.CanonicalID
		code, ok := w.repo.Library[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		fmt.Fprintf(b, "### %s\n", id)
		fmt.Fprintf(b, "<a id=\"%s\"></a>\n\n", FuncAnchor(w.slug, id))
		writeFenced(b, "python", code)
		b.WriteString("\n")
	}
}

// RenderTree draws paths as an indented tree under label.
func RenderTree(label string, paths []string) string {
	type node struct {
		children map[string]*node
	}
	root := &node{children: map[string]*node{}}
	for _, p := range paths {
		cur := root
		for _, part := range strings.Split(p, "/") {
			if part == "" {
				continue
			}
			next, ok := cur.children[part]
			if !ok {
				next = &node{children: map[string]*node{}}
				cur.children[part] = next
			}
			cur = next
		}
	}

	var b strings.Builder
	if label == "" {
		label = "."
	}
	b.WriteString(strings.TrimSuffix(label, "/") + "/\n")

	var render func(n *node, prefix string)
	render = func(n *node, prefix string) {
		names := make([]string, 0, len(n.children))
		for name := range n.children {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			di, dj := len(n.children[names[i]].children) > 0, len(n.children[names[j]].children) > 0
			if di != dj {
				return di
			}
			return names[i] < names[j]
		})
		for i, name := range names {
			child := n.children[name]
			connector, extension := "├── ", "│   "
			if i == len(names)-1 {
				connector, extension = "└── ", "    "
			}
			if len(child.children) > 0 {
				name += "/"
			}
			b.WriteString(prefix + connector + name + "\n")
			render(child, prefix+extension)
		}
	}
	render(root, "")
	return b.String()
}
