// Package packtest builds packed documents from in-memory sources for tests.
package packtest

import (
	"sort"
	"testing"

	"github.com/agusespa/codecrate/internal/codec"
	"github.com/agusespa/codecrate/internal/pack"
	"github.com/agusespa/codecrate/internal/symbols"
	"github.com/stretchr/testify/require"
)

type Options struct {
	Dedupe         bool
	KeepDocstrings bool
	Layout         codec.Layout
	OmitManifest   bool
}

// Repository packs files (path -> text) in path order.
func Repository(t testing.TB, label string, files map[string]string, opts Options) codec.Repository {
	t.Helper()

	registry, err := symbols.NewRegistry(symbols.PolicyAuto)
	require.NoError(t, err)
	defer registry.Close()

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	sources := make([]pack.SourceFile, len(paths))
	for i, p := range paths {
		sources[i] = pack.SourceFile{Path: p, Text: files[p], Size: int64(len(files[p]))}
	}

	result, library, err := pack.Assemble("/"+label, label, sources, registry, pack.Options{
		Dedupe:         opts.Dedupe,
		KeepDocstrings: opts.KeepDocstrings,
	})
	require.NoError(t, err)
	return codec.Repository{Label: label, Pack: result, Library: library}
}

// Document packs files and encodes them as a single-repository document.
func Document(t testing.TB, label string, files map[string]string, opts Options) string {
	t.Helper()
	return Encode(t, opts, Repository(t, label, files, opts))
}

func Encode(t testing.TB, opts Options, repos ...codec.Repository) string {
	t.Helper()
	layout := opts.Layout
	if layout == "" {
		layout = codec.LayoutAuto
	}
	encoded, err := codec.Encode(repos, codec.EncodeOptions{Layout: layout, OmitManifest: opts.OmitManifest})
	require.NoError(t, err)
	return encoded.Text
}
