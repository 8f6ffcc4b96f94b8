package pack

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/agusespa/codecrate/internal/safety"
	"github.com/agusespa/codecrate/internal/symbols"
	"github.com/agusespa/codecrate/internal/tokens"
	"github.com/agusespa/codecrate/internal/types"
	"github.com/agusespa/codecrate/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sharedBody = `def helper(x):
    total = x * 2
    return total
`

func newRegistry(t *testing.T) *symbols.Registry {
	t.Helper()
	registry, err := symbols.NewRegistry(symbols.PolicyAuto)
	require.NoError(t, err)
	t.Cleanup(registry.Close)
	return registry
}

func sources(files map[string]string, order ...string) []SourceFile {
	out := make([]SourceFile, 0, len(order))
	for _, p := range order {
		out = append(out, SourceFile{Path: p, Text: files[p]})
	}
	return out
}

func TestAssemble_NoDedupe(t *testing.T) {
	files := map[string]string{
		"a.py": "import os\n\n\n" + sharedBody,
		"b.py": sharedBody + "\n\nclass K:\n    def m(self):\n        return 1\n",
	}

	result, library, err := Assemble("/repo", "repo", sources(files, "a.py", "b.py"), newRegistry(t), Options{KeepDocstrings: true})
	require.NoError(t, err)

	require.Len(t, result.Defs, 3)
	assert.Len(t, library, 3)
	for _, d := range result.Defs {
		assert.Equal(t, d.LocalID, d.CanonicalID)
		assert.True(t, d.HasMarker)
		assert.Contains(t, library, d.LocalID)
	}
	assert.Equal(t, sharedBody, library[result.Defs[0].LocalID])

	for _, f := range result.Files {
		assert.Equal(t, utils.CountLines(f.Original), utils.CountLines(f.Stubbed))
		assert.Equal(t, f.LineCount, utils.CountLines(f.Original))
	}
	require.Len(t, result.Files[1].Classes, 1)
}

func TestAssemble_DedupeSharesIdenticalBodies(t *testing.T) {
	files := map[string]string{
		"a.py": "import os\n\n\n" + sharedBody,
		"b.py": sharedBody,
	}

	result, library, err := Assemble("/repo", "repo", sources(files, "a.py", "b.py"), newRegistry(t), Options{Dedupe: true})
	require.NoError(t, err)

	require.Len(t, result.Defs, 2)
	first, second := result.Defs[0], result.Defs[1]
	assert.NotEqual(t, first.LocalID, second.LocalID)
	assert.Equal(t, first.LocalID, first.CanonicalID)
	assert.Equal(t, first.CanonicalID, second.CanonicalID)
	assert.Len(t, library, 1)

	// Markers stay keyed by local id so each occurrence is located independently.
	assert.Contains(t, result.Files[1].Stubbed, "FUNC:v1:"+second.LocalID)
}

func TestAssemble_DedupeKeepsTextVariantsApart(t *testing.T) {
	files := map[string]string{
		"a.py": "def f():\n    return 1\n",
		"b.py": "def f():   \n    return 1\n",
	}

	result, library, err := Assemble("/repo", "repo", sources(files, "a.py", "b.py"), newRegistry(t), Options{Dedupe: true})
	require.NoError(t, err)

	assert.Len(t, library, 2)
	assert.Equal(t, result.Defs[1].LocalID, result.Defs[1].CanonicalID)
	assert.Equal(t, "def f():   \n    return 1\n", library[result.Defs[1].CanonicalID])
}

func TestAssemble_DedupeSharesLaterVariants(t *testing.T) {
	files := map[string]string{
		"a.py": "def f():\n    return 1\n",
		"b.py": "def f():   \n    return 1\n",
		"c.py": "def f():   \n    return 1\n",
	}

	result, library, err := Assemble("/repo", "repo", sources(files, "a.py", "b.py", "c.py"), newRegistry(t), Options{Dedupe: true})
	require.NoError(t, err)

	require.Len(t, result.Defs, 3)
	assert.Len(t, library, 2)
	assert.Equal(t, result.Defs[0].LocalID, result.Defs[0].CanonicalID)
	assert.Equal(t, result.Defs[1].LocalID, result.Defs[1].CanonicalID)
	assert.Equal(t, result.Defs[1].CanonicalID, result.Defs[2].CanonicalID)
}

func TestAssemble_DedupeIsIdempotent(t *testing.T) {
	files := map[string]string{
		"a.py": sharedBody + "\n\n" + "def other():\n    pass\n",
		"b.py": sharedBody,
		"c.py": "def other():\n    pass\n",
	}
	in := sources(files, "a.py", "b.py", "c.py")

	r1, lib1, err := Assemble("/repo", "repo", in, newRegistry(t), Options{Dedupe: true})
	require.NoError(t, err)
	r2, lib2, err := Assemble("/repo", "repo", in, newRegistry(t), Options{Dedupe: true})
	require.NoError(t, err)

	assert.Equal(t, lib1, lib2)
	assert.Equal(t, r1.Defs, r2.Defs)
	assert.Len(t, lib1, 2)
}

func TestAssemble_PrimarySyntaxErrorAbortsPack(t *testing.T) {
	files := map[string]string{"bad.py": "def broken(:\n"}

	_, _, err := Assemble("/repo", "repo", sources(files, "bad.py"), newRegistry(t), Options{})
	require.Error(t, err)
	assert.Equal(t, types.ErrFatalInput, types.CategoryOf(err))
}

func TestAssemble_SecondaryFilesAreIndexOnly(t *testing.T) {
	files := map[string]string{"main.go": "package main\n\nfunc main() {\n}\n", "README.md": "# hi\n"}

	result, library, err := Assemble("/repo", "repo", sources(files, "main.go", "README.md"), newRegistry(t), Options{})
	require.NoError(t, err)

	assert.Empty(t, library)
	assert.Empty(t, result.Defs)
	require.Len(t, result.Files[0].Symbols, 1)
	assert.Equal(t, "main", result.Files[0].Symbols[0].Name)
	assert.Equal(t, files["main.go"], result.Files[0].Stubbed)
	assert.Equal(t, "markdown", result.Files[1].Language)
}

func TestLoadFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("x = 1\r\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "b.py"), []byte{'y', 0xff, '\n'}, 0o644))

	counter, err := tokens.NewCounter("", 16)
	require.NoError(t, err)

	files, err := LoadFiles(context.Background(), root, []string{"a.py", "pkg/b.py"}, LoadOptions{Workers: 4, Counter: counter})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.py", files[0].Path)
	assert.Equal(t, "x = 1\n", files[0].Text)
	assert.Equal(t, int64(7), files[0].Size)
	assert.Equal(t, 2, files[0].Tokens)
	assert.Equal(t, "y\uFFFD\n", files[1].Text)

	_, err = LoadFiles(context.Background(), root, []string{"pkg/b.py"}, LoadOptions{Encoding: EncodingStrict})
	require.Error(t, err)
	assert.Equal(t, types.ErrIO, types.CategoryOf(err))

	_, err = LoadFiles(context.Background(), root, []string{"missing.py"}, LoadOptions{})
	assert.Error(t, err)
}

func TestWorkerCount(t *testing.T) {
	assert.Equal(t, 3, WorkerCount(3, 10))
	assert.Equal(t, 2, WorkerCount(5, 2))
	assert.Equal(t, 1, WorkerCount(0, 0))
	assert.LessOrEqual(t, WorkerCount(0, 100), maxWorkers)
}

func TestPartition(t *testing.T) {
	files := []SourceFile{
		{Path: "a.py", Text: "x = 1\n"},
		{Path: ".env", Text: "TOKEN=abc\n"},
	}

	kept, skipped := Partition(files, safety.NewFilter(safety.Options{Action: safety.ActionSkip}))
	assert.Len(t, kept, 1)
	require.Len(t, skipped, 1)
	assert.Equal(t, "path:.env", skipped[0].Reason)

	kept, skipped = Partition(files, safety.NewFilter(safety.Options{Action: safety.ActionRedact}))
	require.Len(t, kept, 2)
	assert.Len(t, skipped, 1)
	assert.True(t, kept[1].Redacted)
	assert.Equal(t, "*********\n", kept[1].Text)
}
