package validate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agusespa/codecrate/internal/codec"
	"github.com/agusespa/codecrate/internal/ids"
	"github.com/agusespa/codecrate/internal/pack"
	"github.com/agusespa/codecrate/internal/packtest"
	"github.com/agusespa/codecrate/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var files = map[string]string{
	"a.py": "def a():\n    return 1\n\n\ndef b():\n    return 2\n",
	"b.py": "x = 1\n",
}

func codes(r *Report, sev types.Severity) []string {
	var out []string
	for _, d := range r.Diagnostics {
		if d.Severity == sev {
			out = append(out, d.Code)
		}
	}
	return out
}

func TestDocument_Clean(t *testing.T) {
	layouts := []codec.Layout{codec.LayoutStubs, codec.LayoutFull}
	for _, layout := range layouts {
		t.Run(string(layout), func(t *testing.T) {
			text := packtest.Document(t, "demo", files, packtest.Options{Layout: layout})
			report, err := Document(text, Options{Strict: true})
			require.NoError(t, err)
			assert.Empty(t, report.Diagnostics)
			assert.True(t, report.OK())
		})
	}
}

func TestDocument_Corruption(t *testing.T) {
	text := packtest.Document(t, "demo", files, packtest.Options{})
	doc, err := codec.Decode(text)
	require.NoError(t, err)
	s := doc.Sections[0]
	mf, _ := s.Manifest.File("a.py")
	header := s.Header.ManifestSHA256

	tests := []struct {
		name       string
		mutate     func(string) string
		wantErrors []string
		wantWarns  []string
	}{
		{
			name:       "library body edited",
			mutate:     func(s string) string { return strings.Replace(s, "    return 1\n", "    return 100\n", 1) },
			wantErrors: []string{types.CodeOriginalHashMismatch},
		},
		{
			name:       "marker removed",
			mutate:     func(s string) string { return strings.Replace(s, ids.MarkerComment(mf.Defs[1].LocalID), "", 1) },
			wantErrors: []string{types.CodeStubHashMismatch, types.CodeOriginalHashMismatch},
			wantWarns:  []string{types.CodeMissingMarker},
		},
		{
			name:       "header checksum",
			mutate:     func(s string) string { return strings.Replace(s, header, strings.Repeat("0", 64), 1) },
			wantErrors: []string{types.CodeMachineHeader},
		},
		{
			name:       "full file edited",
			mutate:     func(s string) string { return strings.Replace(s, "x = 1\n", "x = 2\n", 1) },
			wantErrors: []string{types.CodeStubHashMismatch, types.CodeOriginalHashMismatch},
		},
		{
			name: "duplicate file block",
			mutate: func(s string) string {
				return s + "### `b.py` (L1–L1)\n\n```python\nx = 1\n```\n"
			},
			wantErrors: []string{types.CodeDuplicateFileBlock},
		},
		{
			name: "file block not in manifest",
			mutate: func(s string) string {
				return s + "### `ghost.py` (L1–L1)\n\n```python\nx = 1\n```\n"
			},
			wantErrors: []string{types.CodeUnexpectedFileBlock},
		},
		{
			name: "orphan library entry",
			mutate: func(s string) string {
				return strings.Replace(s, "## Files\n", "### DEADBEEF\n\n```python\ndef z():\n    pass\n```\n\n## Files\n", 1)
			},
			wantErrors: []string{types.CodeOrphanLibraryEntry},
		},
		{
			name: "second manifest",
			mutate: func(s string) string {
				return s + "\n```codecrate-manifest\n{}\n```\n"
			},
			wantErrors: []string{types.CodeManifestCount},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := Document(tt.mutate(text), Options{})
			require.NoError(t, err)
			assert.False(t, report.OK())
			assert.ElementsMatch(t, tt.wantErrors, codes(report, types.SeverityError))
			assert.ElementsMatch(t, tt.wantWarns, codes(report, types.SeverityWarning))
			for _, d := range report.Diagnostics {
				assert.Equal(t, "demo", d.Repo)
			}
		})
	}
}

func TestDocument_StrictPromotesMissingMarker(t *testing.T) {
	text := packtest.Document(t, "demo", files, packtest.Options{})
	doc, err := codec.Decode(text)
	require.NoError(t, err)
	mf, _ := doc.Sections[0].Manifest.File("a.py")
	broken := strings.Replace(text, ids.MarkerComment(mf.Defs[0].LocalID), "", 1)

	report, err := Document(broken, Options{Strict: true})
	require.NoError(t, err)
	assert.Contains(t, codes(report, types.SeverityError), types.CodeMissingMarker)
	assert.Empty(t, codes(report, types.SeverityWarning))
}

func TestDocument_CanonicalMarkerNeedsLegacyManifest(t *testing.T) {
	shared := "def f():\n    return 1\n"
	text := packtest.Document(t, "demo", map[string]string{"a.py": shared, "b.py": shared}, packtest.Options{Dedupe: true})
	doc, err := codec.Decode(text)
	require.NoError(t, err)
	mf, _ := doc.Sections[0].Manifest.File("b.py")
	require.Len(t, mf.Defs, 1)
	def := mf.Defs[0]
	require.NotEqual(t, def.LocalID, def.ID)

	swapped := strings.Replace(text, ids.MarkerComment(def.LocalID), ids.MarkerComment(def.ID), 1)
	require.NotEqual(t, text, swapped)

	report, err := Document(swapped, Options{})
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Contains(t, codes(report, types.SeverityWarning), types.CodeMissingMarker)
	assert.Contains(t, codes(report, types.SeverityError), types.CodeOriginalHashMismatch)
}

func TestDocument_Root(t *testing.T) {
	text := packtest.Document(t, "demo", files, packtest.Options{})

	write := func(t *testing.T, root string, tree map[string]string) {
		for p, body := range tree {
			require.NoError(t, os.WriteFile(filepath.Join(root, p), []byte(body), 0o644))
		}
	}

	t.Run("matching tree", func(t *testing.T) {
		root := t.TempDir()
		write(t, root, files)
		report, err := Document(text, Options{Root: root})
		require.NoError(t, err)
		assert.Empty(t, report.Diagnostics)
	})

	t.Run("drift", func(t *testing.T) {
		root := t.TempDir()
		write(t, root, map[string]string{"a.py": "changed\n"})
		report, err := Document(text, Options{Root: root})
		require.NoError(t, err)
		assert.True(t, report.OK())
		assert.ElementsMatch(t, []string{types.CodeDiskMismatch, types.CodeDiskMissing}, codes(report, types.SeverityWarning))
	})

	t.Run("strict decoding", func(t *testing.T) {
		root := t.TempDir()
		write(t, root, map[string]string{"a.py": files["a.py"], "b.py": "x = \xff\n"})
		report, err := Document(text, Options{Root: root, Encoding: pack.EncodingStrict})
		require.NoError(t, err)
		assert.Equal(t, []string{types.CodeDiskDecode}, codes(report, types.SeverityError))
	})
}

func TestDocument_MultiRepository(t *testing.T) {
	api := packtest.Repository(t, "api", map[string]string{"a.py": "def a():\n    return 1\n"}, packtest.Options{})
	web := packtest.Repository(t, "web", map[string]string{"b.py": "def b():\n    return 2\n"}, packtest.Options{})
	text := packtest.Encode(t, packtest.Options{}, api, web)

	t.Run("clean", func(t *testing.T) {
		report, err := Document(text, Options{Strict: true})
		require.NoError(t, err)
		assert.Empty(t, report.Diagnostics)
	})

	t.Run("anchor collision", func(t *testing.T) {
		broken := strings.Replace(text, "# Repository: web\n", "# Repository: web\n\n<a id=\"api-file-a-py\"></a>\n", 1)
		report, err := Document(broken, Options{})
		require.NoError(t, err)
		errs := report.Errors()
		require.Len(t, errs, 1)
		assert.Equal(t, types.CodeAnchorCollision, errs[0].Code)
		assert.Equal(t, "web", errs[0].Repo)
	})

	t.Run("empty section", func(t *testing.T) {
		report, err := Document(text+"\n# Repository: empty\n", Options{})
		require.NoError(t, err)
		assert.Equal(t, []string{types.CodeEmptySection}, codes(report, types.SeverityError))
	})
}

func TestDocument_NoManifest(t *testing.T) {
	_, err := Document("# Codecrate Context Pack\n", Options{})
	require.Error(t, err)
	assert.Equal(t, types.ErrFatalInput, types.CategoryOf(err))
}

func TestReport_JSON(t *testing.T) {
	report := &Report{Diagnostics: []types.Diagnostic{
		types.Warnf(types.CodeDiskMismatch, "a.py", "differs"),
	}}
	data, err := report.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ok": true`)
	assert.Contains(t, string(data), `"warnings": 1`)
	assert.Contains(t, string(data), `"code": "disk-mismatch"`)
}
