package unpack

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agusespa/codecrate/internal/codec"
	"github.com/agusespa/codecrate/internal/ids"
	"github.com/agusespa/codecrate/internal/packtest"
	"github.com/agusespa/codecrate/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serviceModule = `import functools


def decorate(fn):
    @functools.wraps(fn)
    def inner(*args, **kwargs):
        return fn(*args, **kwargs)
    return inner


class Service:
    """Service docs."""

    @staticmethod
    @decorate
    def build(name: str) -> "Service":
        """Build one."""
        # comment in body
        svc = Service()
        svc.name = name
        return svc

    async def fetch(self, url):
        data = await self.client.get(url)
        return data

    def ping(self): return "pong"


def documented():
    """Only a docstring."""
`

func decodeSingle(t *testing.T, text string) *codec.Section {
	t.Helper()
	doc, err := codec.Decode(text)
	require.NoError(t, err)
	s, err := doc.Select("")
	require.NoError(t, err)
	return s
}

func TestSection_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		opts  packtest.Options
	}{
		{
			name:  "decorators methods and nesting",
			files: map[string]string{"svc/service.py": serviceModule},
			opts:  packtest.Options{KeepDocstrings: true},
		},
		{
			name:  "docstrings dropped",
			files: map[string]string{"svc/service.py": serviceModule},
		},
		{
			name:  "no trailing newline",
			files: map[string]string{"a.py": "def a():\n    return 1", "b.py": ""},
		},
		{
			name: "dedupe shares bodies",
			files: map[string]string{
				"a.py": "def helper(x):\n    return x\n",
				"b.py": "import os\n\ndef helper(x):\n    return x\n",
			},
			opts: packtest.Options{Dedupe: true},
		},
		{
			name: "mixed languages",
			files: map[string]string{
				"main.go": "package main\n\nfunc main() {}\n",
				"app.py":  "def run():\n    pass\n",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := decodeSingle(t, packtest.Document(t, "demo", tt.files, tt.opts))

			result, err := Section(s, Options{Strict: true})
			require.NoError(t, err)
			assert.Empty(t, result.Diagnostics)
			require.Len(t, result.Files, len(tt.files))
			for _, f := range result.Files {
				assert.Equal(t, tt.files[f.Path], f.Text, f.Path)
			}
		})
	}
}

func TestSection_NestedDefinitionsAreMarkerless(t *testing.T) {
	s := decodeSingle(t, packtest.Document(t, "demo", map[string]string{"svc/service.py": serviceModule}, packtest.Options{}))

	mf, ok := s.Manifest.File("svc/service.py")
	require.True(t, ok)
	byName := make(map[string]codec.ManifestDef)
	for _, d := range mf.Defs {
		byName[d.QualName] = d
	}
	assert.False(t, byName["decorate.inner"].Marked())
	assert.True(t, byName["decorate"].Marked())
	assert.True(t, byName["Service.build"].Marked())
	assert.Equal(t, "async_function", byName["Service.fetch"].Kind)
	assert.True(t, byName["Service.ping"].IsSingleLine)
}

func TestSection_MissingMarker(t *testing.T) {
	files := map[string]string{"a.py": "def a():\n    return 1\n\n\ndef b():\n    return 2\n"}
	text := packtest.Document(t, "demo", files, packtest.Options{})
	s := decodeSingle(t, text)
	mf, _ := s.Manifest.File("a.py")
	broken := strings.Replace(text, ids.MarkerComment(mf.Defs[1].LocalID), "", 1)

	t.Run("default warns and continues", func(t *testing.T) {
		result, err := Section(decodeSingle(t, broken), Options{})
		require.NoError(t, err)
		require.Len(t, result.Files, 1)
		assert.True(t, strings.HasPrefix(result.Files[0].Text, "def a():\n    return 1\n"))

		codes := make([]string, len(result.Diagnostics))
		for i, d := range result.Diagnostics {
			codes[i] = d.Code
			assert.Equal(t, "demo", d.Repo)
		}
		assert.Contains(t, codes, types.CodeMissingMarker)
		assert.Contains(t, codes, types.CodeOriginalHashMismatch)
	})

	t.Run("strict fails", func(t *testing.T) {
		_, err := Section(decodeSingle(t, broken), Options{Strict: true})
		require.Error(t, err)
		assert.Equal(t, types.ErrInconsistent, types.CategoryOf(err))
		assert.Contains(t, err.Error(), "a.py")
	})
}

func TestReconstruct(t *testing.T) {
	const local, canonical = "AAAAAAAA", "BBBBBBBB"
	body := "def f():\n    return 1\n"

	tests := []struct {
		name     string
		src      Source
		want     string
		wantCode string
	}{
		{
			name: "header found by upward scan",
			src: Source{
				Path:    "x.py",
				Stub:    "def f():\n    ...  # ↪ FUNC:v1:" + local + "\n",
				Defs:    []codec.ManifestDef{{QualName: "f", ID: canonical, LocalID: local, DecoratorStart: 1, DefLine: 1, EndLine: 5}},
				Library: map[string]string{canonical: body},
			},
			want: body,
		},
		{
			name: "legacy marker keyed by canonical id",
			src: Source{
				Path:          "x.py",
				Stub:          "def f():\n    ...  # ↪ FUNC:" + canonical + "\n",
				Defs:          []codec.ManifestDef{{QualName: "f", ID: canonical, LocalID: local, DecoratorStart: 1, DefLine: 1, EndLine: 2}},
				Library:       map[string]string{canonical: body},
				LegacyMarkers: true,
			},
			want: body,
		},
		{
			name: "canonical id marker ignored for versioned packs",
			src: Source{
				Path:    "x.py",
				Stub:    "def f():\n    ...  # ↪ FUNC:" + canonical + "\n",
				Defs:    []codec.ManifestDef{{QualName: "f", ID: canonical, LocalID: local, DecoratorStart: 1, DefLine: 1, EndLine: 2}},
				Library: map[string]string{canonical: body},
			},
			want:     "def f():\n    ...  # ↪ FUNC:" + canonical + "\n",
			wantCode: types.CodeMissingMarker,
		},
		{
			name: "unresolved def line",
			src: Source{
				Path:    "x.py",
				Stub:    "x = 1\n    ...  # ↪ FUNC:v1:" + local + "\n",
				Defs:    []codec.ManifestDef{{QualName: "f", ID: canonical, LocalID: local, DecoratorStart: 1, DefLine: 1, EndLine: 2}},
				Library: map[string]string{canonical: body},
			},
			want:     "x = 1\n    ...  # ↪ FUNC:v1:" + local + "\n",
			wantCode: types.CodeUnresolvedMarker,
		},
		{
			name: "missing canonical",
			src: Source{
				Path:    "x.py",
				Stub:    "def f():\n    ...  # ↪ FUNC:v1:" + local + "\n",
				Defs:    []codec.ManifestDef{{QualName: "f", ID: canonical, LocalID: local, DecoratorStart: 1, DefLine: 1, EndLine: 2}},
				Library: map[string]string{},
			},
			want:     "def f():\n    ...  # ↪ FUNC:v1:" + local + "\n",
			wantCode: types.CodeMissingCanonical,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, diags := Reconstruct(tt.src)
			assert.Equal(t, tt.want, got)
			if tt.wantCode == "" {
				assert.Empty(t, diags)
				return
			}
			require.Len(t, diags, 1)
			assert.Equal(t, tt.wantCode, diags[0].Code)
			assert.Equal(t, "x.py", diags[0].Path)
		})
	}
}

func TestIsDefLine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"def f():", true},
		{"    async def f(x):", true},
		{"def f[T](x: T):", true},
		{"def fx():", false},
		{"undef f():", false},
		{"# def f():", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, isDefLine(tt.line, "f"))
		})
	}
}

func TestToDir(t *testing.T) {
	first := packtest.Repository(t, "api", map[string]string{"pkg/a.py": "def a():\n    return 1\n"}, packtest.Options{})
	second := packtest.Repository(t, "web", map[string]string{"b.py": "def b():\n    return 2\n"}, packtest.Options{})
	doc, err := codec.Decode(packtest.Encode(t, packtest.Options{}, first, second))
	require.NoError(t, err)

	t.Run("all repositories", func(t *testing.T) {
		out := t.TempDir()
		result, err := ToDir(doc, out, Options{Strict: true})
		require.NoError(t, err)
		assert.Len(t, result.Files, 2)

		data, err := os.ReadFile(filepath.Join(out, "api", "pkg", "a.py"))
		require.NoError(t, err)
		assert.Equal(t, "def a():\n    return 1\n", string(data))
		_, err = os.Stat(filepath.Join(out, "web", "b.py"))
		assert.NoError(t, err)
	})

	t.Run("selected repository", func(t *testing.T) {
		out := t.TempDir()
		_, err := ToDir(doc, out, Options{Repo: "web"})
		require.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(out, "b.py"))
		require.NoError(t, err)
		assert.Equal(t, "def b():\n    return 2\n", string(data))
	})
}

func TestToDir_RejectsUnsafeManifestPath(t *testing.T) {
	text := packtest.Document(t, "demo", map[string]string{"a.py": "x = 1\n"}, packtest.Options{Layout: codec.LayoutFull})
	text = strings.ReplaceAll(text, "a.py", "../a.py")

	doc, err := codec.Decode(text)
	require.NoError(t, err)
	_, err = ToDir(doc, t.TempDir(), Options{})
	require.Error(t, err)
	assert.Equal(t, types.ErrSecurity, types.CategoryOf(err))
}
