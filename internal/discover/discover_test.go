package discover

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.py":                     "",
		"pkg/b.py":                 "",
		"pkg/__pycache__/b.py":     "",
		"build/gen.py":             "",
		"ignored.py":               "",
		"skip.py":                  "",
		"notes.md":                 "",
		".gitignore":               "ignored.py\n",
		IgnoreFileName:             "skip.py\n",
		"pkg/sub/deep/module.py":   "",
		"pkg/sub/deep/module.json": "",
	})

	tests := []struct {
		name   string
		opts   Options
		expect []string
	}{
		{
			name:   "defaults respect gitignore",
			opts:   Options{RespectGitignore: true},
			expect: []string{"a.py", "pkg/b.py", "pkg/sub/deep/module.py"},
		},
		{
			name:   "gitignore disabled",
			opts:   Options{RespectGitignore: false},
			expect: []string{"a.py", "ignored.py", "pkg/b.py", "pkg/sub/deep/module.py"},
		},
		{
			name:   "custom include and exclude",
			opts:   Options{RespectGitignore: true, Include: []string{"**/*.py", "*.md"}, Exclude: []string{"pkg/sub/**"}},
			expect: []string{"a.py", "notes.md", "pkg/b.py"},
		},
		{
			name:   "explicit files skip include but honour excludes",
			opts:   Options{RespectGitignore: true, Files: []string{"notes.md", "build/gen.py", "missing.py", "a.py"}},
			expect: []string{"a.py", "notes.md"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Discover(root, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, got.Files)
			assert.Equal(t, filepath.Join(got.Root, "pkg", "b.py"), got.Abs("pkg/b.py"))
		})
	}
}

func TestDiscover_RootMustBeDirectory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f.py")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := Discover(file, Options{})
	assert.Error(t, err)
}

func TestMatchAny(t *testing.T) {
	assert.True(t, MatchAny([]string{"**/*.py"}, "a.py"))
	assert.True(t, MatchAny([]string{"**/*.py"}, "x/y/a.py"))
	assert.True(t, MatchAny([]string{"**/build/**"}, "build/a.py"))
	assert.False(t, MatchAny([]string{"*.py"}, "x/a.py"))
	assert.True(t, MatchAny([]string{"./docs/*.md"}, "docs/a.md"))
}
