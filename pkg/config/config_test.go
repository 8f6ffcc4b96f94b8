package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
	return dir
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name        string
		toml        string
		expectError bool
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "overrides",
			toml: `[codecrate]
dedupe = true
keep_docstrings = false
layout = "full"
include = ["src/**/*.py", "tools/*.py"]
exclude = ["**/migrations/**"]
workers = 4
output = "pack.md"
`,
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Dedupe)
				assert.False(t, cfg.KeepDocstrings)
				assert.Equal(t, "full", cfg.Layout)
				assert.Equal(t, []string{"src/**/*.py", "tools/*.py"}, cfg.Include)
				assert.Equal(t, []string{"**/migrations/**"}, cfg.Exclude)
				assert.Equal(t, 4, cfg.Workers)
				assert.Equal(t, "pack.md", cfg.Output)
				// untouched keys keep their defaults
				assert.True(t, cfg.RespectGitignore)
				assert.Equal(t, "replace", cfg.EncodingErrors)
			},
		},
		{
			name: "empty table",
			toml: "[codecrate]\n",
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.KeepDocstrings)
				assert.Equal(t, []string{"**/*.py"}, cfg.Include)
				assert.Equal(t, "context.md", cfg.Output)
			},
		},
		{
			name: "keys outside the table are ignored",
			toml: "dedupe = true\n",
			check: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Dedupe)
			},
		},
		{
			name:        "invalid toml",
			toml:        "[codecrate\ndedupe = ",
			expectError: true,
		},
		{
			name:        "negative workers",
			toml:        "[codecrate]\nworkers = -1\n",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, tt.toml))
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadConfigWithoutFile(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.True(t, cfg.KeepDocstrings)
	assert.False(t, cfg.Dedupe)
	assert.True(t, cfg.RespectGitignore)
	assert.Equal(t, "auto", cfg.Layout)
	assert.True(t, cfg.Manifest)
	assert.Equal(t, "auto", cfg.SymbolBackend)
	assert.True(t, cfg.Safety)
	assert.Equal(t, "skip", cfg.SafetyAction)
	assert.True(t, cfg.ContentSniff)
	assert.Equal(t, 0, cfg.Workers)
	assert.Equal(t, "o200k_base", cfg.TokenEncoding)
}

func TestLoadConfigEnvironmentOverride(t *testing.T) {
	dir := writeConfig(t, "[codecrate]\ndedupe = false\nlayout = \"stubs\"\n")
	t.Setenv("CODECRATE_DEDUPE", "true")
	t.Setenv("CODECRATE_WORKERS", "2")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.True(t, cfg.Dedupe)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "stubs", cfg.Layout)
}
