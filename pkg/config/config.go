// Package config loads the optional codecrate.toml of a repository.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	FileName = "codecrate.toml"
	section  = "codecrate"
)

type Config struct {
	KeepDocstrings    bool
	Dedupe            bool
	RespectGitignore  bool
	Include           []string
	Exclude           []string
	Layout            string
	Manifest          bool
	Output            string
	SymbolBackend     string
	EncodingErrors    string
	Safety            bool
	SafetyAction      string
	SensitivePatterns []string
	ContentSniff      bool
	Workers           int
	TokenEncoding     string
	SplitMaxChars     int
}

var defaults = map[string]any{
	"keep_docstrings":    true,
	"dedupe":             false,
	"respect_gitignore":  true,
	"include":            []string{"**/*.py"},
	"exclude":            []string{},
	"layout":             "auto",
	"manifest":           true,
	"output":             "context.md",
	"symbol_backend":     "auto",
	"encoding_errors":    "replace",
	"safety":             true,
	"safety_action":      "skip",
	"sensitive_patterns": []string{},
	"content_sniff":      true,
	"workers":            0,
	"token_encoding":     "o200k_base",
	"split_max_chars":    0,
}

// LoadConfig reads <root>/codecrate.toml when present. Keys live under a
// [codecrate] table; CODECRATE_<KEY> environment variables override the file.
func LoadConfig(root string) (*Config, error) {
	v := newViper()

	path := filepath.Join(root, FileName)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return load(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(section+"."+key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func load(v *viper.Viper) (*Config, error) {
	key := func(name string) string { return section + "." + name }

	cfg := &Config{
		KeepDocstrings:    v.GetBool(key("keep_docstrings")),
		Dedupe:            v.GetBool(key("dedupe")),
		RespectGitignore:  v.GetBool(key("respect_gitignore")),
		Include:           v.GetStringSlice(key("include")),
		Exclude:           v.GetStringSlice(key("exclude")),
		Layout:            v.GetString(key("layout")),
		Manifest:          v.GetBool(key("manifest")),
		Output:            v.GetString(key("output")),
		SymbolBackend:     v.GetString(key("symbol_backend")),
		EncodingErrors:    v.GetString(key("encoding_errors")),
		Safety:            v.GetBool(key("safety")),
		SafetyAction:      v.GetString(key("safety_action")),
		SensitivePatterns: v.GetStringSlice(key("sensitive_patterns")),
		ContentSniff:      v.GetBool(key("content_sniff")),
		Workers:           v.GetInt(key("workers")),
		TokenEncoding:     v.GetString(key("token_encoding")),
		SplitMaxChars:     v.GetInt(key("split_max_chars")),
	}

	if cfg.Workers < 0 {
		return nil, fmt.Errorf("invalid workers value %d: must be zero or positive", cfg.Workers)
	}
	if cfg.SplitMaxChars < 0 {
		return nil, fmt.Errorf("invalid split_max_chars value %d: must be zero or positive", cfg.SplitMaxChars)
	}
	if cfg.Output == "" {
		cfg.Output = "context.md"
	}
	return cfg, nil
}
