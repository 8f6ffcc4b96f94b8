// Package safety flags files that look like credentials before they reach a pack.
package safety

import (
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/agusespa/codecrate/internal/types"
	"github.com/bmatcuk/doublestar"
	"github.com/warpfork/go-errcat"
)

type Action string

const (
	ActionSkip   Action = "skip"
	ActionRedact Action = "redact"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return ActionSkip, nil
	case ActionSkip, ActionRedact:
		return a, nil
	default:
		return "", errcat.Errorf(types.ErrUsage, "unknown safety action %q (want skip or redact)", s)
	}
}

var DefaultSensitivePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"*.jks",
	"*.kdbx",
	"*.crt",
	"*.cer",
	"*.der",
	"*.asc",
	"*.gpg",
	".npmrc",
	".pypirc",
	"id_rsa*",
	"id_dsa*",
	"id_ed25519*",
	"credentials.json",
	"*secrets*",
	"**/.ssh/**",
}

type sniffRule struct {
	name    string
	pattern *regexp.Regexp
}

var sniffRules = []sniffRule{
	{"private-key", regexp.MustCompile(`(?i)-----BEGIN\s+[A-Z ]*PRIVATE KEY-----`)},
	{"aws-access-key-id", regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`)},
	{"aws-secret-access-key", regexp.MustCompile(`aws_secret_access_key\s*[:=]\s*['"]?[A-Za-z0-9/+=]{20,}`)},
	{"generic-api-key", regexp.MustCompile(`(?i)\b(?:api[_-]?key|x-api-key)\b\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,}`)},
}

// sniffLimit bounds how much of a file is scanned for secrets.
const sniffLimit = 200_000

type Options struct {
	ContentSniff bool
	Action       Action
	// Patterns extends DefaultSensitivePatterns.
	Patterns []string
}

type Filter struct {
	patterns []string
	opts     Options
}

func NewFilter(opts Options) *Filter {
	patterns := append([]string{}, DefaultSensitivePatterns...)
	patterns = append(patterns, opts.Patterns...)
	if opts.Action == "" {
		opts.Action = ActionSkip
	}
	return &Filter{patterns: patterns, opts: opts}
}

func (f *Filter) Action() Action {
	return f.opts.Action
}

// Check returns a reason such as "path:*.pem" or "content:private-key" when relPath
// or text looks sensitive.
func (f *Filter) Check(relPath, text string) (string, bool) {
	if reason, ok := f.matchPath(relPath); ok {
		return reason, true
	}
	if f.opts.ContentSniff {
		return sniff(text)
	}
	return "", false
}

func (f *Filter) matchPath(relPath string) (string, bool) {
	rel := strings.ToLower(relPath)
	base := path.Base(rel)
	for _, pattern := range f.patterns {
		pat := strings.ToLower(pattern)
		if ok, _ := doublestar.Match(pat, rel); ok {
			return "path:" + pattern, true
		}
		if ok, _ := doublestar.Match(pat, base); ok {
			return "path:" + pattern, true
		}
	}
	return "", false
}

func sniff(text string) (string, bool) {
	if len(text) > sniffLimit {
		text = text[:sniffLimit]
	}
	for _, rule := range sniffRules {
		if rule.pattern.MatchString(text) {
			return "content:" + rule.name, true
		}
	}
	return "", false
}

// Redact masks every non-whitespace character so line structure survives.
func Redact(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return r
		}
		return '*'
	}, text)
}
