// Package discover lists the files of a repository that belong in a pack.
package discover

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agusespa/codecrate/internal/types"
	"github.com/agusespa/codecrate/internal/utils"
	"github.com/bmatcuk/doublestar"
	ignore "github.com/sabhiram/go-gitignore"
	"github.com/warpfork/go-errcat"
)

const IgnoreFileName = ".codecrateignore"

var DefaultIncludes = []string{"**/*.py"}

var DefaultExcludes = []string{
	"**/__pycache__/**",
	"**/*.pyc",
	"**/.git/**",
	"**/.venv/**",
	"**/venv/**",
	"**/.tox/**",
	"**/.pytest_cache/**",
	"**/node_modules/**",
	"**/build/**",
	"**/dist/**",
}

type Options struct {
	Include          []string
	Exclude          []string
	RespectGitignore bool
	// Files restricts discovery to an explicit list (relative to root or absolute).
	// Include patterns are not applied to it; excludes and ignore files are.
	Files []string
}

// Result holds slash-separated paths relative to Root, sorted and unique.
type Result struct {
	Root  string
	Files []string
}

func (r *Result) Abs(rel string) string {
	return filepath.Join(r.Root, filepath.FromSlash(rel))
}

func Discover(root string, opts Options) (*Result, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errcat.Errorf(types.ErrUsage, "invalid root %s: %s", root, err)
	}
	if resolved, err := filepath.EvalSymlinks(absRoot); err == nil {
		absRoot = resolved
	}
	info, err := os.Stat(absRoot)
	if err != nil || !info.IsDir() {
		return nil, errcat.Errorf(types.ErrUsage, "root %s is not a directory", root)
	}

	include := opts.Include
	if len(include) == 0 {
		include = DefaultIncludes
	}
	exclude := append(append([]string{}, DefaultExcludes...), opts.Exclude...)

	var gitFiles map[string]struct{}
	var gi *ignore.GitIgnore
	if opts.RespectGitignore {
		gitFiles = gitLsFiles(absRoot)
		if gitFiles == nil {
			gi = loadIgnoreFile(absRoot, ".gitignore")
		}
	}
	toolIgnore := loadIgnoreFile(absRoot, IgnoreFileName)

	keep := func(rel string, applyInclude bool) bool {
		if gitFiles != nil {
			if _, ok := gitFiles[rel]; !ok {
				return false
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return false
		}
		if toolIgnore != nil && toolIgnore.MatchesPath(rel) {
			return false
		}
		if applyInclude && !MatchAny(include, rel) {
			return false
		}
		return !MatchAny(exclude, rel)
	}

	var candidates []string
	if opts.Files != nil {
		candidates = explicitFiles(absRoot, opts.Files)
	} else {
		candidates, err = walk(absRoot)
		if err != nil {
			return nil, errcat.Errorf(types.ErrIO, "failed to walk %s: %s", absRoot, err)
		}
	}

	seen := make(map[string]bool)
	var files []string
	for _, rel := range candidates {
		if seen[rel] || !keep(rel, opts.Files == nil) {
			continue
		}
		seen[rel] = true
		files = append(files, rel)
	}
	sort.Strings(files)

	return &Result{Root: absRoot, Files: files}, nil
}

func walk(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			if path != root && d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 && !confined(root, path) {
			return nil
		}
		if !d.Type().IsRegular() && d.Type()&os.ModeSymlink == 0 {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	return out, err
}

func explicitFiles(root string, files []string) []string {
	var out []string
	for _, f := range files {
		p := f
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() || !confined(root, p) {
			continue
		}
		resolved, err := filepath.EvalSymlinks(p)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(root, resolved)
		if err != nil {
			continue
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

// confined reports whether path resolves to a location inside root.
func confined(root, path string) bool {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// MatchAny reports whether rel matches one of the doublestar patterns. A leading
// "**/" also matches files at the root.
func MatchAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		pattern = strings.TrimPrefix(pattern, "./")
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if strings.HasPrefix(pattern, "**/") {
			if ok, _ := doublestar.Match(strings.TrimPrefix(pattern, "**/"), rel); ok {
				return true
			}
		}
	}
	return false
}

func gitLsFiles(root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	if _, err := os.Stat(gitDir); err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "-z", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range utils.ParseFileList(string(out)) {
		files[line] = struct{}{}
	}
	return files
}

func loadIgnoreFile(root, name string) *ignore.GitIgnore {
	path := filepath.Join(root, name)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}
