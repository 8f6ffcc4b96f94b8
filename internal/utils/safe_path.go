package utils

import (
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/agusespa/codecrate/internal/types"
	"github.com/warpfork/go-errcat"
)

var windowsAbs = regexp.MustCompile(`^[A-Za-z]:`)

// CleanRelPath normalises a slash-separated path taken from a document or a
// diff and rejects anything that could address a file outside its root: empty,
// absolute, drive-letter, UNC or parent-directory paths.
func CleanRelPath(p string) (string, error) {
	raw := strings.TrimSpace(p)
	switch {
	case raw == "":
		return "", errcat.Errorf(types.ErrSecurity, "refusing empty path")
	case strings.HasPrefix(raw, "/"), strings.HasPrefix(raw, `\`), windowsAbs.MatchString(raw):
		return "", errcat.Errorf(types.ErrSecurity, "refusing absolute path: %s", raw)
	}

	clean := path.Clean(strings.ReplaceAll(raw, `\`, "/"))
	if clean == "." {
		return "", errcat.Errorf(types.ErrSecurity, "refusing invalid path: %s", raw)
	}
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return "", errcat.Errorf(types.ErrSecurity, "refusing path traversal: %s", raw)
		}
	}
	return clean, nil
}

// SafeJoin resolves rel under root and verifies, after following symlinks, that
// the target still lies inside root.
func SafeJoin(root, rel string) (string, error) {
	clean, err := CleanRelPath(rel)
	if err != nil {
		return "", err
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", errcat.Errorf(types.ErrIO, "failed to resolve root %s: %s", root, err)
	}
	if resolved, err := filepath.EvalSymlinks(rootAbs); err == nil {
		rootAbs = resolved
	}

	target := filepath.Join(rootAbs, filepath.FromSlash(clean))
	resolved, err := resolveExisting(target)
	if err != nil {
		return "", errcat.Errorf(types.ErrIO, "failed to resolve %s: %s", rel, err)
	}

	inside, err := filepath.Rel(rootAbs, resolved)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", errcat.Errorf(types.ErrSecurity, "refusing path outside root: %s", rel)
	}
	return target, nil
}

// resolveExisting follows symlinks on the longest existing prefix of p and
// re-appends the part that does not exist yet.
func resolveExisting(p string) (string, error) {
	var missing []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		missing = append(missing, filepath.Base(cur))
		cur = parent
	}
}
