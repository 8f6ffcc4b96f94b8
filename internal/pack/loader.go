package pack

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/agusespa/codecrate/internal/safety"
	"github.com/agusespa/codecrate/internal/tokens"
	"github.com/agusespa/codecrate/internal/types"
	"github.com/agusespa/codecrate/internal/utils"
	"github.com/warpfork/go-errcat"
	"golang.org/x/sync/errgroup"
)

// EncodingPolicy decides what happens to bytes that are not valid UTF-8.
type EncodingPolicy string

const (
	EncodingReplace EncodingPolicy = "replace"
	EncodingStrict  EncodingPolicy = "strict"
)

func ParseEncodingPolicy(s string) (EncodingPolicy, error) {
	switch p := EncodingPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return EncodingReplace, nil
	case EncodingReplace, EncodingStrict:
		return p, nil
	default:
		return "", errcat.Errorf(types.ErrUsage, "unknown encoding error policy %q (want replace or strict)", s)
	}
}

const maxWorkers = 8

// WorkerCount sizes the load pool: an explicit override wins, otherwise the
// available parallelism capped at a small constant and at the item count.
func WorkerCount(override, items int) int {
	n := override
	if n <= 0 {
		n = min(runtime.GOMAXPROCS(0), maxWorkers)
	}
	n = min(n, items)
	return max(n, 1)
}

type LoadOptions struct {
	Workers  int
	Encoding EncodingPolicy
	Counter  *tokens.Counter
}

// SourceFile is one decoded, newline-normalised input file.
type SourceFile struct {
	Path     string
	Text     string
	Size     int64
	Tokens   int
	Redacted bool
}

// LoadFiles reads and decodes paths (slash-separated, relative to root) on a bounded
// worker pool. Results keep the input order. The first failing file aborts the load.
func LoadFiles(ctx context.Context, root string, paths []string, opts LoadOptions) ([]SourceFile, error) {
	results := make([]SourceFile, len(paths))
	if len(paths) == 0 {
		return results, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(WorkerCount(opts.Workers, len(paths)))

	for i, rel := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := loadFile(root, rel, opts)
			if err != nil {
				return err
			}
			results[i] = f
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func loadFile(root, rel string, opts LoadOptions) (SourceFile, error) {
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return SourceFile{}, errcat.Errorf(types.ErrIO, "failed to read %s: %s", rel, err)
	}
	text, err := Decode(data, opts.Encoding)
	if err != nil {
		return SourceFile{}, errcat.Errorf(types.ErrIO, "failed to decode %s: %s", rel, err)
	}
	text = utils.NormalizeNewlines(text)

	f := SourceFile{Path: rel, Text: text, Size: int64(len(data))}
	if opts.Counter != nil {
		f.Tokens = opts.Counter.Count(text)
	}
	return f, nil
}

// Decode converts data to a string under policy. The replace policy substitutes
// U+FFFD for every invalid byte.
func Decode(data []byte, policy EncodingPolicy) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	if policy == EncodingStrict {
		for i := 0; i < len(data); {
			r, size := utf8.DecodeRune(data[i:])
			if r == utf8.RuneError && size == 1 {
				return "", fmt.Errorf("invalid UTF-8 at byte %d", i)
			}
			i += size
		}
	}

	var b strings.Builder
	b.Grow(len(data))
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteRune(utf8.RuneError)
		} else {
			b.Write(data[i : i+size])
		}
		i += size
	}
	return b.String(), nil
}

// Partition applies the safety filter: flagged files are dropped or masked
// depending on the filter's action.
func Partition(files []SourceFile, filter *safety.Filter) ([]SourceFile, []types.SkippedFile) {
	if filter == nil {
		return files, nil
	}
	var kept []SourceFile
	var skipped []types.SkippedFile
	for _, f := range files {
		reason, flagged := filter.Check(f.Path, f.Text)
		if !flagged {
			kept = append(kept, f)
			continue
		}
		if filter.Action() == safety.ActionRedact {
			f.Text = safety.Redact(f.Text)
			f.Redacted = true
			kept = append(kept, f)
		}
		skipped = append(skipped, types.SkippedFile{Path: f.Path, Reason: reason})
	}
	return kept, skipped
}
