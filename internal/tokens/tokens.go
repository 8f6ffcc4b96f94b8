// Package tokens estimates token counts for pack diagnostics.
package tokens

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agusespa/codecrate/internal/ids"
	"github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultEncoding  = "o200k_base"
	DefaultCacheSize = 4096
)

type cacheKey struct {
	encoding string
	hash     string
}

// Counter memoises counts by (encoding, content hash). It is safe for concurrent
// use: the cache locks internally and counting itself needs no lock.
type Counter struct {
	encoding string
	cache    *lru.Cache[cacheKey, int]
}

func NewCounter(encoding string, cacheSize int) (*Counter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, int](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create token cache: %w", err)
	}
	return &Counter{encoding: encoding, cache: cache}, nil
}

func (c *Counter) Encoding() string {
	return c.encoding
}

// Backend names the counting strategy. Only the character heuristic is built in.
func (c *Counter) Backend() string {
	return "approx"
}

func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	key := cacheKey{encoding: c.encoding, hash: ids.ContentHash(text)}
	if n, ok := c.cache.Get(key); ok {
		return n
	}
	n := Approx(text)
	c.cache.Add(key, n)
	return n
}

// CacheLen reports how many distinct contents are memoised.
func (c *Counter) CacheLen() int {
	return c.cache.Len()
}

// Approx assumes roughly four characters per token for source text.
func Approx(text string) int {
	if text == "" {
		return 0
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}

// FormatTopFiles lists the n largest files by token count.
func FormatTopFiles(fileTokens map[string]int, n int) string {
	if n <= 0 || len(fileTokens) == 0 {
		return ""
	}
	paths := make([]string, 0, len(fileTokens))
	for p := range fileTokens {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		if fileTokens[paths[i]] != fileTokens[paths[j]] {
			return fileTokens[paths[i]] > fileTokens[paths[j]]
		}
		return paths[i] < paths[j]
	})
	if len(paths) > n {
		paths = paths[:n]
	}

	var b strings.Builder
	b.WriteString("Top files by tokens:\n")
	for i, p := range paths {
		fmt.Fprintf(&b, "%2d. %s (%d tokens)\n", i+1, p, fileTokens[p])
	}
	return b.String()
}
