package patch

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbered(n int, change map[int]string) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		if s, ok := change[i]; ok {
			b.WriteString(s + "\n")
			continue
		}
		fmt.Fprintf(&b, "l%d\n", i)
	}
	return b.String()
}

func TestBuildHunks_Grouping(t *testing.T) {
	old := numbered(20, nil)

	t.Run("distant changes split", func(t *testing.T) {
		hunks := buildHunks(old, numbered(20, map[int]string{2: "L2", 18: "L18"}), defaultContext)
		require.Len(t, hunks, 2)
		assert.Equal(t, "@@ -1,5 +1,5 @@", hunks[0].Header())
		assert.Equal(t, "@@ -15,6 +15,6 @@", hunks[1].Header())
	})

	t.Run("close changes merge", func(t *testing.T) {
		hunks := buildHunks(old, numbered(20, map[int]string{5: "L5", 10: "L10"}), defaultContext)
		require.Len(t, hunks, 1)
		assert.Equal(t, "@@ -2,12 +2,12 @@", hunks[0].Header())
	})

	t.Run("identical", func(t *testing.T) {
		assert.Empty(t, buildHunks(old, old, defaultContext))
	})

	t.Run("new file", func(t *testing.T) {
		hunks := buildHunks("", "a\nb\n", defaultContext)
		require.Len(t, hunks, 1)
		assert.Equal(t, "@@ -0,0 +1,2 @@", hunks[0].Header())
	})
}

func TestBuildHunks_ApplyRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		old  string
		new  string
	}{
		{"modify middle", numbered(12, nil), numbered(12, map[int]string{6: "changed"})},
		{"append", "a\nb\n", "a\nb\nc\n"},
		{"prepend", "a\nb\n", "z\na\nb\n"},
		{"delete all", "a\nb\n", ""},
		{"create", "", "a\n"},
		{"drop trailing newline", "a\nb\n", "a\nb"},
		{"add trailing newline", "a\nb", "a\nb\n"},
		{"both without newline", "a\nb", "a\nc"},
		{"unchanged tail without newline", "a\nb\nc\nd\ne\nf", "A\nb\nc\nd\ne\nf"},
		{"distant edits", numbered(30, nil), numbered(30, map[int]string{1: "first", 29: "late", 30: "last"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hunks := buildHunks(tt.old, tt.new, defaultContext)
			got, err := ApplyToText(tt.old, hunks)
			require.NoError(t, err)
			assert.Equal(t, tt.new, got)
		})
	}
}

func TestBuildHunks_FullRewrite(t *testing.T) {
	const n = 5000
	var oldText, newText strings.Builder
	for i := range n {
		fmt.Fprintf(&oldText, "old %d\n", i)
		fmt.Fprintf(&newText, "new %d\n", i)
	}

	hunks := buildHunks(oldText.String(), newText.String(), defaultContext)
	require.Len(t, hunks, 1)
	assert.Equal(t, fmt.Sprintf("@@ -1,%d +1,%d @@", n, n), hunks[0].Header())
	assert.Len(t, hunks[0].Lines, 2*n)

	got, err := ApplyToText(oldText.String(), hunks)
	require.NoError(t, err)
	assert.Equal(t, newText.String(), got)
}
