package tokens

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApprox(t *testing.T) {
	assert.Equal(t, 0, Approx(""))
	assert.Equal(t, 1, Approx("abc"))
	assert.Equal(t, 1, Approx("abcd"))
	assert.Equal(t, 2, Approx("abcde"))
	assert.Equal(t, 1, Approx("↪↪↪"), "counts characters, not bytes")
}

func TestCounter_CachesByContent(t *testing.T) {
	counter, err := NewCounter("", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultEncoding, counter.Encoding())

	assert.Equal(t, 4, counter.Count("def f(): pass"))
	assert.Equal(t, 4, counter.Count("def f(): pass"))
	assert.Equal(t, 1, counter.CacheLen())

	assert.Equal(t, 0, counter.Count(""))
	assert.Equal(t, 1, counter.CacheLen())
}

func TestCounter_ConcurrentUse(t *testing.T) {
	counter, err := NewCounter("cl100k_base", 8)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, 3, counter.Count("same text"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, counter.CacheLen())
}

func TestFormatTopFiles(t *testing.T) {
	out := FormatTopFiles(map[string]int{"a.py": 10, "b.py": 30, "c.py": 20}, 2)
	assert.Equal(t, "Top files by tokens:\n 1. b.py (30 tokens)\n 2. c.py (20 tokens)\n", out)
	assert.Empty(t, FormatTopFiles(map[string]int{"a.py": 1}, 0))
}
