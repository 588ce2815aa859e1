package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextShortInput(t *testing.T) {
	chunks := SplitText("short text", 100, 20)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestSplitTextEmptyInput(t *testing.T) {
	assert.Nil(t, SplitText("", 100, 20))
}

func TestSplitTextCoversAllContent(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta epsilon ", 50)
	chunks := SplitText(text, 120, 24)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 120)
		assert.NotEmpty(t, c)
	}

	// the last chunk must end where the text ends
	assert.True(t, strings.HasSuffix(text, chunks[len(chunks)-1]))
	// consecutive chunks overlap, so every chunk start appears in the text
	for _, c := range chunks {
		assert.Contains(t, text, c)
	}
}

func TestSplitTextPrefersWordBoundaries(t *testing.T) {
	text := strings.Repeat("abcdefg hijklmn ", 40)
	chunks := SplitText(text, 100, 10)

	for i, c := range chunks {
		if i == len(chunks)-1 {
			continue
		}
		assert.True(t, strings.HasSuffix(c, " "), "chunk %d should break on whitespace: %q", i, c)
	}
}

func TestSplitTextHandlesNoWhitespace(t *testing.T) {
	text := strings.Repeat("x", 500)
	chunks := SplitText(text, 100, 0)

	require.Len(t, chunks, 5)
	for _, c := range chunks {
		assert.Len(t, c, 100)
	}
}

func TestSplitTextOverlapLargerThanChunk(t *testing.T) {
	text := strings.Repeat("y", 250)
	chunks := SplitText(text, 100, 150)

	// degenerate overlap falls back to non-overlapping chunks
	require.Len(t, chunks, 3)
	assert.Equal(t, 250, len(chunks[0])+len(chunks[1])+len(chunks[2]))
}

func TestSplitTextMultibyteRunes(t *testing.T) {
	text := strings.Repeat("日本語のテキスト ", 30)
	chunks := SplitText(text, 50, 10)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 50)
	}
}
