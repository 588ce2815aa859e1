package service

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestGraphSnippetShortContentUnchanged(t *testing.T) {
	content := "a short chunk"
	assert.Equal(t, content, graphSnippet(content))
}

func TestGraphSnippetTruncatesOnRuneBoundary(t *testing.T) {
	// two-byte runes, a byte-indexed cut at 300 would land mid-rune
	content := strings.Repeat("ü", 400)

	snippet := graphSnippet(content)

	assert.True(t, utf8.ValidString(snippet))
	assert.Equal(t, graphSnippetMaxRunes, utf8.RuneCountInString(snippet))
}
