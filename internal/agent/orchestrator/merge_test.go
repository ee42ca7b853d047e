package orchestrator

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestBrowseSnippetTruncatesOnRuneBoundary(t *testing.T) {
	// 200 three-byte runes, 600 bytes: the cap falls mid-rune and must back
	// off to the previous boundary.
	content := strings.Repeat("清", 200)

	out := browseSnippet(map[string]any{"content": content})

	assert.True(t, utf8.ValidString(out))
	assert.LessOrEqual(t, len(out), 500)
	assert.Equal(t, strings.Repeat("清", 166), out)
}

func TestBrowseSnippetKeepsShortContentIntact(t *testing.T) {
	out := browseSnippet(map[string]any{
		"title":   "余票信息",
		"content": "下周六尚有余票。",
	})
	assert.Equal(t, "余票信息: 下周六尚有余票。", out)
}
