package tokenutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountTokens(t *testing.T) {
	assert.Equal(t, 0, CountTokens(""))
	assert.Equal(t, 0, CountTokens("   "))
	assert.Greater(t, CountTokens("规划5天日本游，包含东京、京都、大阪"), 0)
	assert.Greater(t, CountTokens("plan a five day trip to Japan"), 0)
}

func TestEstimateFast(t *testing.T) {
	assert.Equal(t, 0, EstimateFast(""))
	assert.Equal(t, 0, EstimateFast(" \t\n"))

	// Short text never estimates to zero.
	assert.Equal(t, 1, EstimateFast("嗨"))

	// runes/4 dominates for CJK text without spaces.
	assert.Equal(t, 10, EstimateFast(strings.Repeat("清", 40)))

	// The word count dominates for whitespace-separated text.
	assert.Equal(t, 4, EstimateFast("hello world foo bar"))
}
