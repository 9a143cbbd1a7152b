package textx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "hello\nworld\t!", SanitizeText("he\x00llo\nwo\x7frld\t!"))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", Snippet("  a\n\n b\t c  ", 100))
	assert.Equal(t, "abc...", Snippet("abcdef", 3))
	// never split a multi-byte rune
	assert.Equal(t, "é...", Snippet("éé", 3))
	assert.Equal(t, "abcdef", Snippet("abcdef", 0))
}

func TestContainsAnyFold(t *testing.T) {
	needles := []string{"i cannot", "je ne peux pas"}
	assert.True(t, ContainsAnyFold("Sorry, I CANNOT help", needles))
	assert.True(t, ContainsAnyFold("Je ne peux pas faire ça", needles))
	assert.False(t, ContainsAnyFold("Here is your poem", needles))
	assert.False(t, ContainsAnyFold("", needles))
	assert.False(t, ContainsAnyFold("anything", []string{""}))
}
