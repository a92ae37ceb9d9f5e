package pdf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenthub/internal/session"
)

func TestSplit(t *testing.T) {
	assert.Nil(t, Split("  \n\t ", 10, 2))
	assert.Equal(t, []string{"one two"}, Split("one\ntwo", 100, 10))

	text := "aaaa bbbb cccc dddd eeee ffff"
	chunks := Split(text, 14, 5)
	require.Equal(t, []string{"aaaa bbbb cccc", "cccc dddd eeee", "eeee ffff"}, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 14)
	}

	// a word longer than size is kept whole
	assert.Equal(t, []string{"x", strings.Repeat("y", 20), "z"}, Split("x "+strings.Repeat("y", 20)+" z", 5, 0))
}

func TestSplit_AlwaysAdvances(t *testing.T) {
	chunks := Split("a b c d e f g h", 3, 100)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "g h", chunks[len(chunks)-1])
}

func TestRetrieve(t *testing.T) {
	chunks := []session.Chunk{
		{Index: 0, Content: "Introduction to pumps"},
		{Index: 1, Content: "Warranty terms: the warranty lasts two years"},
		{Index: 2, Content: "Filter replacement schedule"},
		{Index: 3, Content: "Warranty claims need a receipt"},
	}

	got := Retrieve(chunks, "What does the warranty cover?", 2)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, 3, got[1].Index)

	// nothing matches: leading chunks
	got = Retrieve(chunks, "zzz", 2)
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, 1, got[1].Index)

	assert.Len(t, Retrieve(chunks, "x", 10), 4)
	assert.Nil(t, Retrieve(chunks, "x", 0))
}
