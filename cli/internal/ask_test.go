package internal

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAskRequiresQuestionArgument(t *testing.T) {
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"ask"})

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "arg")
}

func TestChunkWords(t *testing.T) {
	chunks := chunkWords("a b c d e f g h i j", "policy.txt", 4, 1)

	require.Len(t, chunks, 3)
	assert.Equal(t, "policy.txt:0", chunks[0].ID)
	assert.Equal(t, "a b c d", chunks[0].Text)
	assert.Equal(t, "d e f g", chunks[1].Text)
	assert.Equal(t, 3, chunks[1].Offset)
	assert.Equal(t, "g h i j", chunks[2].Text)
}

func TestChunkWordsEmptyText(t *testing.T) {
	assert.Empty(t, chunkWords("  \n\t ", "policy.txt", 200, 20))
}

func TestChunkWordsIsDeterministic(t *testing.T) {
	first := chunkWords("one two three four five six", "policy.txt", 3, 1)
	second := chunkWords("one two three four five six", "policy.txt", 3, 1)
	assert.Equal(t, first, second)
}
