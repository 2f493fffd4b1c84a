package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policyqa/types"
)

func TestChunkStoreAppendAndGet(t *testing.T) {
	s := NewChunkStore()

	err := s.Append("doc-1", []types.Chunk{
		{ID: "c1", Text: "first clause", Source: "policy.pdf"},
		{ID: "c2", Text: "second clause", Source: "policy.pdf"},
	})
	require.NoError(t, err)

	c, ok := s.Get("c1")
	require.True(t, ok)
	assert.Equal(t, "first clause", c.Text)

	_, ok = s.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 2, s.Len())
}

func TestChunkStoreRejectsDuplicateID(t *testing.T) {
	s := NewChunkStore()
	require.NoError(t, s.Append("doc-1", []types.Chunk{{ID: "c1", Text: "first"}}))

	err := s.Append("doc-2", []types.Chunk{{ID: "c1", Text: "second"}})

	require.ErrorIs(t, err, types.ErrDuplicateChunk)
	c, _ := s.Get("c1")
	assert.Equal(t, "first", c.Text)
}

func TestChunkStoreRejectsWholeBatchOnDuplicate(t *testing.T) {
	s := NewChunkStore()
	require.NoError(t, s.Append("doc-1", []types.Chunk{{ID: "c1", Text: "first"}}))

	err := s.Append("doc-2", []types.Chunk{
		{ID: "c2", Text: "new"},
		{ID: "c1", Text: "duplicate"},
	})

	require.ErrorIs(t, err, types.ErrDuplicateChunk)
	_, ok := s.Get("c2")
	assert.False(t, ok, "a rejected batch must not be half-ingested")
	assert.Equal(t, 1, s.Len())
}

func TestChunkStoreAllPreservesInsertionOrder(t *testing.T) {
	s := NewChunkStore()
	require.NoError(t, s.Append("doc-1", []types.Chunk{{ID: "b"}, {ID: "a"}}))
	require.NoError(t, s.Append("doc-2", []types.Chunk{{ID: "c"}}))

	all := s.All()

	require.Len(t, all, 3)
	assert.Equal(t, "b", all[0].ID)
	assert.Equal(t, "a", all[1].ID)
	assert.Equal(t, "c", all[2].ID)
}
