package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policyqa/types"
)

// mapEmbedder returns a preset vector per text, so similarity ordering is
// fully controlled by the test.
type mapEmbedder struct {
	vectors map[string][]float32
}

func (m *mapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec, ok := m.vectors[text]
	if !ok {
		return []float32{0, 0}, nil
	}
	return vec, nil
}

func (m *mapEmbedder) Dimension() int { return 2 }

func buildIndex(t *testing.T, chunks []types.Chunk, vectors map[string][]float32) (*ChunkStore, *VectorIndex) {
	t.Helper()
	cs := NewChunkStore()
	require.NoError(t, cs.Append("doc-1", chunks))
	idx := NewVectorIndex(cs)
	require.NoError(t, idx.Rebuild(context.Background(), &mapEmbedder{vectors: vectors}))
	return cs, idx
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := NewVectorIndex(NewChunkStore())

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 5)

	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchOrdersByDescendingSimilarity(t *testing.T) {
	_, idx := buildIndex(t,
		[]types.Chunk{
			{ID: "c1", Text: "near"},
			{ID: "c2", Text: "far"},
			{ID: "c3", Text: "middle"},
		},
		map[string][]float32{
			"near":   {1, 0},
			"far":    {0, 1},
			"middle": {0.7, 0.7},
		})

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 3)

	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "c1", hits[0].Chunk.ID)
	assert.Equal(t, "c3", hits[1].Chunk.ID)
	assert.Equal(t, "c2", hits[2].Chunk.ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.Greater(t, hits[1].Score, hits[2].Score)
}

func TestSearchBreaksTiesByIDAscending(t *testing.T) {
	vec := []float32{1, 0}
	_, idx := buildIndex(t,
		[]types.Chunk{
			{ID: "c9", Text: "tie a"},
			{ID: "c2", Text: "tie b"},
			{ID: "c5", Text: "tie c"},
		},
		map[string][]float32{
			"tie a": vec,
			"tie b": vec,
			"tie c": vec,
		})

	hits, err := idx.Search(context.Background(), vec, 3)

	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "c2", hits[0].Chunk.ID)
	assert.Equal(t, "c5", hits[1].Chunk.ID)
	assert.Equal(t, "c9", hits[2].Chunk.ID)
}

func TestSearchCapsAtLimit(t *testing.T) {
	_, idx := buildIndex(t,
		[]types.Chunk{
			{ID: "c1", Text: "a"},
			{ID: "c2", Text: "b"},
			{ID: "c3", Text: "c"},
		},
		map[string][]float32{
			"a": {1, 0},
			"b": {0.9, 0.1},
			"c": {0, 1},
		})

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 2)

	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "c1", hits[0].Chunk.ID)
	assert.Equal(t, "c2", hits[1].Chunk.ID)
}

func TestSearchSkipsEntriesWithoutBackingChunk(t *testing.T) {
	cs := NewChunkStore()
	require.NoError(t, cs.Append("doc-1", []types.Chunk{{ID: "c1", Text: "real"}}))
	idx := NewVectorIndex(cs)
	embedder := &mapEmbedder{vectors: map[string][]float32{
		"real":  {0.5, 0.5},
		"ghost": {1, 0},
	}}
	require.NoError(t, idx.Rebuild(context.Background(), embedder))
	// The ghost entry is indexed but was never stored as a chunk.
	require.NoError(t, idx.Extend(context.Background(), embedder, []types.Chunk{{ID: "cx", Text: "ghost"}}))

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 5)

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].Chunk.ID)
}

func TestExtendPreservesExistingEntries(t *testing.T) {
	cs := NewChunkStore()
	require.NoError(t, cs.Append("doc-1", []types.Chunk{{ID: "c1", Text: "a"}}))
	idx := NewVectorIndex(cs)
	embedder := &mapEmbedder{vectors: map[string][]float32{
		"a": {1, 0},
		"b": {0, 1},
	}}
	require.NoError(t, idx.Rebuild(context.Background(), embedder))

	extra := []types.Chunk{{ID: "c2", Text: "b"}}
	require.NoError(t, cs.Append("doc-2", extra))
	require.NoError(t, idx.Extend(context.Background(), embedder, extra))

	assert.Equal(t, 2, idx.Len())
	hits, err := idx.Search(context.Background(), []float32{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "c2", hits[0].Chunk.ID)
}

// slowEmbedder widens the window between loading the previous generation and
// publishing the next one.
type slowEmbedder struct {
	inner mapEmbedder
	delay time.Duration
}

func (s *slowEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	time.Sleep(s.delay)
	return s.inner.Embed(ctx, text)
}

func (s *slowEmbedder) Dimension() int { return s.inner.Dimension() }

func TestExtendConcurrentBatchesAllIndexed(t *testing.T) {
	embedder := &slowEmbedder{
		inner: mapEmbedder{vectors: map[string][]float32{
			"a": {1, 0},
			"b": {0, 1},
		}},
		delay: 2 * time.Millisecond,
	}
	batches := [][]types.Chunk{
		{{ID: "c1", Text: "a"}},
		{{ID: "c2", Text: "b"}},
	}

	for round := 0; round < 20; round++ {
		cs := NewChunkStore()
		require.NoError(t, cs.Append("doc-1", batches[0]))
		require.NoError(t, cs.Append("doc-2", batches[1]))
		idx := NewVectorIndex(cs)

		var wg sync.WaitGroup
		errs := make(chan error, len(batches))
		for _, batch := range batches {
			wg.Add(1)
			go func(batch []types.Chunk) {
				defer wg.Done()
				errs <- idx.Extend(context.Background(), embedder, batch)
			}(batch)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		// Neither concurrently published batch may overwrite the other.
		require.Equal(t, 2, idx.Len())
		hits, err := idx.Search(context.Background(), []float32{1, 0}, 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
	}
}

func TestRebuildSwapsGenerationAtomically(t *testing.T) {
	cs := NewChunkStore()
	require.NoError(t, cs.Append("doc-1", []types.Chunk{{ID: "c1", Text: "a"}}))
	idx := NewVectorIndex(cs)
	embedder := &mapEmbedder{vectors: map[string][]float32{"a": {1, 0}}}

	// Before the first rebuild the index is published but empty.
	assert.Equal(t, 0, idx.Len())
	require.NoError(t, idx.Rebuild(context.Background(), embedder))
	assert.Equal(t, 1, idx.Len())
}
