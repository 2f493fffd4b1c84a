package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"policyqa/model"
	"policyqa/types"
)

// Searcher finds the chunks most similar to a query vector. Both the
// in-memory index and the Postgres store implement it.
type Searcher interface {
	Search(ctx context.Context, vec []float32, limit int) ([]types.ScoredChunk, error)
}

// generation is one immutable, fully built version of the vector index.
// Readers hold a reference to a single generation for the duration of a
// lookup; rebuilds swap the pointer atomically and never mutate a published
// generation.
type generation struct {
	ids  []string
	vecs [][]float32
}

// VectorIndex maintains embeddings keyed by chunk id over the chunk store's
// id space. The association is non-owning: every id is resolved against the
// chunk store at lookup time, and an id without a backing chunk is a fault
// of that entry, not of the process.
type VectorIndex struct {
	chunks *ChunkStore
	pub    sync.Mutex // serializes generation publishers; readers stay lock-free
	gen    atomic.Pointer[generation]
	logger *slog.Logger
}

func NewVectorIndex(chunks *ChunkStore) *VectorIndex {
	idx := &VectorIndex{
		chunks: chunks,
		logger: slog.Default(),
	}
	idx.gen.Store(&generation{})
	return idx
}

// Rebuild embeds every stored chunk and publishes a new generation. In-flight
// searches keep reading the previous generation until the swap.
func (idx *VectorIndex) Rebuild(ctx context.Context, embedder model.Embedder) error {
	idx.pub.Lock()
	defer idx.pub.Unlock()

	chunks := idx.chunks.All()
	next := &generation{
		ids:  make([]string, 0, len(chunks)),
		vecs: make([][]float32, 0, len(chunks)),
	}
	for _, c := range chunks {
		vec, err := embedder.Embed(ctx, c.Text)
		if err != nil {
			return fmt.Errorf("embed chunk %s: %w", c.ID, err)
		}
		next.ids = append(next.ids, c.ID)
		next.vecs = append(next.vecs, vec)
	}
	idx.gen.Store(next)
	idx.logger.Info("vector index rebuilt", "chunks", len(next.ids))
	return nil
}

// Extend embeds only the given chunks and publishes a new generation that
// contains the previous entries plus the new ones. The previous generation
// is never mutated.
func (idx *VectorIndex) Extend(ctx context.Context, embedder model.Embedder, chunks []types.Chunk) error {
	idx.pub.Lock()
	defer idx.pub.Unlock()

	prev := idx.gen.Load()
	next := &generation{
		ids:  make([]string, len(prev.ids), len(prev.ids)+len(chunks)),
		vecs: make([][]float32, len(prev.vecs), len(prev.vecs)+len(chunks)),
	}
	copy(next.ids, prev.ids)
	copy(next.vecs, prev.vecs)

	for _, c := range chunks {
		vec, err := embedder.Embed(ctx, c.Text)
		if err != nil {
			return fmt.Errorf("embed chunk %s: %w", c.ID, err)
		}
		next.ids = append(next.ids, c.ID)
		next.vecs = append(next.vecs, vec)
	}
	idx.gen.Store(next)
	return nil
}

// Len returns the number of indexed vectors in the current generation.
func (idx *VectorIndex) Len() int {
	return len(idx.gen.Load().ids)
}

// Search returns up to limit chunks by descending cosine similarity, ties
// broken by chunk id ascending. An empty index yields an empty result. An
// indexed id with no backing chunk is logged and skipped.
func (idx *VectorIndex) Search(_ context.Context, vec []float32, limit int) ([]types.ScoredChunk, error) {
	gen := idx.gen.Load()
	if len(gen.ids) == 0 {
		return nil, nil
	}

	type hit struct {
		id    string
		score float64
	}
	hits := make([]hit, len(gen.ids))
	for i := range gen.ids {
		hits[i] = hit{id: gen.ids[i], score: model.Dot(gen.vecs[i], vec)}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})

	results := make([]types.ScoredChunk, 0, limit)
	for _, h := range hits {
		if len(results) == limit {
			break
		}
		c, ok := idx.chunks.Get(h.id)
		if !ok {
			idx.logger.Error("skipping stale index entry",
				"chunk_id", h.id, "err", types.ErrIndexInconsistency)
			continue
		}
		results = append(results, types.ScoredChunk{Chunk: c, Score: h.score})
	}
	return results, nil
}
