package store

import (
	"fmt"
	"sync"

	"policyqa/types"
)

// ChunkStore is the exclusive owner of chunk lifetime. Chunks are appended
// at ingest time and immutable afterwards; the store is read-mostly and safe
// for concurrent use.
type ChunkStore struct {
	mu    sync.RWMutex
	byID  map[string]types.Chunk
	order []string
	byDoc map[string][]string
}

func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		byID:  make(map[string]types.Chunk),
		byDoc: make(map[string][]string),
	}
}

// Append adds an ordered sequence of chunks for one document. Chunk ids must
// be unique across the whole store; a duplicate rejects the entire batch so
// a document is never half-ingested.
func (s *ChunkStore) Append(documentRef string, chunks []types.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if _, ok := s.byID[c.ID]; ok {
			return fmt.Errorf("%w: %s", types.ErrDuplicateChunk, c.ID)
		}
	}
	for _, c := range chunks {
		s.byID[c.ID] = c
		s.order = append(s.order, c.ID)
		s.byDoc[documentRef] = append(s.byDoc[documentRef], c.ID)
	}
	return nil
}

// Get resolves a chunk id, reporting whether it exists.
func (s *ChunkStore) Get(id string) (types.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	return c, ok
}

// All returns every chunk in insertion order.
func (s *ChunkStore) All() []types.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := make([]types.Chunk, 0, len(s.order))
	for _, id := range s.order {
		chunks = append(chunks, s.byID[id])
	}
	return chunks
}

// Len returns the number of stored chunks.
func (s *ChunkStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
