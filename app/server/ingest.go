package server

import (
	"context"

	"policyqa/model"
	"policyqa/store"
	"policyqa/types"
)

// IngestService appends chunk records supplied by the ingestion boundary and
// keeps the vector index in step with the chunk store's id space.
type IngestService struct {
	chunks   *store.ChunkStore
	index    *store.VectorIndex
	pg       *store.PostgresStore
	embedder model.Embedder
}

func NewIngestService(chunks *store.ChunkStore, index *store.VectorIndex, pg *store.PostgresStore, embedder model.Embedder) *IngestService {
	return &IngestService{
		chunks:   chunks,
		index:    index,
		pg:       pg,
		embedder: embedder,
	}
}

// Ingest stores the ordered chunk batch and indexes its embeddings. With a
// Postgres backend the embeddings are persisted alongside the chunks;
// otherwise the in-memory index publishes a new generation.
func (s *IngestService) Ingest(ctx context.Context, documentRef string, chunks []types.Chunk) error {
	if s.pg != nil {
		vecs := make([][]float32, len(chunks))
		for i, c := range chunks {
			vec, err := s.embedder.Embed(ctx, c.Text)
			if err != nil {
				return err
			}
			vecs[i] = vec
		}
		return s.pg.SaveChunks(ctx, documentRef, chunks, vecs)
	}

	if err := s.chunks.Append(documentRef, chunks); err != nil {
		return err
	}
	return s.index.Extend(ctx, s.embedder, chunks)
}
