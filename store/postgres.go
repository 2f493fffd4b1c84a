package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"policyqa/types"
)

// PostgresStore is the durable alternative to the in-memory chunk store and
// vector index, backed by pgvector. Snapshot isolation of concurrent reads
// is delegated to Postgres MVCC.
type PostgresStore struct {
	pool      *pgxpool.Pool
	dimension int
}

func NewPostgresStore(ctx context.Context, connStr string, dimension int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool:      pool,
		dimension: dimension,
	}, nil
}

// SaveChunks persists an ordered batch of chunks with their embeddings.
// Duplicate ids reject the batch, mirroring ChunkStore.Append.
func (p *PostgresStore) SaveChunks(ctx context.Context, documentRef string, chunks []types.Chunk, vecs [][]float32) error {
	if len(chunks) != len(vecs) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vecs))
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
    INSERT INTO clauses (id, document_ref, chunk_offset, source, content, embedding)
    VALUES ($1, $2, $3, $4, $5, $6)
    `
	for i, c := range chunks {
		_, err := tx.Exec(ctx, query,
			c.ID, documentRef, c.Offset, c.Source, c.Text, pgvector.NewVector(vecs[i]),
		)
		if err != nil {
			return classifySaveError(err, c.ID)
		}
	}
	return tx.Commit(ctx)
}

// classifySaveError maps a unique violation (SQLSTATE 23505) to
// ErrDuplicateChunk; every other write failure passes through unchanged so
// transient faults stay retryable.
func classifySaveError(err error, id string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", types.ErrDuplicateChunk, id)
	}
	return fmt.Errorf("save chunk %s: %w", id, err)
}

// GetChunk resolves one chunk by id.
func (p *PostgresStore) GetChunk(ctx context.Context, id string) (*types.Chunk, error) {
	rows, err := p.pool.Query(ctx,
		"select id, content, source, chunk_offset from clauses where id = $1", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, sql.ErrNoRows
	}

	c := &types.Chunk{}
	if err := rows.Scan(&c.ID, &c.Text, &c.Source, &c.Offset); err != nil {
		return nil, err
	}
	return c, nil
}

// Search returns the closest chunks by cosine similarity, ties broken by id
// ascending for deterministic ordering.
func (p *PostgresStore) Search(ctx context.Context, vec []float32, limit int) ([]types.ScoredChunk, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	vector := pgvector.NewVector(vec)

	query := `
		SELECT cl.id, cl.content, cl.source, cl.chunk_offset,
		       1 - (cl.embedding <=> $1) as score
		FROM clauses cl
		WHERE cl.embedding IS NOT NULL
		ORDER BY cl.embedding <=> $1, cl.id
		LIMIT $2
	`
	rows, err := p.pool.Query(ctx, query, vector, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []types.ScoredChunk
	for rows.Next() {
		var c types.Chunk
		var score float64
		if err := rows.Scan(&c.ID, &c.Text, &c.Source, &c.Offset, &score); err != nil {
			return nil, err
		}
		results = append(results, types.ScoredChunk{Chunk: c, Score: score})
	}
	return results, rows.Err()
}

func (p *PostgresStore) createTables(ctx context.Context) error {
	query := fmt.Sprintf(`
    CREATE EXTENSION IF NOT EXISTS vector;

    CREATE TABLE IF NOT EXISTS clauses (
        id TEXT PRIMARY KEY,
        document_ref TEXT NOT NULL,
        chunk_offset INT NOT NULL,
        source TEXT,
        content TEXT NOT NULL,
        embedding vector(%d)
    );

	CREATE INDEX IF NOT EXISTS idx_clauses_embedding ON clauses USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_clauses_document_ref ON clauses(document_ref);
    `, p.dimension)
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createTables(ctx)
}

// Close closes the connection pool.
func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		log.Println("Postgres connection pool is closed")
	}
	return nil
}
