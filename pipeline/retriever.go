package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"policyqa/model"
	"policyqa/store"
	"policyqa/types"
)

// Retriever embeds a query and looks up the most similar chunks. It is
// read-only with respect to the index. Embedding calls are the only
// suspension point and are retried with exponential backoff up to a fixed
// attempt budget.
type Retriever struct {
	embedder    model.Embedder
	searcher    store.Searcher
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

func NewRetriever(embedder model.Embedder, searcher store.Searcher, maxAttempts int, backoff time.Duration) *Retriever {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	if backoff == 0 {
		backoff = 200 * time.Millisecond
	}
	return &Retriever{
		embedder:    embedder,
		searcher:    searcher,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		logger:      slog.Default(),
	}
}

// Retrieve returns at most topK chunks ranked by descending similarity with
// no duplicate ids. An empty index yields an empty result, not an error;
// callers must handle zero evidence explicitly.
func (r *Retriever) Retrieve(ctx context.Context, queryText string, topK int) (types.RetrievalResult, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, fmt.Errorf("%w: empty query text", types.ErrInvalidQuery)
	}
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be >= 1, got %d", types.ErrInvalidQuery, topK)
	}

	vec, err := r.embedWithRetry(ctx, queryText)
	if err != nil {
		return nil, err
	}

	hits, err := r.searcher.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	// Dedup by chunk id: re-chunking can map several near-identical vectors
	// to the same chunk.
	seen := make(map[string]struct{}, len(hits))
	result := make(types.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.Chunk.ID]; ok {
			continue
		}
		seen[h.Chunk.ID] = struct{}{}
		result = append(result, h)
		if len(result) == topK {
			break
		}
	}
	return result, nil
}

func (r *Retriever) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	backoff := r.backoff

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		vec, err := r.embedder.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if !model.IsRetryable(err) {
			return nil, err
		}
		r.logger.Warn("embedding attempt failed",
			"attempt", attempt, "max_attempts", r.maxAttempts, "err", err)

		if attempt == r.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", types.ErrEmbeddingUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("embedding failed after %d attempts: %w", r.maxAttempts, lastErr)
}
