package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"policyqa/types"
)

// OllamaEmbedder produces embeddings via an Ollama-compatible endpoint.
type OllamaEmbedder struct {
	client    *http.Client
	apiURL    string
	modelName string
	dimension int
	timeout   time.Duration
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewOllamaEmbedder(apiURL, modelName string, dimension int, timeout time.Duration) *OllamaEmbedder {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &OllamaEmbedder{
		client:    &http.Client{},
		apiURL:    apiURL,
		modelName: modelName,
		dimension: dimension,
		timeout:   timeout,
	}
}

func (e *OllamaEmbedder) Dimension() int { return e.dimension }

// Embed requests an embedding for text. Transport and protocol failures are
// reported as ErrEmbeddingUnavailable so the retriever can apply its retry
// budget.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := ollamaEmbeddingRequest{
		Model:  e.modelName,
		Prompt: text,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d, body: %s", types.ErrEmbeddingUnavailable, resp.StatusCode, string(body))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %s", types.ErrEmbeddingUnavailable, err)
	}

	var ollamaResp ollamaEmbeddingResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		return nil, fmt.Errorf("%w: unmarshal response: %s", types.ErrEmbeddingUnavailable, err)
	}

	if e.dimension > 0 && len(ollamaResp.Embedding) != e.dimension {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d",
			types.ErrEmbeddingUnavailable, len(ollamaResp.Embedding), e.dimension)
	}

	embedding := make([]float32, len(ollamaResp.Embedding))
	for i, v := range ollamaResp.Embedding {
		embedding[i] = float32(v)
	}
	return Normalize(embedding), nil
}

// IsRetryable reports whether err is a transient external failure worth
// another attempt. Invalid input never is.
func IsRetryable(err error) bool {
	return errors.Is(err, types.ErrEmbeddingUnavailable) ||
		errors.Is(err, types.ErrGenerationUnavailable) ||
		errors.Is(err, types.ErrGenerationTimeout)
}
