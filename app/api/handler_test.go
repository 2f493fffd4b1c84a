package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policyqa/pipeline"
	"policyqa/store"
	"policyqa/types"
)

type staticEmbedder struct{}

func (staticEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (staticEmbedder) Dimension() int { return 2 }

func newAnswerApp(t *testing.T, chunks []types.Chunk) *fiber.App {
	t.Helper()

	cs := store.NewChunkStore()
	idx := store.NewVectorIndex(cs)
	embedder := staticEmbedder{}
	if len(chunks) > 0 {
		require.NoError(t, cs.Append("doc-1", chunks))
		require.NoError(t, idx.Extend(context.Background(), embedder, chunks))
	}

	p := pipeline.New(
		pipeline.NewParser(nil),
		pipeline.NewRetriever(embedder, idx, 1, time.Millisecond),
		pipeline.NewEngine(pipeline.DefaultRules(), nil, pipeline.EngineConfig{}),
		5,
	)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Post("/api/v1/answer", NewAnswerHandler(p).HandleAnswer)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestHandleAnswer(t *testing.T) {
	app := newAnswerApp(t, []types.Chunk{
		{ID: "c1", Text: "A grace period of 30 days is provided for premium payment.", Source: "policy.pdf"},
	})

	resp := postJSON(t, app, "/api/v1/answer",
		`{"document_ref": "doc-1", "question": "What is the grace period for premium payment?"}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var dr types.DecisionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&dr))
	assert.Equal(t, "undetermined", dr.Decision)
	assert.Contains(t, dr.Justification, "30 days")
	require.Len(t, dr.Clauses, 1)
	assert.Equal(t, "c1", dr.Clauses[0].ID)
}

func TestHandleAnswerMalformedBody(t *testing.T) {
	app := newAnswerApp(t, nil)

	resp := postJSON(t, app, "/api/v1/answer", `{"document_ref": `)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleAnswerValidation(t *testing.T) {
	app := newAnswerApp(t, nil)

	resp := postJSON(t, app, "/api/v1/answer", `{"document_ref": "doc-1"}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var ve ValidationError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ve))
	assert.Contains(t, ve.Errors, "Question")
}

// fakeIngester records calls and optionally fails.
type fakeIngester struct {
	err   error
	calls int
}

func (f *fakeIngester) Ingest(_ context.Context, _ string, _ []types.Chunk) error {
	f.calls++
	return f.err
}

func newIngestApp(ingester Ingester) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Post("/api/v1/ingest", NewIngestHandler(ingester).HandleIngest)
	return app
}

func TestHandleIngest(t *testing.T) {
	ingester := &fakeIngester{}
	app := newIngestApp(ingester)

	resp := postJSON(t, app, "/api/v1/ingest",
		`{"document_ref": "doc-1", "chunks": [{"id": "c1", "text": "clause", "source": "policy.pdf", "offset": 0}]}`)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, ingester.calls)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"result":"ok"`)
}

func TestHandleIngestEmptyChunks(t *testing.T) {
	ingester := &fakeIngester{}
	app := newIngestApp(ingester)

	resp := postJSON(t, app, "/api/v1/ingest", `{"document_ref": "doc-1", "chunks": []}`)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, 0, ingester.calls)
}

func TestHandleIngestDuplicateConflict(t *testing.T) {
	ingester := &fakeIngester{err: types.ErrDuplicateChunk}
	app := newIngestApp(ingester)

	resp := postJSON(t, app, "/api/v1/ingest",
		`{"document_ref": "doc-1", "chunks": [{"id": "c1", "text": "clause"}]}`)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
