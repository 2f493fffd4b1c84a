package api

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"policyqa/pipeline"
	"policyqa/types"
)

// AnswerHandler exposes the query-to-decision pipeline over HTTP.
type AnswerHandler struct {
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

func NewAnswerHandler(p *pipeline.Pipeline) *AnswerHandler {
	return &AnswerHandler{
		pipeline: p,
		logger:   slog.Default(),
	}
}

// HandleAnswer runs one question through the pipeline and returns the
// serialized decision. The pipeline degrades external failures internally,
// so the only error paths here are malformed requests.
func (h *AnswerHandler) HandleAnswer(c *fiber.Ctx) error {
	var params types.AnswerParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	reqID := uuid.New()
	h.logger.Info("answer request",
		"request_id", reqID, "document_ref", params.DocumentRef)

	decision, err := h.pipeline.AnswerTopK(c.Context(), params.DocumentRef, params.Question, params.TopK)
	if err != nil {
		// Invalid input is rejected before any retrieval work begins.
		return ErrInvalidQuery(err)
	}

	return c.JSON(types.NewDecisionResponse(decision))
}

// IngestHandler accepts ordered chunk records for a document.
type IngestHandler struct {
	ingester Ingester
	logger   *slog.Logger
}

// Ingester appends chunks for one document and refreshes the index.
type Ingester interface {
	Ingest(ctx context.Context, documentRef string, chunks []types.Chunk) error
}

func NewIngestHandler(ingester Ingester) *IngestHandler {
	return &IngestHandler{
		ingester: ingester,
		logger:   slog.Default(),
	}
}

func (h *IngestHandler) HandleIngest(c *fiber.Ctx) error {
	var params types.IngestParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	if err := h.ingester.Ingest(c.Context(), params.DocumentRef, params.Chunks); err != nil {
		return FromDomain(err)
	}

	h.logger.Info("document ingested",
		"document_ref", params.DocumentRef, "chunks", len(params.Chunks))
	return c.JSON(fiber.Map{"result": "ok", "chunks": len(params.Chunks)})
}
