package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"policyqa/types"
)

// Pipeline sequences parsing, retrieval and decision evaluation. Invocations
// share no mutable state and may run concurrently; the only shared structures
// are the chunk store and the index behind the retriever, both read-mostly.
type Pipeline struct {
	parser    *Parser
	retriever *Retriever
	engine    *Engine
	topK      int
	logger    *slog.Logger
}

func New(parser *Parser, retriever *Retriever, engine *Engine, topK int) *Pipeline {
	if topK < 1 {
		topK = 5
	}
	return &Pipeline{
		parser:    parser,
		retriever: retriever,
		engine:    engine,
		topK:      topK,
		logger:    slog.Default(),
	}
}

// Answer runs the full pipeline for one question against the corpus named by
// documentRef. The error return is non-nil only for invalid input; every
// external-service failure is converted into a well-formed undetermined
// Decision instead.
func (p *Pipeline) Answer(ctx context.Context, documentRef, question string) (types.Decision, error) {
	return p.AnswerTopK(ctx, documentRef, question, p.topK)
}

// AnswerTopK is Answer with an explicit retrieval depth.
func (p *Pipeline) AnswerTopK(ctx context.Context, documentRef, question string, topK int) (types.Decision, error) {
	// Rejected before any parsing or model work is spent on it.
	if strings.TrimSpace(question) == "" {
		return types.Decision{}, fmt.Errorf("%w: empty question", types.ErrInvalidQuery)
	}
	if topK < 1 {
		topK = p.topK
	}

	// A query with zero resolved fields is a degradation, not a failure:
	// retrieval proceeds on the raw question either way.
	q := p.parser.Parse(ctx, question)
	p.logger.Info("query parsed",
		"document_ref", documentRef,
		"resolved_fields", q.ResolvedFields(),
		"warnings", len(q.Warnings))

	evidence, err := p.retriever.Retrieve(ctx, question, topK)
	if err != nil {
		if errors.Is(err, types.ErrInvalidQuery) {
			return types.Decision{}, err
		}
		// Transient failure after the retry budget, or the caller's
		// deadline ran out mid-flight. The contract guarantees a response
		// shape even under total external-service failure.
		p.logger.Warn("retrieval degraded to undetermined", "err", err)
		return types.Decision{
			Outcome:       types.OutcomeUndetermined,
			Justification: fmt.Sprintf("Evidence retrieval failed: %v", err),
		}, nil
	}

	if err := ctx.Err(); err != nil {
		return types.Decision{
			Outcome:       types.OutcomeUndetermined,
			Justification: fmt.Sprintf("The request deadline was exceeded before a decision was reached: %v", err),
		}, nil
	}

	decision := p.engine.Decide(ctx, q, evidence)
	p.logger.Info("decision reached",
		"document_ref", documentRef,
		"outcome", decision.Outcome,
		"clauses", len(decision.Clauses))
	return decision, nil
}
