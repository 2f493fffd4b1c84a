package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"policyqa/model"
	"policyqa/types"
)

// Evaluation states. Every Decide call walks from start through rule
// evaluation to either a decided or an escalated terminal state, and always
// terminates in exactly one Decision.
type engineState int

const (
	stateStart engineState = iota
	stateRulesEvaluated
	stateDecided
	stateEscalate
	stateFinal
)

// Engine maps a structured query and retrieved evidence to a Decision.
// Deterministic rules run first; the generative model is consulted only when
// no rule fires at or above the confidence threshold.
type Engine struct {
	rules         []Rule
	completer     model.Completer
	minConfidence float64
	maxAttempts   int
	backoff       time.Duration
	tokenBudget   int
	logger        *slog.Logger

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

// EngineConfig tunes the decision engine.
type EngineConfig struct {
	MinConfidence float64
	MaxAttempts   int
	Backoff       time.Duration
	TokenBudget   int
}

// NewEngine builds an engine over an ordered rule list. completer may be
// nil: escalation then degrades to an undetermined outcome instead of
// failing.
func NewEngine(rules []Rule, completer model.Completer, cfg EngineConfig) *Engine {
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = 0.6
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	if cfg.TokenBudget == 0 {
		cfg.TokenBudget = 4000
	}
	return &Engine{
		rules:         rules,
		completer:     completer,
		minConfidence: cfg.MinConfidence,
		maxAttempts:   cfg.MaxAttempts,
		backoff:       cfg.Backoff,
		tokenBudget:   cfg.TokenBudget,
		logger:        slog.Default(),
	}
}

// Decide always returns a well-formed Decision, never an error: transient
// model failures are absorbed into an undetermined outcome.
func (e *Engine) Decide(ctx context.Context, q types.StructuredQuery, evidence types.RetrievalResult) types.Decision {
	var (
		st       = stateStart
		decision types.Decision
	)

	for st != stateFinal {
		switch st {
		case stateStart:
			if len(evidence) == 0 {
				decision = types.Decision{
					Outcome:       types.OutcomeUndetermined,
					Justification: "No supporting clauses were retrieved; the claim cannot be adjudicated.",
				}
				st = stateFinal
				continue
			}
			st = stateRulesEvaluated

		case stateRulesEvaluated:
			res, fired := e.evaluateRules(q, evidence)
			if fired {
				decision = types.Decision{
					Outcome:       res.Outcome,
					Justification: res.Justification,
					Clauses:       res.Clauses,
				}
				if res.Outcome == types.OutcomeApproved {
					decision.Amount = res.Amount
				}
				st = stateDecided
				continue
			}
			st = stateEscalate

		case stateDecided:
			st = stateFinal

		case stateEscalate:
			decision = e.escalate(ctx, q, evidence)
			st = stateFinal
		}
	}
	return decision
}

// evaluateRules walks the priority list in order; the first rule firing at
// or above the confidence threshold wins. There is no voting.
func (e *Engine) evaluateRules(q types.StructuredQuery, evidence types.RetrievalResult) (RuleResult, bool) {
	for _, rule := range e.rules {
		res, ok := rule.Evaluate(q, evidence)
		if !ok {
			continue
		}
		if res.Confidence < e.minConfidence {
			e.logger.Info("rule below confidence threshold, skipping",
				"rule", rule.Name, "confidence", res.Confidence, "threshold", e.minConfidence)
			continue
		}
		e.logger.Info("rule fired", "rule", rule.Name, "outcome", res.Outcome)
		return res, true
	}
	return RuleResult{}, false
}

// llmVerdict is the JSON shape the model must return during escalation.
type llmVerdict struct {
	Decision      string   `json:"decision"`
	Amount        *float64 `json:"amount"`
	Justification string   `json:"justification"`
	ClauseIDs     []string `json:"clause_ids"`
}

func (e *Engine) escalate(ctx context.Context, q types.StructuredQuery, evidence types.RetrievalResult) types.Decision {
	if e.completer == nil {
		return types.Decision{
			Outcome:       types.OutcomeUndetermined,
			Justification: "No decision rule matched and no generative model is configured.",
		}
	}

	prompt := e.buildPrompt(q, evidence)

	verdict, err := e.completeWithRetry(ctx, prompt)
	if err != nil {
		e.logger.Warn("escalation exhausted retries", "err", err)
		return types.Decision{
			Outcome:       types.OutcomeUndetermined,
			Justification: fmt.Sprintf("The generative model could not be reached: %v", err),
		}
	}

	outcome := parseOutcome(verdict.Decision)

	// Never trust generated citations: intersect against the evidence that
	// was actually supplied.
	var clauses []types.Chunk
	for _, id := range verdict.ClauseIDs {
		if sc, ok := evidence.Find(id); ok {
			clauses = append(clauses, sc.Chunk)
		} else {
			e.logger.Warn("model cited unknown clause, stripped", "clause_id", id)
		}
	}

	if outcome != types.OutcomeUndetermined && len(clauses) == 0 {
		return types.Decision{
			Outcome:       types.OutcomeUndetermined,
			Justification: "The model's answer cited no clause from the retrieved evidence: " + verdict.Justification,
		}
	}

	decision := types.Decision{
		Outcome:       outcome,
		Justification: verdict.Justification,
		Clauses:       clauses,
	}
	if outcome == types.OutcomeApproved {
		decision.Amount = verdict.Amount
	}
	return decision
}

func parseOutcome(s string) types.Outcome {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approved":
		return types.OutcomeApproved
	case "rejected":
		return types.OutcomeRejected
	default:
		return types.OutcomeUndetermined
	}
}

func (e *Engine) completeWithRetry(ctx context.Context, prompt string) (*llmVerdict, error) {
	var lastErr error
	backoff := e.backoff

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		raw, err := e.completer.Complete(ctx, prompt)
		if err == nil {
			verdict, perr := parseVerdict(raw)
			if perr == nil {
				return verdict, nil
			}
			// Malformed output: ask the model to repair it once, then let
			// the attempt budget handle the rest.
			raw, err = e.completer.Complete(ctx, model.BuildRepairPrompt(raw))
			if err == nil {
				if verdict, perr = parseVerdict(raw); perr == nil {
					return verdict, nil
				}
				err = perr
			}
		}
		lastErr = err
		if !model.IsRetryable(err) {
			break
		}
		if attempt == e.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", types.ErrGenerationTimeout, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("escalation failed after %d attempts: %w", e.maxAttempts, lastErr)
}

func parseVerdict(raw string) (*llmVerdict, error) {
	jsonStr, err := model.ExtractJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: no JSON in model output", types.ErrGenerationUnavailable)
	}
	var v llmVerdict
	if err := json.Unmarshal([]byte(jsonStr), &v); err != nil {
		return nil, fmt.Errorf("%w: malformed verdict: %s", types.ErrGenerationUnavailable, err)
	}
	return &v, nil
}

const verdictInstructions = `You adjudicate insurance claims strictly from the policy clauses given below.
Respond with ONLY a JSON object:
{"decision": "approved"|"rejected"|"undetermined", "amount": number or null, "justification": "...", "clause_ids": ["..."]}
clause_ids must list the ids of the clauses you relied on, verbatim. Do not invent clause ids.`

// buildPrompt assembles the escalation prompt: the structured query as JSON
// plus the verbatim text of every retrieved clause, trimmed from the tail to
// stay inside the token budget.
func (e *Engine) buildPrompt(q types.StructuredQuery, evidence types.RetrievalResult) string {
	queryJSON, _ := json.Marshal(q)

	var b strings.Builder
	b.WriteString(verdictInstructions)
	b.WriteString("\n\nStructured query:\n")
	b.Write(queryJSON)
	b.WriteString("\n\nOriginal question:\n")
	b.WriteString(q.Raw)
	b.WriteString("\n\nClauses:\n")

	base := b.String()
	budget := e.tokenBudget - e.countTokens(base)
	for _, sc := range evidence {
		clause := fmt.Sprintf("[%s] (source: %s)\n%s\n\n", sc.Chunk.ID, sc.Chunk.Source, sc.Chunk.Text)
		cost := e.countTokens(clause)
		if cost > budget {
			e.logger.Info("prompt token budget reached, dropping trailing clauses",
				"budget", e.tokenBudget)
			break
		}
		b.WriteString(clause)
		budget -= cost
	}
	return b.String()
}

func (e *Engine) countTokens(s string) int {
	e.encOnce.Do(func() {
		enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
		if err != nil {
			e.logger.Warn("tokenizer unavailable, falling back to byte estimate", "err", err)
			return
		}
		e.enc = enc
	})
	if e.enc == nil {
		return len(s) / 4
	}
	return len(e.enc.Encode(s, nil, nil))
}
