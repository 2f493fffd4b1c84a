package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerParamsValidate(t *testing.T) {
	params := &AnswerParams{DocumentRef: "doc-1", Question: "what is covered?"}
	assert.Nil(t, params.Validate())

	params = &AnswerParams{Question: "what is covered?"}
	errs := params.Validate()
	require.NotNil(t, errs)
	assert.Contains(t, errs, "DocumentRef")

	params = &AnswerParams{DocumentRef: "doc-1", Question: "q", TopK: 100}
	errs = params.Validate()
	require.NotNil(t, errs)
	assert.Contains(t, errs, "TopK")
}

func TestIngestParamsValidate(t *testing.T) {
	params := &IngestParams{
		DocumentRef: "doc-1",
		Chunks:      []Chunk{{ID: "c1", Text: "clause text"}},
	}
	assert.Nil(t, params.Validate())

	params = &IngestParams{DocumentRef: "doc-1"}
	errs := params.Validate()
	require.NotNil(t, errs)
	assert.Contains(t, errs, "Chunks")
}

func TestRetrievalResultFind(t *testing.T) {
	r := RetrievalResult{
		{Chunk: Chunk{ID: "c1", Text: "first"}, Score: 0.9},
		{Chunk: Chunk{ID: "c2", Text: "second"}, Score: 0.8},
	}

	sc, ok := r.Find("c2")
	require.True(t, ok)
	assert.Equal(t, "second", sc.Chunk.Text)

	_, ok = r.Find("c3")
	assert.False(t, ok)
}

func TestDecisionCitesOnly(t *testing.T) {
	evidence := RetrievalResult{
		{Chunk: Chunk{ID: "c1"}, Score: 0.9},
	}

	d := Decision{Outcome: OutcomeApproved, Clauses: []Chunk{{ID: "c1"}}}
	assert.True(t, d.CitesOnly(evidence))

	d.Clauses = append(d.Clauses, Chunk{ID: "c9"})
	assert.False(t, d.CitesOnly(evidence))

	empty := Decision{Outcome: OutcomeUndetermined}
	assert.True(t, empty.CitesOnly(evidence))
}

func TestNewDecisionResponse(t *testing.T) {
	amount := 150000.0
	d := Decision{
		Outcome:       OutcomeApproved,
		Amount:        &amount,
		Justification: "Covered under clause c1.",
		Clauses:       []Chunk{{ID: "c1", Text: "clause text", Source: "policy.pdf"}},
	}

	resp := NewDecisionResponse(d)

	assert.Equal(t, "approved", resp.Decision)
	require.NotNil(t, resp.Amount)
	assert.Equal(t, amount, *resp.Amount)
	require.Len(t, resp.Clauses, 1)
	assert.Equal(t, "c1", resp.Clauses[0].ID)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestNewDecisionResponseEmptyClausesIsNotNil(t *testing.T) {
	resp := NewDecisionResponse(Decision{Outcome: OutcomeUndetermined})
	assert.NotNil(t, resp.Clauses)
	assert.Empty(t, resp.Clauses)
}
