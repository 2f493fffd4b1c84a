package types

import (
	"time"
)

// Chunk is a bounded span of normalized document text with a stable id and
// provenance. Chunks are immutable once ingested; replacing the text of a
// chunk means ingesting a new chunk under a new id.
type Chunk struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Source string `json:"source"`
	Offset int    `json:"offset"`
}

// ScoredChunk pairs a chunk with its similarity score for one retrieval.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// RetrievalResult is an ordered sequence of scored chunks, strictly
// descending by score, with no duplicate chunk ids.
type RetrievalResult []ScoredChunk

// Chunks returns the bare chunks in ranked order.
func (r RetrievalResult) Chunks() []Chunk {
	chunks := make([]Chunk, len(r))
	for i, sc := range r {
		chunks[i] = sc.Chunk
	}
	return chunks
}

// Find returns the scored chunk with the given id, if present.
func (r RetrievalResult) Find(id string) (ScoredChunk, bool) {
	for _, sc := range r {
		if sc.Chunk.ID == id {
			return sc, true
		}
	}
	return ScoredChunk{}, false
}

// StructuredQuery is the parsed representation of a free-text question.
// The field set is closed: every recognized field is always present, a nil
// pointer means "unresolved", never "false" or "zero". Downstream rules must
// not treat an unresolved field as matched.
type StructuredQuery struct {
	Age          *int    `json:"age"`
	Gender       *string `json:"gender"`
	Procedure    *string `json:"procedure"`
	Location     *string `json:"location"`
	PolicyMonths *int    `json:"policy_months"`

	Raw      string    `json:"raw"`
	ParsedAt time.Time `json:"parsed_at"`

	// Warnings collects non-fatal parse problems, e.g. a failed LLM
	// enrichment call. A warning never invalidates the query.
	Warnings []string `json:"warnings,omitempty"`
}

// ResolvedFields returns how many recognized fields carry a value.
func (q StructuredQuery) ResolvedFields() int {
	n := 0
	if q.Age != nil {
		n++
	}
	if q.Gender != nil {
		n++
	}
	if q.Procedure != nil {
		n++
	}
	if q.Location != nil {
		n++
	}
	if q.PolicyMonths != nil {
		n++
	}
	return n
}

// Outcome is the terminal verdict of the decision engine.
type Outcome string

const (
	OutcomeApproved     Outcome = "approved"
	OutcomeRejected     Outcome = "rejected"
	OutcomeUndetermined Outcome = "undetermined"
)

// Decision is the final, always well-formed answer of the pipeline. Every
// non-undetermined decision cites at least one clause that was part of the
// evidence used during evaluation.
type Decision struct {
	Outcome       Outcome
	Amount        *float64
	Justification string
	Clauses       []Chunk
}

// CitesOnly reports whether every cited clause id is contained in evidence.
func (d Decision) CitesOnly(evidence RetrievalResult) bool {
	for _, c := range d.Clauses {
		if _, ok := evidence.Find(c.ID); !ok {
			return false
		}
	}
	return true
}
