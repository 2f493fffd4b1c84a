package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

// AnswerParams is the body of an answer request coming from the webhook/CLI
// layer.
type AnswerParams struct {
	DocumentRef string `json:"document_ref" validate:"required"`
	Question    string `json:"question" validate:"required"`
	TopK        int    `json:"top_k" validate:"omitempty,gte=1,lte=50"`
}

// IngestParams supplies an ordered sequence of chunk records for a document.
type IngestParams struct {
	DocumentRef string  `json:"document_ref" validate:"required"`
	Chunks      []Chunk `json:"chunks" validate:"required,min=1,dive"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func (params *AnswerParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *IngestParams) Validate() map[string]string {
	return validateStruct(params)
}

func validateStruct(params any) map[string]string {
	validate := validator.New()
	if err := validate.Struct(params); err != nil {
		errs := err.(validator.ValidationErrors)
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

// DecisionResponse is the serialized decision shape consumed by the
// webhook/CLI layer.
type DecisionResponse struct {
	Decision      string      `json:"decision"`
	Amount        *float64    `json:"amount"`
	Justification string      `json:"justification"`
	Clauses       []ClauseRef `json:"clauses"`
	Timestamp     time.Time   `json:"timestamp"`
}

// ClauseRef is the wire form of a cited clause.
type ClauseRef struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Source string `json:"source"`
}

// NewDecisionResponse converts an internal Decision into its wire form.
func NewDecisionResponse(d Decision) *DecisionResponse {
	clauses := make([]ClauseRef, 0, len(d.Clauses))
	for _, c := range d.Clauses {
		clauses = append(clauses, ClauseRef{ID: c.ID, Text: c.Text, Source: c.Source})
	}
	return &DecisionResponse{
		Decision:      string(d.Outcome),
		Amount:        d.Amount,
		Justification: d.Justification,
		Clauses:       clauses,
		Timestamp:     time.Now(),
	}
}
