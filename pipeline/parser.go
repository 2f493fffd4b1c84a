package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"policyqa/model"
	"policyqa/types"
)

// Pattern rules for phase-1 extraction. The procedure and location
// vocabularies are part of the deployment and extended per corpus.
var (
	agePattern     = regexp.MustCompile(`(?i)\b(\d{1,3})\s*-?\s*(?:years?[\s-]*old|years?\b|yrs?\b|yo\b|y/o)`)
	compactPattern = regexp.MustCompile(`(?i)\b(\d{1,3})\s*([mf])\b`)
	genderPattern  = regexp.MustCompile(`(?i)\b(male|female|m|f)\b`)
	procedurePat   = regexp.MustCompile(`(?i)knee surgery|hip replacement|cataract|angioplasty`)
	locationPat    = regexp.MustCompile(`(?i)\b(pune|mumbai|delhi|kolkata|bengaluru)\b`)
	monthsPattern  = regexp.MustCompile(`(?i)\b(\d{1,2})\s*-?\s*month`)
)

// Parser converts a free-text question into a StructuredQuery. Phase 1 is
// deterministic pattern extraction and is total. Phase 2 optionally asks a
// generative model to fill fields still unresolved; it never overwrites a
// phase-1 value and its failures only produce warnings.
type Parser struct {
	completer model.Completer
	logger    *slog.Logger
}

// NewParser builds a parser. completer may be nil, which disables
// enrichment without error.
func NewParser(completer model.Completer) *Parser {
	return &Parser{
		completer: completer,
		logger:    slog.Default(),
	}
}

// Parse never fails: a worst-case result carries only the raw text.
func (p *Parser) Parse(ctx context.Context, text string) types.StructuredQuery {
	q := types.StructuredQuery{
		Raw:      text,
		ParsedAt: time.Now(),
	}

	p.extractPatterns(&q, text)

	if p.completer != nil && unresolved(q) > 0 {
		p.enrich(ctx, &q, text)
	}
	return q
}

func (p *Parser) extractPatterns(q *types.StructuredQuery, text string) {
	if m := agePattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			q.Age = &v
		}
	}
	// Compact form like "46M" carries both age and gender.
	if m := compactPattern.FindStringSubmatch(text); m != nil {
		if q.Age == nil {
			if v, err := strconv.Atoi(m[1]); err == nil {
				q.Age = &v
			}
		}
		g := normalizeGender(m[2])
		q.Gender = &g
	}
	if q.Gender == nil {
		if m := genderPattern.FindStringSubmatch(text); m != nil {
			g := normalizeGender(m[1])
			q.Gender = &g
		}
	}
	if m := procedurePat.FindString(text); m != "" {
		proc := strings.ToLower(m)
		q.Procedure = &proc
	}
	if m := locationPat.FindStringSubmatch(text); m != nil {
		loc := strings.ToLower(m[1])
		q.Location = &loc
	}
	if m := monthsPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			q.PolicyMonths = &v
		}
	}
}

func normalizeGender(s string) string {
	switch strings.ToLower(s) {
	case "m", "male":
		return "M"
	case "f", "female":
		return "F"
	}
	return strings.ToUpper(s)
}

func unresolved(q types.StructuredQuery) int {
	return 5 - q.ResolvedFields()
}

const enrichPrompt = `Extract age, gender (M/F), procedure, location and policy duration in months from the query below.
Respond with ONLY a JSON object, no other text, using null for anything not stated:
{"age": null, "gender": null, "procedure": null, "location": null, "policy_months": null}

Query: %s`

// enrichment is the wire shape the model fills in. Numbers may come back as
// strings, so both fields are raw and coerced afterwards.
type enrichment struct {
	Age          *json.Number `json:"age"`
	Gender       *string      `json:"gender"`
	Procedure    *string      `json:"procedure"`
	Location     *string      `json:"location"`
	PolicyMonths *json.Number `json:"policy_months"`
}

func (p *Parser) enrich(ctx context.Context, q *types.StructuredQuery, text string) {
	raw, err := p.completer.Complete(ctx, fmt.Sprintf(enrichPrompt, text))
	if err != nil {
		p.warn(q, "enrichment failed: %v", err)
		return
	}

	jsonStr, err := model.ExtractJSON(raw)
	if err != nil {
		// One repair round before giving up on this response.
		raw, err = p.completer.Complete(ctx, model.BuildRepairPrompt(raw))
		if err != nil {
			p.warn(q, "enrichment repair failed: %v", err)
			return
		}
		if jsonStr, err = model.ExtractJSON(raw); err != nil {
			p.warn(q, "enrichment returned no JSON")
			return
		}
	}

	var e enrichment
	dec := json.NewDecoder(strings.NewReader(jsonStr))
	dec.UseNumber()
	if err := dec.Decode(&e); err != nil {
		p.warn(q, "enrichment returned malformed JSON: %v", err)
		return
	}

	// Phase-1 values always win over generated ones.
	if q.Age == nil && e.Age != nil {
		if v, ok := p.coerceInt(q, "age", *e.Age); ok {
			q.Age = &v
		}
	}
	if q.Gender == nil && e.Gender != nil && *e.Gender != "" {
		g := normalizeGender(*e.Gender)
		q.Gender = &g
	}
	if q.Procedure == nil && e.Procedure != nil && *e.Procedure != "" {
		proc := strings.ToLower(*e.Procedure)
		q.Procedure = &proc
	}
	if q.Location == nil && e.Location != nil && *e.Location != "" {
		loc := strings.ToLower(*e.Location)
		q.Location = &loc
	}
	if q.PolicyMonths == nil && e.PolicyMonths != nil {
		if v, ok := p.coerceInt(q, "policy_months", *e.PolicyMonths); ok {
			q.PolicyMonths = &v
		}
	}
}

// coerceInt accepts both integer and float renderings of a numeric field;
// models routinely answer "33.0" for an integer question.
func (p *Parser) coerceInt(q *types.StructuredQuery, field string, n json.Number) (int, bool) {
	if v, err := strconv.Atoi(n.String()); err == nil {
		return v, true
	}
	if f, err := n.Float64(); err == nil {
		return int(f), true
	}
	p.warn(q, "enrichment returned non-numeric %s: %s", field, n.String())
	return 0, false
}

func (p *Parser) warn(q *types.StructuredQuery, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	q.Warnings = append(q.Warnings, msg)
	p.logger.Warn("query enrichment degraded", "reason", msg)
}
