package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"policyqa/types"
)

// RuleResult is a candidate outcome produced by one rule together with the
// clauses it relied on.
type RuleResult struct {
	Outcome       types.Outcome
	Amount        *float64
	Justification string
	Clauses       []types.Chunk
	Confidence    float64
}

// Rule is one predicate over (query, evidence). Rules are evaluated in
// slice order and the first one that fires at or above the configured
// confidence threshold decides the outcome; later rules are fallbacks.
// Precedence is a data artifact, not control flow: inspect the slice.
type Rule struct {
	Name     string
	Evaluate func(q types.StructuredQuery, evidence types.RetrievalResult) (RuleResult, bool)
}

var payoutPattern = regexp.MustCompile(`(?i)payout\s+up\s+to\s+rs\.?\s*(\d[\d,]*)`)

// DefaultRules is the shipped rule priority list:
//
//  1. procedure-excluded: a clause names the procedure together with an
//     explicit exclusion.
//  2. procedure-covered: a clause names the procedure without an exclusion;
//     lifts a payout amount when one is stated.
//  3. evidence-answer: informational questions (no procedure resolved) are
//     answered by quoting the top-ranked clause.
//
// An unresolved procedure never matches: absent is not false.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "procedure-excluded", Evaluate: evalProcedureExcluded},
		{Name: "procedure-covered", Evaluate: evalProcedureCovered},
		{Name: "evidence-answer", Evaluate: evalEvidenceAnswer},
	}
}

func evalProcedureExcluded(q types.StructuredQuery, evidence types.RetrievalResult) (RuleResult, bool) {
	if q.Procedure == nil {
		return RuleResult{}, false
	}
	proc := strings.ToLower(*q.Procedure)
	for _, sc := range evidence {
		text := strings.ToLower(sc.Chunk.Text)
		if strings.Contains(text, proc) && strings.Contains(text, "not covered") {
			return RuleResult{
				Outcome: types.OutcomeRejected,
				Justification: fmt.Sprintf(
					"Claim for %s has been REJECTED: the policy explicitly excludes it (%s).",
					proc, sc.Chunk.ID),
				Clauses:    []types.Chunk{sc.Chunk},
				Confidence: 0.9,
			}, true
		}
	}
	return RuleResult{}, false
}

func evalProcedureCovered(q types.StructuredQuery, evidence types.RetrievalResult) (RuleResult, bool) {
	if q.Procedure == nil {
		return RuleResult{}, false
	}
	proc := strings.ToLower(*q.Procedure)
	for _, sc := range evidence {
		text := strings.ToLower(sc.Chunk.Text)
		if !strings.Contains(text, proc) || strings.Contains(text, "not covered") {
			continue
		}
		res := RuleResult{
			Outcome: types.OutcomeApproved,
			Justification: fmt.Sprintf(
				"Claim for %s has been APPROVED based on clause %s. (Policy age: %s months)",
				proc, sc.Chunk.ID, formatMonths(q.PolicyMonths)),
			Clauses:    []types.Chunk{sc.Chunk},
			Confidence: 0.9,
		}
		if amount, ok := extractPayout(sc.Chunk.Text); ok {
			res.Amount = &amount
			res.Justification += fmt.Sprintf(" Payout: Rs %.2f.", amount)
		}
		return res, true
	}
	return RuleResult{}, false
}

func evalEvidenceAnswer(q types.StructuredQuery, evidence types.RetrievalResult) (RuleResult, bool) {
	if q.Procedure != nil || len(evidence) == 0 {
		return RuleResult{}, false
	}
	top := evidence[0]
	return RuleResult{
		Outcome: types.OutcomeUndetermined,
		Justification: fmt.Sprintf(
			"No claim-specific fields were identified; the most relevant policy text says: %q",
			top.Chunk.Text),
		Clauses:    []types.Chunk{top.Chunk},
		Confidence: 0.7,
	}, true
}

func extractPayout(text string) (float64, bool) {
	m := payoutPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return amount, true
}

func formatMonths(months *int) string {
	if months == nil {
		return "N/A"
	}
	return strconv.Itoa(*months)
}
