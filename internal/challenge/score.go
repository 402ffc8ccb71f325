package challenge

import (
	"fmt"
	"strings"

	"github.com/dshills/agentdojo/internal/schema"
)

// score evaluates each assertion against the final execution context and
// session facts. The switch over assertion types is exhaustive; an unknown
// type fails closed.
func score(assertions []schema.Assertion, ctx *execContext, facts map[string]any, budgetExceeded bool) *schema.ChallengeResult {
	var failed []schema.Assertion

	for _, a := range assertions {
		var passed bool
		switch a.Type {
		case schema.AssertMustContain:
			fieldVal := ctx.field(a.Payload.Field)
			passed = strings.Contains(strings.ToLower(fieldVal), strings.ToLower(a.Payload.Text))

		case schema.AssertMustNotContain:
			fieldVal := ctx.field(a.Payload.Field)
			passed = !strings.Contains(strings.ToLower(fieldVal), strings.ToLower(a.Payload.Text))

		case schema.AssertMustEqual:
			if a.Payload.Key != "" {
				// Fact mode: compare the stored fact, never the response
				// text. set_fact steps store values in the facts map; that
				// is what a keyed must_equal verifies.
				expected := valueString(a.Payload.Value)
				var actual string
				if v, ok := facts[a.Payload.Key]; ok {
					actual = valueString(v)
				}
				passed = actual == expected
			} else {
				// Field mode: raw exact equality against the context field.
				fieldVal := ctx.field(a.Payload.Field)
				sv, ok := a.Payload.Value.(string)
				passed = ok && fieldVal == sv
			}

		case schema.AssertBudgetOK:
			passed = !budgetExceeded

		default:
			passed = false
		}

		if !passed {
			failed = append(failed, a)
		}
	}

	// A budget breach on a quest that never declared budget_ok must not
	// score 100%; inject a synthetic failed assertion.
	if budgetExceeded && !declaresBudgetOK(assertions) {
		failed = append(failed, schema.Assertion{
			Type:    schema.AssertBudgetExceeded,
			Details: "Budget exceeded (time/steps/tokens) but quest did not include budget_ok assertion.",
		})
	}

	// The synthetic assertion counts against the declared total, so an
	// undeclared budget breach drags the score down. A challenge with no
	// assertions at all scores 100 by definition.
	var sc float64 = 100
	if len(assertions) > 0 {
		sc = float64(len(assertions)-len(failed)) / float64(len(assertions)) * 100
	}

	status := schema.StatusPass
	if sc != 100 {
		status = schema.StatusFail
	}

	return &schema.ChallengeResult{
		Status:           status,
		Score:            sc,
		FailedAssertions: failed,
		AgentResponse:    ctx.response,
	}
}

func declaresBudgetOK(assertions []schema.Assertion) bool {
	for _, a := range assertions {
		if a.Type == schema.AssertBudgetOK {
			return true
		}
	}
	return false
}

// valueString renders a YAML scalar for fact comparison. Absent values read
// as the empty string so a missing fact never equals a declared expectation.
func valueString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
