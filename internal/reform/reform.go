// Package reform rewrites business-level constraint intents into the
// primitive rows the solver adapters ingest. Keeping the rewrite here leaves
// every tool orchestrator backend-agnostic.
package reform

import (
	"fmt"

	"github.com/optikit/optikit/internal/model"
	"github.com/optikit/optikit/internal/solver"
)

// Selection rewrites constraints over binary selection variables. varOf maps
// an item name to its decision-variable name. The switch is exhaustive over
// the selection-problem constraint kinds; anything else is a programming
// error upstream of validation.
func Selection(cs []model.Constraint, varOf func(string) string) ([]solver.Constraint, error) {
	var rows []solver.Constraint
	for i, c := range cs {
		name := c.Name
		if name == "" {
			name = fmt.Sprintf("%s_%d", c.Kind, i)
		}
		switch c.Kind {
		case model.ConstraintLinear:
			terms := make([]solver.Term, 0, len(c.Coefficients))
			for item, coef := range c.Coefficients {
				terms = append(terms, solver.Term{Var: varOf(item), Coef: coef})
			}
			switch c.Sense {
			case model.LessEq:
				rows = append(rows, solver.LeRow(name, terms, c.Bound))
			case model.GreaterEq:
				rows = append(rows, solver.GeRow(name, terms, c.Bound))
			case model.Equal:
				rows = append(rows, solver.EqRow(name, terms, c.Bound))
			}

		case model.ConstraintConditional:
			// if A is selected then B is selected: x_B >= x_A
			rows = append(rows, solver.GeRow(name, []solver.Term{
				{Var: varOf(c.ThenItem), Coef: 1},
				{Var: varOf(c.IfItem), Coef: -1},
			}, 0))

		case model.ConstraintDisjunctive:
			// at least k of the listed items, defaulting to 1
			k := 1
			if c.Count != nil {
				k = *c.Count
			}
			rows = append(rows, solver.GeRow(name, unitTerms(c.Items, varOf), float64(k)))

		case model.ConstraintMutex:
			// exactly k of the listed items, defaulting to 1; an explicit
			// zero forbids the whole group
			k := 1
			if c.Count != nil {
				k = *c.Count
			}
			rows = append(rows, solver.EqRow(name, unitTerms(c.Items, varOf), float64(k)))

		default:
			return nil, fmt.Errorf("constraint kind %q cannot apply to a selection problem", c.Kind)
		}
	}
	return rows, nil
}

func unitTerms(items []string, varOf func(string) string) []solver.Term {
	terms := make([]solver.Term, len(items))
	for i, item := range items {
		terms[i] = solver.Term{Var: varOf(item), Coef: 1}
	}
	return terms
}
