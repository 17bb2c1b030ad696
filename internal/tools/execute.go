package tools

import (
	"context"
	"fmt"
	"math"

	"github.com/optikit/optikit/internal/model"
	"github.com/optikit/optikit/internal/solver"
)

// Execute solves a fully explicit model with no business-level reformulation.
// The solver selector routes it from the model signature alone, unless the
// request pins a solver by name.
func (tb *Toolbox) Execute(ctx context.Context, req *model.ExecuteRequest) (*model.ExecuteResult, error) {
	const tool = "execute"
	if err := req.Validate(); err != nil {
		return nil, err
	}
	linear := req.Objective.Linear
	if req.MonteCarlo != nil {
		vals, err := req.MonteCarlo.ParameterValues()
		if err != nil {
			return nil, err
		}
		linear = make(map[string]float64, len(req.Objective.Linear))
		for name, coef := range req.Objective.Linear {
			if v, ok := vals[name]; ok {
				coef = v
			}
			linear[name] = coef
		}
	}

	m := &solver.Model{Name: "execute"}
	ident := func(s string) string { return s }
	for _, spec := range req.Variables {
		m.Variables = append(m.Variables, buildVar(spec, ident))
	}
	m.Objective.Maximize = req.Objective.Sense == model.Maximize
	m.Objective.Offset = req.Objective.Offset
	for name, coef := range linear {
		m.Objective.Terms = append(m.Objective.Terms, solver.Term{Var: name, Coef: coef})
	}
	for _, q := range req.Objective.Quad {
		m.Objective.Quad = append(m.Objective.Quad, solver.QuadTerm{I: q.I, J: q.J, Coef: q.Coef})
	}
	for i, row := range req.Constraints {
		name := row.Name
		if name == "" {
			name = fmt.Sprintf("c%d", i)
		}
		m.Constraints = append(m.Constraints, stageRow(row, name, ident, row.Bound))
	}

	backend, kind, err := tb.reg.Dispatch(m, req.Options.Solver)
	if err != nil {
		return nil, err
	}
	tb.log.Debug("dispatching explicit model",
		"variables", len(m.Variables), "constraints", len(m.Constraints), "solver", string(kind))

	sol, err := backend.Solve(ctx, m, solver.Options{TimeLimit: req.Options.TimeLimit, Verbose: req.Options.Verbose})
	if err != nil {
		return &model.ExecuteResult{Summary: errorSummary(tool, err)}, nil
	}
	res := &model.ExecuteResult{Summary: summarize(tool, backend.Name(), sol)}
	if !res.Solved() {
		return res, nil
	}
	res.ReducedCosts = sol.ReducedCosts
	res.Slacks = rowSlacks(m, sol.Values)

	obj := 0.0
	if res.Objective != nil {
		obj = *res.Objective
	}
	res.MonteCarlo = mcBlock(tool, sol.Values, obj, "objective value of the explicit model")
	return res, nil
}

// rowSlacks reports the remaining room on each finite row bound: distance to
// the upper bound when one exists, otherwise distance above the lower bound.
func rowSlacks(m *solver.Model, values map[string]float64) map[string]float64 {
	slacks := make(map[string]float64, len(m.Constraints))
	for _, c := range m.Constraints {
		activity := 0.0
		for _, t := range c.Terms {
			activity += t.Coef * values[t.Var]
		}
		switch {
		case !math.IsInf(c.Upper, 1):
			slacks[c.Name] = c.Upper - activity
		case !math.IsInf(c.Lower, -1):
			slacks[c.Name] = activity - c.Lower
		default:
			slacks[c.Name] = 0
		}
	}
	return slacks
}
