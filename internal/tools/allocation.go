package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/optikit/optikit/internal/model"
	"github.com/optikit/optikit/internal/reform"
	"github.com/optikit/optikit/internal/solver"
)

// Allocation selects items under resource budgets. Items whose requirements
// alone exceed a capacity are simply outside the feasible region; an empty
// optimal selection is a legitimate optimal outcome with objective zero, not
// an error.
func (tb *Toolbox) Allocation(ctx context.Context, req *model.AllocationRequest) (*model.AllocationResult, error) {
	const tool = "optimize_allocation"
	if err := req.Validate(); err != nil {
		return nil, err
	}

	items := req.Items
	if req.MonteCarlo != nil {
		vals, err := req.MonteCarlo.ParameterValues()
		if err != nil {
			return nil, err
		}
		items = overrideValues(items, vals)
	}

	m, err := selectionModel(tool, items, req.Resources, &req.Objective, req.Constraints)
	if err != nil {
		return nil, err
	}

	backend, kind, err := tb.reg.Dispatch(m, req.Options.Solver)
	if err != nil {
		return nil, err
	}
	tb.log.Debug("allocation solve", "items", len(items), "solver", kind)

	sol, err := backend.Solve(ctx, m, solver.Options{TimeLimit: req.Options.TimeLimit, Verbose: req.Options.Verbose})
	if err != nil {
		return &model.AllocationResult{Summary: errorSummary(tool, err)}, nil
	}

	res := &model.AllocationResult{Summary: summarize(tool, backend.Name(), sol)}
	res.Excluded = oversizedItems(items, req.Resources)
	if !res.Solved() {
		return res, nil
	}

	for _, it := range items {
		if sol.Values[it.Name] > 0.5 {
			res.Selected = append(res.Selected, it.Name)
		}
	}
	sort.Strings(res.Selected)
	res.ResourceUsage = resourceUsage(items, req.Resources, sol.Values)
	res.ShadowPrices = sol.Duals
	res.Breakdown = objectiveBreakdown(req.Objective.Functions, sol.Values)
	if len(res.Selected) == 0 {
		res.Message = exclusionMessage(res.Excluded)
	}
	res.MonteCarlo = mcBlock(tool, sol.Values, sol.Objective,
		"total value of the selected items under the chosen allocation")
	return res, nil
}

// selectionModel builds the binary selection MILP shared by the allocation,
// pareto, and robust tools.
func selectionModel(name string, items []model.Item, resources map[string]float64, obj *model.ObjectiveSpec, cs []model.Constraint) (*solver.Model, error) {
	m := &solver.Model{Name: name}
	for _, it := range items {
		m.Variables = append(m.Variables, solver.Variable{Name: it.Name, Type: solver.Binary})
	}

	if obj != nil {
		m.Objective = selectionObjective(items, obj)
	}

	resNames := make([]string, 0, len(resources))
	for res := range resources {
		resNames = append(resNames, res)
	}
	sort.Strings(resNames)
	for _, res := range resNames {
		var terms []solver.Term
		for _, it := range items {
			if req := it.Requirements[res]; req != 0 {
				terms = append(terms, solver.Term{Var: it.Name, Coef: req})
			}
		}
		if len(terms) == 0 {
			continue
		}
		m.Constraints = append(m.Constraints, solver.LeRow(res, terms, resources[res]))
	}

	rows, err := reform.Selection(cs, func(item string) string { return item })
	if err != nil {
		return nil, fmt.Errorf("reformulate constraints: %w", err)
	}
	m.Constraints = append(m.Constraints, rows...)
	return m, nil
}

// selectionObjective turns a single or weighted multi-objective into linear
// terms. Minimizing functions enter a maximizing aggregate with flipped sign.
func selectionObjective(items []model.Item, obj *model.ObjectiveSpec) solver.Objective {
	out := solver.Objective{Maximize: true}
	coefs := make(map[string]float64, len(items))
	if obj.IsMulti() {
		for _, f := range obj.Functions {
			sign := 1.0
			if f.Sense == model.Minimize {
				sign = -1
			}
			for item, coef := range f.Items {
				coefs[item] += sign * f.Weight * coef
			}
		}
	} else {
		if obj.Sense == model.Minimize {
			out.Maximize = false
		}
		if len(obj.Items) > 0 {
			for item, coef := range obj.Items {
				coefs[item] += coef
			}
		} else {
			for _, it := range items {
				coefs[it.Name] += it.Value
			}
		}
	}
	names := make([]string, 0, len(coefs))
	for name := range coefs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if coefs[name] != 0 {
			out.Terms = append(out.Terms, solver.Term{Var: name, Coef: coefs[name]})
		}
	}
	return out
}

// overrideValues swaps item values for simulation-derived parameters.
func overrideValues(items []model.Item, vals map[string]float64) []model.Item {
	out := make([]model.Item, len(items))
	copy(out, items)
	for i := range out {
		if v, ok := vals[out[i].Name]; ok {
			out[i].Value = v
		}
	}
	return out
}
