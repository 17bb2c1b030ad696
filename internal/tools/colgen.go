package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/optikit/optikit/internal/model"
	"github.com/optikit/optikit/internal/numeric"
	"github.com/optikit/optikit/internal/solver"
)

const (
	defaultColgenIters = 20
	defaultColgenGap   = 1e-6
)

// ColumnGen runs restricted-master / pricing iterations: a continuous
// set-covering LP over the current column pool, then a knapsack pricing
// MILP over the cover duals that either produces a negative-reduced-cost
// column or proves none exists.
func (tb *Toolbox) ColumnGen(ctx context.Context, req *model.ColumnGenRequest) (*model.ColumnGenResult, error) {
	const tool = "column_generation"
	if err := req.Validate(); err != nil {
		return nil, err
	}
	demands := req.Demands
	if req.MonteCarlo != nil {
		vals, err := req.MonteCarlo.ParameterValues()
		if err != nil {
			return nil, err
		}
		demands = make(map[string]float64, len(req.Demands))
		for row, qty := range req.Demands {
			if v, ok := vals[row]; ok {
				qty = v
			}
			demands[row] = qty
		}
	}
	maxIters := req.MaxIterations
	if maxIters <= 0 {
		maxIters = defaultColgenIters
	}
	gap := req.Gap
	if gap <= 0 {
		gap = defaultColgenGap
	}
	opts := solver.Options{TimeLimit: req.Options.TimeLimit, Verbose: req.Options.Verbose}

	columns := make([]model.Column, len(req.Columns))
	copy(columns, req.Columns)

	var (
		master    *solver.Solution
		iters     int
		generated int
	)
	for iters = 1; iters <= maxIters; iters++ {
		m := masterModel(columns, demands)
		sol, err := tb.reg.MILP.Solve(ctx, m, opts)
		if err != nil {
			return &model.ColumnGenResult{Summary: errorSummary(tool, err)}, nil
		}
		if sol.Status != solver.StatusOptimal {
			res := &model.ColumnGenResult{Summary: summarize(tool, tb.reg.MILP.Name(), sol)}
			res.Iterations = iters
			res.Generated = generated
			return res, nil
		}
		master = sol

		col, reduced, err := tb.priceColumn(ctx, req, sol.Duals, generated, opts)
		if err != nil {
			tb.log.Warn("pricing subproblem failed", "iteration", iters, "error", err)
			break
		}
		if col == nil || reduced >= -gap {
			break
		}
		tb.log.Debug("column generated",
			"iteration", iters, "column", col.Name, "reduced_cost", reduced)
		columns = append(columns, *col)
		generated++
	}
	if iters > maxIters {
		iters = maxIters
	}

	res := &model.ColumnGenResult{Summary: summarize(tool, tb.reg.MILP.Name(), master)}
	res.Iterations = iters
	res.Generated = generated
	res.Columns = columns
	res.ColumnUsage = make(map[string]float64)
	for _, c := range columns {
		if lam := master.Values[c.Name]; lam > numeric.Feasibility {
			res.ColumnUsage[c.Name] = lam
		}
	}
	res.MonteCarlo = mcBlock(tool, res.ColumnUsage, master.Objective,
		"total cost of the selected column multiplicities")
	return res, nil
}

// masterModel is the restricted master: one continuous multiplier per
// column, cover rows named after the demand rows they satisfy.
func masterModel(columns []model.Column, demands map[string]float64) *solver.Model {
	m := &solver.Model{Name: "colgen_master"}
	for _, c := range columns {
		m.Variables = append(m.Variables, solver.Variable{Name: c.Name, Type: solver.Continuous, Lower: 0, Upper: 1e9})
		m.Objective.Terms = append(m.Objective.Terms, solver.Term{Var: c.Name, Coef: c.Cost})
	}
	rows := make([]string, 0, len(demands))
	for row := range demands {
		rows = append(rows, row)
	}
	sort.Strings(rows)
	for _, row := range rows {
		terms := make([]solver.Term, 0, len(columns))
		for _, c := range columns {
			if coef, ok := c.Entries[row]; ok && coef != 0 {
				terms = append(terms, solver.Term{Var: c.Name, Coef: coef})
			}
		}
		m.Constraints = append(m.Constraints, solver.GeRow("cover_"+row, terms, demands[row]))
	}
	return m
}

// priceColumn solves the knapsack pricing MILP: pick the item set with
// maximum dual value under the capacity, yielding the column with the most
// negative reduced cost. A nil column means the duals were unavailable.
func (tb *Toolbox) priceColumn(ctx context.Context, req *model.ColumnGenRequest, duals map[string]float64, generated int, opts solver.Options) (*model.Column, float64, error) {
	if duals == nil {
		return nil, 0, fmt.Errorf("master solution carries no duals")
	}
	p := &req.Pricing
	m := &solver.Model{Name: "colgen_pricing"}
	m.Objective.Maximize = true
	for _, it := range p.Items {
		m.Variables = append(m.Variables, solver.Variable{Name: it.Name, Type: solver.Binary})
		m.Objective.Terms = append(m.Objective.Terms, solver.Term{Var: it.Name, Coef: duals["cover_"+it.Row]})
	}
	capTerms := make([]solver.Term, 0, len(p.Items))
	for _, it := range p.Items {
		capTerms = append(capTerms, solver.Term{Var: it.Name, Coef: it.Weight})
	}
	m.Constraints = append(m.Constraints, solver.LeRow("capacity", capTerms, p.Capacity))

	sol, err := tb.reg.MILP.Solve(ctx, m, opts)
	if err != nil {
		return nil, 0, err
	}
	if sol.Status != solver.StatusOptimal {
		return nil, 0, fmt.Errorf("pricing status %s", sol.Status)
	}

	// reduced cost of the priced column is its cost minus the dual value
	reduced := p.ColumnCost - sol.Objective
	col := &model.Column{
		Name:    fmt.Sprintf("gen_%d", generated+1),
		Cost:    p.ColumnCost,
		Entries: make(map[string]float64),
	}
	for _, it := range p.Items {
		if sol.Values[it.Name] > 0.5 {
			col.Entries[it.Row]++
		}
	}
	if len(col.Entries) == 0 {
		return nil, reduced, nil
	}
	return col, reduced, nil
}
