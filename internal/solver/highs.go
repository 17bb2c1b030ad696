package solver

import (
	"context"
	"fmt"
	"time"

	highs "github.com/bartolsthoorn/gohighs/highs"
)

// HighsSolver is the MILP/LP adapter over the HiGHS engine. Duals and reduced
// costs are surfaced only for pure LP models; for models with integer or
// binary variables the duality theory does not hold and they stay nil.
type HighsSolver struct{}

// NewHighs returns the MILP/LP adapter.
func NewHighs() *HighsSolver { return &HighsSolver{} }

func (s *HighsSolver) Name() string { return "highs" }

// Solve translates the model to HiGHS column/row form and normalizes the
// engine status. A time-limit stop with an incumbent maps to feasible.
func (s *HighsSolver) Solve(ctx context.Context, m *Model, opts Options) (*Solution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hm, idx, err := buildHighsModel(m)
	if err != nil {
		return nil, err
	}

	solveOpts := []highs.SolveOption{highs.WithOutput(opts.Verbose)}
	if opts.TimeLimit > 0 {
		solveOpts = append(solveOpts, highs.WithTimeLimit(opts.TimeLimit))
	}

	start := time.Now()
	sol, err := hm.Solve(solveOpts...)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("highs solve: %w", err)
	}

	out := &Solution{
		Status:    mapHighsStatus(sol),
		SolveTime: elapsed,
	}
	if out.Status == StatusOptimal || out.Status == StatusFeasible {
		out.Objective = sol.Objective
		out.Values = make(map[string]float64, len(m.Variables))
		for name, col := range idx {
			out.Values[name] = sol.ColValues[col]
		}
		if !m.HasIntegrality() && len(m.Objective.Quad) == 0 {
			out.Duals = rowDuals(m, sol)
			out.ReducedCosts = colDuals(idx, sol)
		}
	} else {
		out.Detail = fmt.Sprintf("highs status %v", sol.Status)
	}
	return out, nil
}

func buildHighsModel(m *Model) (*highs.Model, map[string]int, error) {
	idx := m.VarIndex()
	if len(idx) != len(m.Variables) {
		return nil, nil, fmt.Errorf("model %q has duplicate variable names", m.Name)
	}
	hm := &highs.Model{
		Maximize: m.Objective.Maximize,
		Offset:   m.Objective.Offset,
		ColCosts: make([]float64, len(m.Variables)),
		ColLower: make([]float64, len(m.Variables)),
		ColUpper: make([]float64, len(m.Variables)),
		VarTypes: make([]highs.VariableType, len(m.Variables)),
	}
	for i, v := range m.Variables {
		hm.ColLower[i] = v.Lower
		hm.ColUpper[i] = v.Upper
		switch v.Type {
		case Continuous:
			hm.VarTypes[i] = highs.Continuous
		case Integer:
			hm.VarTypes[i] = highs.Integer
		case Binary:
			hm.VarTypes[i] = highs.Integer
			hm.ColLower[i] = 0
			hm.ColUpper[i] = 1
		}
	}
	for _, t := range m.Objective.Terms {
		col, ok := idx[t.Var]
		if !ok {
			return nil, nil, fmt.Errorf("objective references unknown variable %q", t.Var)
		}
		hm.ColCosts[col] += t.Coef
	}
	for _, q := range m.Objective.Quad {
		i, ok := idx[q.I]
		if !ok {
			return nil, nil, fmt.Errorf("quadratic term references unknown variable %q", q.I)
		}
		j, ok := idx[q.J]
		if !ok {
			return nil, nil, fmt.Errorf("quadratic term references unknown variable %q", q.J)
		}
		// HiGHS wants the upper triangle of Q for 0.5*x'Qx. Off-diagonal
		// coefficients q.Coef*x_i*x_j therefore contribute q.Coef to Q_ij
		// once, diagonal terms contribute 2*q.Coef.
		if i == j {
			hm.Hessian = append(hm.Hessian, highs.Nonzero{Row: i, Col: j, Val: 2 * q.Coef})
			continue
		}
		if i > j {
			i, j = j, i
		}
		hm.Hessian = append(hm.Hessian, highs.Nonzero{Row: i, Col: j, Val: q.Coef})
	}
	for _, c := range m.Constraints {
		row := len(hm.RowLower)
		hm.RowLower = append(hm.RowLower, c.Lower)
		hm.RowUpper = append(hm.RowUpper, c.Upper)
		for _, t := range c.Terms {
			col, ok := idx[t.Var]
			if !ok {
				return nil, nil, fmt.Errorf("constraint %q references unknown variable %q", c.Name, t.Var)
			}
			if t.Coef != 0 {
				hm.ConstMatrix = append(hm.ConstMatrix, highs.Nonzero{Row: row, Col: col, Val: t.Coef})
			}
		}
	}
	return hm, idx, nil
}

func mapHighsStatus(sol *highs.Solution) Status {
	switch {
	case sol.IsOptimal():
		return StatusOptimal
	case sol.IsTimeLimit():
		if sol.HasSolution() {
			return StatusFeasible
		}
		return StatusError
	case sol.IsInfeasible():
		return StatusInfeasible
	case sol.IsUnbounded():
		return StatusUnbounded
	default:
		return StatusError
	}
}

func rowDuals(m *Model, sol *highs.Solution) map[string]float64 {
	if len(sol.RowDuals) < len(m.Constraints) {
		return nil
	}
	duals := make(map[string]float64, len(m.Constraints))
	for i, c := range m.Constraints {
		if c.Name != "" {
			duals[c.Name] = sol.RowDuals[i]
		}
	}
	return duals
}

func colDuals(idx map[string]int, sol *highs.Solution) map[string]float64 {
	if len(sol.ColDuals) == 0 {
		return nil
	}
	rc := make(map[string]float64, len(idx))
	for name, col := range idx {
		if col < len(sol.ColDuals) {
			rc[name] = sol.ColDuals[col]
		}
	}
	return rc
}
