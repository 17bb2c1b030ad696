package tools

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/optikit/optikit/internal/model"
	"github.com/optikit/optikit/internal/solver"
)

// Pareto sweeps weighted scalarizations of two or more objectives over the
// selection feasible region, filters dominated outcomes, and recommends the
// knee point of the remaining frontier.
func (tb *Toolbox) Pareto(ctx context.Context, req *model.ParetoRequest) (*model.ParetoResult, error) {
	const tool = "pareto_frontier"
	if err := req.Validate(); err != nil {
		return nil, err
	}

	grid := weightGrid(len(req.Objectives), req.NumPoints)
	var (
		points    []model.ParetoPoint
		seen      = map[string]bool{}
		solveTime float64
	)
	for _, weights := range grid {
		obj := model.ObjectiveSpec{Functions: make([]model.WeightedFunction, len(req.Objectives))}
		wmap := make(map[string]float64, len(req.Objectives))
		for i, f := range req.Objectives {
			obj.Functions[i] = model.WeightedFunction{Name: f.Name, Weight: weights[i], Sense: f.Sense, Items: f.Items}
			wmap[f.Name] = weights[i]
		}
		m, err := selectionModel(tool, req.Items, req.Resources, &obj, req.Constraints)
		if err != nil {
			return nil, err
		}
		sol, err := tb.reg.MILP.Solve(ctx, m, solver.Options{TimeLimit: req.Options.TimeLimit, Verbose: req.Options.Verbose})
		if err != nil {
			return &model.ParetoResult{Summary: errorSummary(tool, err)}, nil
		}
		solveTime += sol.SolveTime.Seconds()
		if sol.Status != solver.StatusOptimal && sol.Status != solver.StatusFeasible {
			continue
		}
		key := selectionKey(req.Items, sol.Values)
		if seen[key] {
			continue
		}
		seen[key] = true
		points = append(points, model.ParetoPoint{
			Weights:    wmap,
			Objectives: evaluateObjectives(req.Objectives, sol.Values),
			Solution:   sol.Values,
		})
	}

	if len(points) == 0 {
		return &model.ParetoResult{
			Summary: model.Summary{
				Tool:    tool,
				Solver:  tb.reg.MILP.Name(),
				Status:  model.StatusInfeasible,
				Message: "no weight combination yields a feasible selection",
			},
			PointsEvaluated: len(grid),
		}, nil
	}

	frontier := filterDominated(points, req.Objectives)
	knee := kneePoint(frontier, req.Objectives)

	res := &model.ParetoResult{
		Summary: model.Summary{
			Tool:             tool,
			Solver:           tb.reg.MILP.Name(),
			Status:           model.StatusOptimal,
			SolveTimeSeconds: solveTime,
		},
		Frontier:        frontier,
		Knee:            knee,
		PointsEvaluated: len(grid),
		PointsDominated: len(points) - len(frontier),
	}
	if knee != nil {
		res.Solution = knee.Solution
		agg := 0.0
		for name, v := range knee.Objectives {
			agg += knee.Weights[name] * v
		}
		res.Objective = &agg
		res.ResourceUsage = resourceUsage(req.Items, req.Resources, knee.Solution)
		res.MonteCarlo = mcBlock(tool, knee.Solution, agg,
			"weighted objective value at the recommended knee point")
	}
	return res, nil
}

// weightGrid enumerates weight vectors summing to 1: linear interpolation for
// two objectives, a simplex lattice for three or more.
func weightGrid(k, numPoints int) [][]float64 {
	if k == 2 {
		n := numPoints
		if n < 2 {
			n = 11
		}
		grid := make([][]float64, n)
		for i := 0; i < n; i++ {
			w := float64(i) / float64(n-1)
			grid[i] = []float64{w, 1 - w}
		}
		return grid
	}
	divisions := numPoints
	if divisions < 2 {
		divisions = 4
	}
	var grid [][]float64
	comp := make([]int, k)
	var walk func(pos, left int)
	walk = func(pos, left int) {
		if pos == k-1 {
			comp[pos] = left
			w := make([]float64, k)
			for i, c := range comp {
				w[i] = float64(c) / float64(divisions)
			}
			grid = append(grid, w)
			return
		}
		for c := 0; c <= left; c++ {
			comp[pos] = c
			walk(pos+1, left-c)
		}
	}
	walk(0, divisions)
	return grid
}

func evaluateObjectives(funcs []model.WeightedFunction, chosen map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(funcs))
	for _, f := range funcs {
		v := 0.0
		for item, coef := range f.Items {
			v += coef * chosen[item]
		}
		out[f.Name] = v
	}
	return out
}

// oriented reports objective values signed so that larger is better.
func oriented(f model.WeightedFunction, v float64) float64 {
	if f.Sense == model.Minimize {
		return -v
	}
	return v
}

// filterDominated drops every point weakly dominated by another: at least as
// good on every objective and strictly better on one.
func filterDominated(points []model.ParetoPoint, funcs []model.WeightedFunction) []model.ParetoPoint {
	var frontier []model.ParetoPoint
	for i, p := range points {
		dominated := false
		for j, q := range points {
			if i == j {
				continue
			}
			if dominates(q, p, funcs) {
				dominated = true
				break
			}
		}
		if !dominated {
			frontier = append(frontier, p)
		}
	}
	return frontier
}

func dominates(a, b model.ParetoPoint, funcs []model.WeightedFunction) bool {
	strict := false
	for _, f := range funcs {
		av := oriented(f, a.Objectives[f.Name])
		bv := oriented(f, b.Objectives[f.Name])
		if av < bv-1e-9 {
			return false
		}
		if av > bv+1e-9 {
			strict = true
		}
	}
	return strict
}

// kneePoint picks the frontier point closest to the normalized ideal, the
// spot with the best joint trade-off.
func kneePoint(frontier []model.ParetoPoint, funcs []model.WeightedFunction) *model.ParetoPoint {
	if len(frontier) == 0 {
		return nil
	}
	if len(frontier) == 1 {
		return &frontier[0]
	}
	mins := make(map[string]float64, len(funcs))
	maxs := make(map[string]float64, len(funcs))
	for _, f := range funcs {
		vals := make([]float64, len(frontier))
		for i, p := range frontier {
			vals[i] = oriented(f, p.Objectives[f.Name])
		}
		mins[f.Name] = floats.Min(vals)
		maxs[f.Name] = floats.Max(vals)
	}
	bestIdx, bestDist := 0, math.Inf(1)
	for i, p := range frontier {
		d := 0.0
		for _, f := range funcs {
			span := maxs[f.Name] - mins[f.Name]
			if span <= 0 {
				continue
			}
			norm := (oriented(f, p.Objectives[f.Name]) - mins[f.Name]) / span
			d += (1 - norm) * (1 - norm)
		}
		if d < bestDist {
			bestIdx, bestDist = i, d
		}
	}
	return &frontier[bestIdx]
}
