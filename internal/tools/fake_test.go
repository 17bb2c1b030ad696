package tools

import (
	"context"
	"io"
	"log/slog"
	"math"

	"github.com/optikit/optikit/internal/solver"
)

// scripted replays a canned response function and records every model it
// was handed, so tests can assert both the orchestration result and the
// model construction.
type scripted struct {
	solverName string
	respond    func(m *solver.Model) *solver.Solution
	calls      []*solver.Model
}

func (s *scripted) Name() string { return s.solverName }

func (s *scripted) Solve(_ context.Context, m *solver.Model, _ solver.Options) (*solver.Solution, error) {
	s.calls = append(s.calls, m)
	return s.respond(m), nil
}

// bruteForce solves small pure-binary models exactly by enumeration, giving
// selection-style orchestrator tests a real optimum without an engine.
type bruteForce struct{}

func (bruteForce) Name() string { return "brute" }

func (bruteForce) Solve(_ context.Context, m *solver.Model, _ solver.Options) (*solver.Solution, error) {
	n := len(m.Variables)
	var (
		best     map[string]float64
		bestObj  float64
		bestComp = math.Inf(-1)
	)
	for mask := 0; mask < 1<<n; mask++ {
		vals := make(map[string]float64, n)
		for i, v := range m.Variables {
			if mask&(1<<i) != 0 {
				vals[v.Name] = 1
			} else {
				vals[v.Name] = 0
			}
		}
		feasible := true
		for _, c := range m.Constraints {
			activity := 0.0
			for _, t := range c.Terms {
				activity += t.Coef * vals[t.Var]
			}
			if activity < c.Lower-1e-9 || activity > c.Upper+1e-9 {
				feasible = false
				break
			}
		}
		if !feasible {
			continue
		}
		obj := m.Objective.Offset
		for _, t := range m.Objective.Terms {
			obj += t.Coef * vals[t.Var]
		}
		comp := obj
		if !m.Objective.Maximize {
			comp = -obj
		}
		if comp > bestComp {
			best, bestObj, bestComp = vals, obj, comp
		}
	}
	if best == nil {
		return &solver.Solution{Status: solver.StatusInfeasible}, nil
	}
	return &solver.Solution{Status: solver.StatusOptimal, Objective: bestObj, Values: best}, nil
}

func testToolbox(s solver.Solver) *Toolbox {
	reg := &solver.Registry{MILP: s, Quadratic: s, Nonlinear: s, Network: solver.NewNetwork()}
	return New(reg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func optimalSolution(values map[string]float64, objective float64) *solver.Solution {
	return &solver.Solution{Status: solver.StatusOptimal, Objective: objective, Values: values}
}

func intOf(n int) *int { return &n }
