package solver

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/cwbudde/mayfly"
)

// MayflySolver is the nonlinear continuous adapter. It searches a bounded box
// with the mayfly population heuristic and reports a local optimum with no
// global certificate. Constraints are handled by quadratic penalty.
type MayflySolver struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly returns the nonlinear adapter with the given search budget.
func NewMayfly(maxIters, popSize int, seed int64) *MayflySolver {
	return &MayflySolver{maxIters: maxIters, popSize: popSize, seed: seed}
}

// NewMayflyDefault returns the nonlinear adapter with the default budget.
func NewMayflyDefault() *MayflySolver { return NewMayfly(500, 40, 1) }

func (s *MayflySolver) Name() string { return "mayfly" }

// defaultBox bounds variables the caller left unbounded. The engine requires
// a finite search box.
const defaultBox = 1e4

const penaltyWeight = 1e6

func (s *MayflySolver) Solve(ctx context.Context, m *Model, opts Options) (*Solution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.HasIntegrality() {
		return nil, fmt.Errorf("model %q has integer variables; the nonlinear adapter is continuous-only", m.Name)
	}
	n := len(m.Variables)
	if n == 0 {
		return nil, fmt.Errorf("model %q has no variables", m.Name)
	}

	lower := make([]float64, n)
	upper := make([]float64, n)
	for i, v := range m.Variables {
		lower[i], upper[i] = v.Lower, v.Upper
		if math.IsInf(lower[i], -1) {
			lower[i] = -defaultBox
		}
		if math.IsInf(upper[i], 1) {
			upper[i] = defaultBox
		}
	}
	idx := m.VarIndex()

	// The engine takes scalar box bounds, so search the unit cube and
	// rescale per dimension inside the objective.
	scale := func(u []float64) []float64 {
		x := make([]float64, n)
		for i := range x {
			x[i] = lower[i] + u[i]*(upper[i]-lower[i])
		}
		return x
	}
	eval := func(u []float64) float64 {
		x := scale(u)
		cost := objectiveValue(m, idx, x)
		if m.Objective.Maximize {
			cost = -cost
		}
		return cost + penaltyWeight*violation(m, idx, x)
	}

	cfg := mayfly.NewDefaultConfig()
	cfg.ObjectiveFunc = eval
	cfg.ProblemSize = n
	cfg.MaxIterations = s.maxIters
	cfg.NPop = s.popSize
	cfg.LowerBound = 0
	cfg.UpperBound = 1
	cfg.Rand = rand.New(rand.NewSource(s.seed))

	start := time.Now()
	result, err := mayfly.Optimize(cfg)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("mayfly optimize: %w", err)
	}

	x := scale(result.GlobalBest.Position)
	obj := objectiveValue(m, idx, x)
	values := make(map[string]float64, n)
	for name, i := range idx {
		values[name] = x[i]
	}
	sol := &Solution{
		Status:    StatusOptimal,
		Objective: obj,
		Values:    values,
		Local:     true,
		SolveTime: elapsed,
	}
	if v := violation(m, idx, x); v > 1e-4 {
		sol.Status = StatusInfeasible
		sol.Detail = fmt.Sprintf("best candidate violates constraints by %g", v)
	}
	return sol, nil
}

func objectiveValue(m *Model, idx map[string]int, x []float64) float64 {
	v := m.Objective.Offset
	for _, t := range m.Objective.Terms {
		v += t.Coef * x[idx[t.Var]]
	}
	for _, q := range m.Objective.Quad {
		v += q.Coef * x[idx[q.I]] * x[idx[q.J]]
	}
	return v
}

// violation sums squared constraint violations at x.
func violation(m *Model, idx map[string]int, x []float64) float64 {
	total := 0.0
	for _, c := range m.Constraints {
		lhs := 0.0
		for _, t := range c.Terms {
			lhs += t.Coef * x[idx[t.Var]]
		}
		if lhs > c.Upper {
			d := lhs - c.Upper
			total += d * d
		}
		if lhs < c.Lower {
			d := c.Lower - lhs
			total += d * d
		}
	}
	return total
}
