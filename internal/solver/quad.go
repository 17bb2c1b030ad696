package solver

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrNonConvex marks quadratic input rejected before any solve attempt.
var ErrNonConvex = errors.New("quadratic objective is not convex")

// QuadSolver is the convex quadratic adapter. It verifies positive
// semi-definiteness of the quadratic form before handing the model to the
// HiGHS QP path; non-convex input fails with a classification error instead
// of a misleading solver failure.
type QuadSolver struct {
	lp *HighsSolver
}

// NewQuad returns the quadratic/conic adapter.
func NewQuad() *QuadSolver { return &QuadSolver{lp: NewHighs()} }

func (s *QuadSolver) Name() string { return "highs-qp" }

func (s *QuadSolver) Solve(ctx context.Context, m *Model, opts Options) (*Solution, error) {
	if len(m.Objective.Quad) == 0 {
		return nil, fmt.Errorf("model %q has no quadratic terms; use the linear adapter", m.Name)
	}
	if m.HasIntegrality() {
		return nil, fmt.Errorf("model %q mixes integrality with a quadratic objective", m.Name)
	}
	convex, err := isConvex(m)
	if err != nil {
		return nil, err
	}
	if !convex {
		return nil, fmt.Errorf("model %q: %w", m.Name, ErrNonConvex)
	}
	return s.lp.Solve(ctx, m, opts)
}

// isConvex checks positive semi-definiteness of the quadratic form for a
// minimization (concavity for a maximization) via Cholesky. A small diagonal
// shift is added first; strict Cholesky fails on singular PSD matrices.
func isConvex(m *Model) (bool, error) {
	idx := m.VarIndex()
	n := len(m.Variables)
	q := mat.NewSymDense(n, nil)
	for _, t := range m.Objective.Quad {
		i, ok := idx[t.I]
		if !ok {
			return false, fmt.Errorf("quadratic term references unknown variable %q", t.I)
		}
		j, ok := idx[t.J]
		if !ok {
			return false, fmt.Errorf("quadratic term references unknown variable %q", t.J)
		}
		coef := t.Coef
		if m.Objective.Maximize {
			// maximizing x'Qx is convex programming iff Q is negative
			// semi-definite; flip the sign and test PSD
			coef = -coef
		}
		if i == j {
			q.SetSym(i, i, q.At(i, i)+coef)
		} else {
			q.SetSym(i, j, q.At(i, j)+coef/2)
		}
	}
	const jitter = 1e-9
	for i := 0; i < n; i++ {
		q.SetSym(i, i, q.At(i, i)+jitter)
	}
	var chol mat.Cholesky
	return chol.Factorize(q), nil
}
