// Package solver provides a uniform solve contract over heterogeneous
// optimization backends. Orchestrators build a Model, the selector picks a
// backend, and every adapter returns the same Solution shape.
package solver

import (
	"context"
	"math"
	"time"
)

// VarType restricts a decision variable's domain.
type VarType int

const (
	Continuous VarType = iota
	Integer
	Binary
)

// Variable is one decision variable. Bounds default to (-inf, +inf) for
// continuous and integer variables; Binary variables are always [0, 1].
type Variable struct {
	Name  string
	Type  VarType
	Lower float64
	Upper float64
}

// Term is one linear coefficient on a named variable.
type Term struct {
	Var  string
	Coef float64
}

// QuadTerm is one quadratic objective entry Coef * x_I * x_J.
type QuadTerm struct {
	I, J string
	Coef float64
}

// Objective is a linear or quadratic objective.
type Objective struct {
	Maximize bool
	Terms    []Term
	Quad     []QuadTerm
	Offset   float64
}

// Constraint is a primitive range row: Lower <= sum(Terms) <= Upper.
// Use math.Inf for one-sided rows.
type Constraint struct {
	Name  string
	Terms []Term
	Lower float64
	Upper float64
}

// LeRow builds sum(terms) <= bound.
func LeRow(name string, terms []Term, bound float64) Constraint {
	return Constraint{Name: name, Terms: terms, Lower: math.Inf(-1), Upper: bound}
}

// GeRow builds sum(terms) >= bound.
func GeRow(name string, terms []Term, bound float64) Constraint {
	return Constraint{Name: name, Terms: terms, Lower: bound, Upper: math.Inf(1)}
}

// EqRow builds sum(terms) = bound.
func EqRow(name string, terms []Term, bound float64) Constraint {
	return Constraint{Name: name, Terms: terms, Lower: bound, Upper: bound}
}

// Model is the backend-agnostic problem form produced by orchestrators.
type Model struct {
	Name        string
	Variables   []Variable
	Objective   Objective
	Constraints []Constraint
}

// HasIntegrality reports whether any variable is integer or binary.
func (m *Model) HasIntegrality() bool {
	for _, v := range m.Variables {
		if v.Type != Continuous {
			return true
		}
	}
	return false
}

// VarIndex maps variable names to column indices in declaration order.
func (m *Model) VarIndex() map[string]int {
	idx := make(map[string]int, len(m.Variables))
	for i, v := range m.Variables {
		idx[v.Name] = i
	}
	return idx
}

// Status is the normalized backend outcome.
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusFeasible   Status = "feasible"
	StatusInfeasible Status = "infeasible"
	StatusUnbounded  Status = "unbounded"
	StatusError      Status = "error"
)

// Solution is the uniform result of a backend solve. Duals and ReducedCosts
// are nil unless the solved model was a pure LP. Local marks results with no
// global optimality certificate.
type Solution struct {
	Status       Status
	Objective    float64
	Values       map[string]float64
	Duals        map[string]float64
	ReducedCosts map[string]float64
	Local        bool
	SolveTime    time.Duration
	Detail       string
}

// Options carries per-call solver controls.
type Options struct {
	TimeLimit float64 // seconds; 0 means no limit
	Verbose   bool
}

// Solver is the adapter contract. Solve is deterministic for a deterministic
// model up to the backend's own internal tie-breaking.
type Solver interface {
	Name() string
	Solve(ctx context.Context, m *Model, opts Options) (*Solution, error)
}
