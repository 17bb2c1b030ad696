package solver

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/katalvlaran/lvlath/core"
	"github.com/katalvlaran/lvlath/flow"
)

// FlowNode is a network vertex with optional supply or demand.
type FlowNode struct {
	Name   string
	Supply float64
	Demand float64
}

// FlowEdge is a directed capacitated arc.
type FlowEdge struct {
	From     string
	To       string
	Capacity float64
	Cost     float64
}

// FlowProblem is a pure network-flow instance. Exact switches conservation at
// supply/demand nodes from inequality to strict equality (assignment flows).
type FlowProblem struct {
	Nodes  []FlowNode
	Edges  []FlowEdge
	Source string
	Sink   string
	Exact  bool
}

// FlowSolution is the normalized network solve result. Flows is indexed like
// Edges. Duals carries conservation-row shadow prices when the LP path ran.
type FlowSolution struct {
	Status    Status
	Flows     []float64
	Total     float64
	Cost      float64
	Duals     map[string]float64
	SolveTime time.Duration
	Detail    string
}

// NetworkSolver is the specialized flow adapter: Dinic for max-flow, an LP
// formulation on the HiGHS adapter for min-cost and assignment flows.
type NetworkSolver struct {
	lp *HighsSolver
}

// NewNetwork returns the network-flow adapter.
func NewNetwork() *NetworkSolver { return &NetworkSolver{lp: NewHighs()} }

func (s *NetworkSolver) Name() string { return "network" }

// capScale converts fractional capacities to the integral edge weights the
// graph engine stores, so capacities are resolved at a granularity of
// 1/capScale (0.001).
const capScale = 1000

// MaxFlow runs Dinic between source and sink and reconstructs per-edge flows
// from the residual graph.
func (s *NetworkSolver) MaxFlow(ctx context.Context, p *FlowProblem, opts Options) (*FlowSolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, e := range p.Edges {
		// a positive capacity below the scale resolution would round to a
		// zero-weight edge and vanish from the flow
		if e.Capacity > 0 && int64(math.Round(e.Capacity*capScale)) == 0 {
			return nil, fmt.Errorf("edge %s->%s: capacity %g is below the %g resolution",
				e.From, e.To, e.Capacity, 1.0/capScale)
		}
	}
	g, err := core.NewGraph(core.WithDirected(true), core.WithWeighted())
	if err != nil {
		return nil, fmt.Errorf("new graph: %w", err)
	}
	for _, n := range p.Nodes {
		if err := g.AddVertex(n.Name); err != nil {
			return nil, fmt.Errorf("add vertex %q: %w", n.Name, err)
		}
	}
	// parallel edges collapse into one capacity bucket per ordered pair
	capByPair := make(map[[2]string]float64, len(p.Edges))
	for _, e := range p.Edges {
		key := [2]string{e.From, e.To}
		capByPair[key] += e.Capacity
		w := int64(math.Round(e.Capacity * capScale))
		if _, err := g.AddEdge(e.From, e.To, float64(w)); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", e.From, e.To, err)
		}
	}

	start := time.Now()
	total, residual, err := flow.Dinic(g, p.Source, p.Sink, flow.Options{Verbose: opts.Verbose})
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("dinic: %w", err)
	}

	// flow(u,v) = capacity(u,v) - residual(u,v), aggregated per pair
	residualByPair := make(map[[2]string]float64)
	if residual != nil {
		for _, e := range residual.Edges() {
			key := [2]string{e.From, e.To}
			residualByPair[key] += float64(e.Weight) / capScale
		}
	}
	flows := make([]float64, len(p.Edges))
	remaining := make(map[[2]string]float64, len(capByPair))
	for key, c := range capByPair {
		f := c - residualByPair[key]
		if f < 0 {
			f = 0
		}
		remaining[key] = f
	}
	for i, e := range p.Edges {
		key := [2]string{e.From, e.To}
		f := math.Min(remaining[key], e.Capacity)
		flows[i] = f
		remaining[key] -= f
	}

	return &FlowSolution{
		Status:    StatusOptimal,
		Flows:     flows,
		Total:     total / capScale,
		SolveTime: elapsed,
	}, nil
}

// MinCost solves min-cost (or assignment) flow as an LP on the HiGHS adapter.
// Side rows from the caller break pure-network structure and ride along
// unchanged.
func (s *NetworkSolver) MinCost(ctx context.Context, p *FlowProblem, side []Constraint, opts Options) (*FlowSolution, error) {
	m, names := FlowLPModel(p)
	m.Constraints = append(m.Constraints, side...)
	sol, err := s.lp.Solve(ctx, m, opts)
	if err != nil {
		return nil, err
	}
	out := &FlowSolution{
		Status:    sol.Status,
		Duals:     sol.Duals,
		SolveTime: sol.SolveTime,
		Detail:    sol.Detail,
	}
	if sol.Status == StatusOptimal || sol.Status == StatusFeasible {
		out.Cost = sol.Objective
		out.Flows = make([]float64, len(p.Edges))
		for i := range p.Edges {
			out.Flows[i] = sol.Values[names[i]]
			out.Total += out.Flows[i]
		}
	}
	return out, nil
}

// FlowLPModel translates a flow problem into the primitive model form:
// one bounded continuous variable per edge, one conservation row per node.
// It returns the model and the per-edge variable names.
func FlowLPModel(p *FlowProblem) (*Model, []string) {
	names := EdgeVarNames(p.Edges)
	m := &Model{Name: "network_flow"}
	for i, e := range p.Edges {
		m.Variables = append(m.Variables, Variable{
			Name:  names[i],
			Type:  Continuous,
			Lower: 0,
			Upper: e.Capacity,
		})
		if e.Cost != 0 {
			m.Objective.Terms = append(m.Objective.Terms, Term{Var: names[i], Coef: e.Cost})
		}
	}

	outgoing := make(map[string][]int)
	incoming := make(map[string][]int)
	for i, e := range p.Edges {
		outgoing[e.From] = append(outgoing[e.From], i)
		incoming[e.To] = append(incoming[e.To], i)
	}
	for _, n := range p.Nodes {
		var terms []Term
		for _, i := range outgoing[n.Name] {
			terms = append(terms, Term{Var: names[i], Coef: 1})
		}
		for _, i := range incoming[n.Name] {
			terms = append(terms, Term{Var: names[i], Coef: -1})
		}
		row := "balance_" + n.Name
		switch {
		case n.Supply > 0 && !p.Exact:
			// net outflow at a supply node is capped by its supply
			m.Constraints = append(m.Constraints, Constraint{Name: row, Terms: terms, Lower: 0, Upper: n.Supply})
		case n.Supply > 0:
			m.Constraints = append(m.Constraints, EqRow(row, terms, n.Supply))
		case n.Demand > 0 && !p.Exact:
			// net inflow at a demand node must cover its demand
			m.Constraints = append(m.Constraints, Constraint{Name: row, Terms: terms, Lower: -math.Inf(1), Upper: -n.Demand})
		case n.Demand > 0:
			m.Constraints = append(m.Constraints, EqRow(row, terms, -n.Demand))
		default:
			m.Constraints = append(m.Constraints, EqRow(row, terms, 0))
		}
	}
	return m, names
}

// EdgeVarNames builds a unique, readable variable name per edge.
func EdgeVarNames(edges []FlowEdge) []string {
	names := make([]string, len(edges))
	seen := make(map[string]int, len(edges))
	for i, e := range edges {
		name := e.From + "->" + e.To
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s#%d", name, n)
		} else {
			seen[name] = 1
		}
		names[i] = name
	}
	return names
}
