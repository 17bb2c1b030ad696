package tools

import (
	"context"
	"fmt"
	"math"

	"github.com/optikit/optikit/internal/model"
	"github.com/optikit/optikit/internal/numeric"
	"github.com/optikit/optikit/internal/reform"
	"github.com/optikit/optikit/internal/solver"
)

// lpFallbackEdges is the size above which max-flow leaves the specialized
// algorithm for the LP formulation.
const lpFallbackEdges = 5000

// Network solves min-cost, max-flow, and assignment problems. Pure networks
// go to the specialized adapter; side constraints or very large instances
// fall back to the LP formulation. Every solved flow passes a node-balance
// verification; a violation is an internal error, never silently ignored.
func (tb *Toolbox) Network(ctx context.Context, req *model.NetworkRequest) (*model.FlowResult, error) {
	const tool = "optimize_network"
	if err := req.Validate(); err != nil {
		return nil, err
	}

	edges := req.Edges
	if req.MonteCarlo != nil {
		vals, err := req.MonteCarlo.ParameterValues()
		if err != nil {
			return nil, err
		}
		edges = make([]model.Edge, len(req.Edges))
		copy(edges, req.Edges)
		for i := range edges {
			key := edges[i].From + "->" + edges[i].To
			if v, ok := vals[key]; ok {
				edges[i].Capacity = v
			}
		}
	}

	p := &solver.FlowProblem{
		Source: req.Source,
		Sink:   req.Sink,
		Exact:  req.FlowType == model.Assignment,
	}
	for _, n := range req.Nodes {
		p.Nodes = append(p.Nodes, solver.FlowNode{Name: n.Name, Supply: n.Supply, Demand: n.Demand})
	}
	for _, e := range edges {
		p.Edges = append(p.Edges, solver.FlowEdge{From: e.From, To: e.To, Capacity: e.Capacity, Cost: e.Cost})
	}

	pure := len(req.SideConstraints) == 0 && len(edges) <= lpFallbackEdges
	opts := solver.Options{TimeLimit: req.Options.TimeLimit, Verbose: req.Options.Verbose}

	var (
		fs         *solver.FlowSolution
		err        error
		solverName string
	)
	switch {
	case req.FlowType == model.MaxFlow && pure:
		solverName = tb.reg.Network.Name()
		fs, err = tb.reg.Network.MaxFlow(ctx, p, opts)
	case req.FlowType == model.MaxFlow:
		solverName = tb.reg.MILP.Name()
		fs, err = tb.maxFlowLP(ctx, p, req.SideConstraints, opts)
	default:
		solverName = tb.reg.MILP.Name()
		side, rerr := sideRows(req.SideConstraints, p.Edges)
		if rerr != nil {
			return nil, rerr
		}
		fs, err = tb.reg.Network.MinCost(ctx, p, side, opts)
	}
	if err != nil {
		return &model.FlowResult{Summary: errorSummary(tool, err), FlowType: req.FlowType}, nil
	}

	res := &model.FlowResult{
		Summary: model.Summary{
			Tool:             tool,
			Solver:           solverName,
			Status:           model.Status(fs.Status),
			Message:          fs.Detail,
			ShadowPrices:     fs.Duals,
			SolveTimeSeconds: fs.SolveTime.Seconds(),
		},
		FlowType: req.FlowType,
	}
	if !res.Solved() {
		if res.Status == model.StatusInfeasible {
			res.Message = "no flow satisfies the declared supplies, demands, and capacities"
		}
		return res, nil
	}

	solution := make(map[string]float64, len(edges))
	names := solver.EdgeVarNames(p.Edges)
	for i, e := range edges {
		f := fs.Flows[i]
		util := 0.0
		if e.Capacity > 0 {
			util = f / e.Capacity
		}
		ef := model.EdgeFlow{From: e.From, To: e.To, Flow: f, Capacity: e.Capacity, Utilization: util}
		res.Flows = append(res.Flows, ef)
		if util >= numeric.Utilization {
			res.Bottlenecks = append(res.Bottlenecks, ef)
		}
		solution[names[i]] = f
		res.TotalCost += f * e.Cost
	}
	res.Solution = solution
	res.TotalFlow = fs.Total
	if req.FlowType == model.MaxFlow {
		obj := fs.Total
		res.Objective = &obj
	} else {
		obj := res.TotalCost
		res.Objective = &obj
	}

	res.NodeBalance = nodeBalance(req.Nodes, edges, fs.Flows)
	if msg := verifyBalance(req, res.NodeBalance); msg != "" {
		res.Status = model.StatusError
		res.Message = msg
		res.Objective = nil
		return res, nil
	}

	res.MonteCarlo = mcBlock(tool, solution, *res.Objective,
		"total flow cost (or throughput) under the chosen edge flows")
	return res, nil
}

// maxFlowLP formulates max-flow as an LP: maximize net outflow of the source
// subject to conservation equality at every intermediate node.
func (tb *Toolbox) maxFlowLP(ctx context.Context, p *solver.FlowProblem, cs []model.Constraint, opts solver.Options) (*solver.FlowSolution, error) {
	names := solver.EdgeVarNames(p.Edges)
	m := &solver.Model{Name: "max_flow"}
	for i, e := range p.Edges {
		m.Variables = append(m.Variables, solver.Variable{Name: names[i], Type: solver.Continuous, Lower: 0, Upper: e.Capacity})
	}
	m.Objective.Maximize = true
	for i, e := range p.Edges {
		if e.From == p.Source {
			m.Objective.Terms = append(m.Objective.Terms, solver.Term{Var: names[i], Coef: 1})
		}
		if e.To == p.Source {
			m.Objective.Terms = append(m.Objective.Terms, solver.Term{Var: names[i], Coef: -1})
		}
	}
	for _, n := range p.Nodes {
		if n.Name == p.Source || n.Name == p.Sink {
			continue
		}
		var terms []solver.Term
		for i, e := range p.Edges {
			if e.From == n.Name {
				terms = append(terms, solver.Term{Var: names[i], Coef: 1})
			}
			if e.To == n.Name {
				terms = append(terms, solver.Term{Var: names[i], Coef: -1})
			}
		}
		if len(terms) > 0 {
			m.Constraints = append(m.Constraints, solver.EqRow("balance_"+n.Name, terms, 0))
		}
	}
	side, err := sideRows(cs, p.Edges)
	if err != nil {
		return nil, err
	}
	m.Constraints = append(m.Constraints, side...)

	sol, err := tb.reg.MILP.Solve(ctx, m, opts)
	if err != nil {
		return nil, err
	}
	fs := &solver.FlowSolution{Status: sol.Status, Duals: sol.Duals, SolveTime: sol.SolveTime, Detail: sol.Detail}
	if sol.Status == solver.StatusOptimal || sol.Status == solver.StatusFeasible {
		fs.Total = sol.Objective
		fs.Flows = make([]float64, len(p.Edges))
		for i := range p.Edges {
			fs.Flows[i] = sol.Values[names[i]]
		}
	}
	return fs, nil
}

// sideRow coefficients are keyed by edge name ("from->to").
func sideRows(cs []model.Constraint, edges []solver.FlowEdge) ([]solver.Constraint, error) {
	if len(cs) == 0 {
		return nil, nil
	}
	names := solver.EdgeVarNames(edges)
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	for _, c := range cs {
		for key := range c.Coefficients {
			if !known[key] {
				return nil, model.Invalid("side_constraints", "references unknown edge %q", key)
			}
		}
	}
	return reform.Selection(cs, func(edge string) string { return edge })
}

func nodeBalance(nodes []model.Node, edges []model.Edge, flows []float64) map[string]float64 {
	balance := make(map[string]float64, len(nodes))
	for _, n := range nodes {
		balance[n.Name] = 0
	}
	for i, e := range edges {
		balance[e.To] += flows[i]
		balance[e.From] -= flows[i]
	}
	return balance
}

// verifyBalance is the post-solve conservation check. A violation indicates
// a modeling bug and is fatal to the call.
func verifyBalance(req *model.NetworkRequest, balance map[string]float64) string {
	for _, n := range req.Nodes {
		b := balance[n.Name]
		switch {
		case req.FlowType == model.MaxFlow && (n.Name == req.Source || n.Name == req.Sink):
			// terminals absorb the net flow
		case n.Supply > 0 && req.FlowType != model.Assignment:
			if b > numeric.Feasibility || b < -n.Supply-numeric.Feasibility {
				return balanceError(n.Name, b)
			}
		case n.Supply > 0:
			if !numeric.Eq(b, -n.Supply, numeric.Feasibility) {
				return balanceError(n.Name, b)
			}
		case n.Demand > 0 && req.FlowType != model.Assignment:
			if b < n.Demand-numeric.Feasibility {
				return balanceError(n.Name, b)
			}
		case n.Demand > 0:
			if !numeric.Eq(b, n.Demand, numeric.Feasibility) {
				return balanceError(n.Name, b)
			}
		default:
			if math.Abs(b) > numeric.Feasibility {
				return balanceError(n.Name, b)
			}
		}
	}
	return ""
}

func balanceError(node string, b float64) string {
	return fmt.Sprintf("internal consistency violation: node %q balance %g conflicts with its supply/demand", node, b)
}
