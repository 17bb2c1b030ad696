package solver

import (
	"context"
	"math"
	"strings"
	"testing"
)

func TestEdgeVarNamesDisambiguatesParallelEdges(t *testing.T) {
	names := EdgeVarNames([]FlowEdge{
		{From: "a", To: "b"},
		{From: "a", To: "b"},
		{From: "b", To: "c"},
	})
	want := []string{"a->b", "a->b#1", "b->c"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestFlowLPModelRowsAndBounds(t *testing.T) {
	p := &FlowProblem{
		Nodes: []FlowNode{
			{Name: "src", Supply: 10},
			{Name: "mid"},
			{Name: "dst", Demand: 7},
		},
		Edges: []FlowEdge{
			{From: "src", To: "mid", Capacity: 8, Cost: 2},
			{From: "mid", To: "dst", Capacity: 9, Cost: 3},
		},
	}
	m, names := FlowLPModel(p)
	if len(names) != 2 || names[0] != "src->mid" {
		t.Fatalf("names = %v", names)
	}
	if len(m.Variables) != 2 || m.Variables[0].Upper != 8 || m.Variables[1].Upper != 9 {
		t.Errorf("variable bounds wrong: %+v", m.Variables)
	}
	if len(m.Objective.Terms) != 2 || m.Objective.Terms[0].Coef != 2 {
		t.Errorf("objective terms wrong: %+v", m.Objective.Terms)
	}
	if len(m.Constraints) != 3 {
		t.Fatalf("expected one balance row per node, got %d", len(m.Constraints))
	}
	rows := map[string]Constraint{}
	for _, c := range m.Constraints {
		rows[c.Name] = c
	}
	supply := rows["balance_src"]
	if supply.Lower != 0 || supply.Upper != 10 {
		t.Errorf("supply row bounds = [%v,%v], want [0,10]", supply.Lower, supply.Upper)
	}
	demand := rows["balance_dst"]
	if !math.IsInf(demand.Lower, -1) || demand.Upper != -7 {
		t.Errorf("demand row bounds = [%v,%v], want (-inf,-7]", demand.Lower, demand.Upper)
	}
	transit := rows["balance_mid"]
	if transit.Lower != 0 || transit.Upper != 0 {
		t.Errorf("transit row bounds = [%v,%v], want [0,0]", transit.Lower, transit.Upper)
	}
}

func TestFlowLPModelExactConservation(t *testing.T) {
	p := &FlowProblem{
		Nodes: []FlowNode{{Name: "src", Supply: 3}, {Name: "dst", Demand: 3}},
		Edges: []FlowEdge{{From: "src", To: "dst", Capacity: 5}},
		Exact: true,
	}
	m, _ := FlowLPModel(p)
	rows := map[string]Constraint{}
	for _, c := range m.Constraints {
		rows[c.Name] = c
	}
	supply := rows["balance_src"]
	if supply.Lower != 3 || supply.Upper != 3 {
		t.Errorf("exact supply row bounds = [%v,%v], want [3,3]", supply.Lower, supply.Upper)
	}
	demand := rows["balance_dst"]
	if demand.Lower != -3 || demand.Upper != -3 {
		t.Errorf("exact demand row bounds = [%v,%v], want [-3,-3]", demand.Lower, demand.Upper)
	}
}

func TestMaxFlowRejectsSubResolutionCapacity(t *testing.T) {
	p := &FlowProblem{
		Nodes:  []FlowNode{{Name: "src"}, {Name: "dst"}},
		Edges:  []FlowEdge{{From: "src", To: "dst", Capacity: 0.0004}},
		Source: "src",
		Sink:   "dst",
	}
	_, err := NewNetwork().MaxFlow(context.Background(), p, Options{})
	if err == nil {
		t.Fatal("expected an error for a capacity below the scale resolution")
	}
	if !strings.Contains(err.Error(), "src->dst") || !strings.Contains(err.Error(), "resolution") {
		t.Errorf("error does not name the edge and resolution: %v", err)
	}
}
