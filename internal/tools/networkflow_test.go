package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/optikit/optikit/internal/model"
)

func TestNetworkMaxFlowPure(t *testing.T) {
	tb := testToolbox(bruteForce{})
	req := &model.NetworkRequest{
		FlowType: model.MaxFlow,
		Nodes: []model.Node{
			{Name: "src"}, {Name: "mid_a"}, {Name: "mid_b"}, {Name: "dst"},
		},
		Edges: []model.Edge{
			{From: "src", To: "mid_a", Capacity: 10},
			{From: "src", To: "mid_b", Capacity: 5},
			{From: "mid_a", To: "dst", Capacity: 8},
			{From: "mid_b", To: "dst", Capacity: 10},
		},
		Source: "src",
		Sink:   "dst",
	}

	res, err := tb.Network(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, model.StatusOptimal, res.Status)
	require.InDelta(t, 13, res.TotalFlow, 1e-6)
	require.NotNil(t, res.Objective)
	require.InDelta(t, 13, *res.Objective, 1e-6)

	flows := map[string]float64{}
	for _, f := range res.Flows {
		flows[f.From+"->"+f.To] = f.Flow
	}
	require.InDelta(t, 8, flows["mid_a->dst"], 1e-6)
	require.InDelta(t, 5, flows["src->mid_b"], 1e-6)

	// saturated edges surface as bottlenecks
	bn := map[string]bool{}
	for _, f := range res.Bottlenecks {
		bn[f.From+"->"+f.To] = true
	}
	require.True(t, bn["mid_a->dst"])
	require.True(t, bn["src->mid_b"])

	// intermediates conserve flow exactly
	require.InDelta(t, 0, res.NodeBalance["mid_a"], 1e-6)
	require.InDelta(t, 0, res.NodeBalance["mid_b"], 1e-6)
}

func TestNetworkMaxFlowInferredTerminals(t *testing.T) {
	tb := testToolbox(bruteForce{})
	req := &model.NetworkRequest{
		FlowType: model.MaxFlow,
		Nodes: []model.Node{
			{Name: "plant", Supply: 20},
			{Name: "city", Demand: 20},
		},
		Edges: []model.Edge{
			{From: "plant", To: "city", Capacity: 7},
		},
	}

	res, err := tb.Network(context.Background(), req)
	require.NoError(t, err)
	require.InDelta(t, 7, res.TotalFlow, 1e-6)
}

func TestNetworkValidationRejectsSelfLoop(t *testing.T) {
	tb := testToolbox(bruteForce{})
	req := &model.NetworkRequest{
		FlowType: model.MaxFlow,
		Nodes:    []model.Node{{Name: "a"}, {Name: "b"}},
		Edges:    []model.Edge{{From: "a", To: "a", Capacity: 1}},
		Source:   "a",
		Sink:     "b",
	}
	_, err := tb.Network(context.Background(), req)
	require.Error(t, err)
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestNetworkValidationRejectsSupplyAndDemand(t *testing.T) {
	tb := testToolbox(bruteForce{})
	req := &model.NetworkRequest{
		FlowType: model.MinCostFlow,
		Nodes:    []model.Node{{Name: "a", Supply: 1, Demand: 1}},
	}
	_, err := tb.Network(context.Background(), req)
	require.Error(t, err)
}

func TestVerifyBalanceFlagsViolation(t *testing.T) {
	req := &model.NetworkRequest{
		FlowType: model.MinCostFlow,
		Nodes: []model.Node{
			{Name: "w", Supply: 10},
			{Name: "c", Demand: 10},
		},
	}
	msg := verifyBalance(req, map[string]float64{"w": -10, "c": 4})
	require.Contains(t, msg, "consistency violation")
	require.Contains(t, msg, "c")

	require.Empty(t, verifyBalance(req, map[string]float64{"w": -10, "c": 10}))
}

func TestNodeBalance(t *testing.T) {
	nodes := []model.Node{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	edges := []model.Edge{
		{From: "a", To: "b"},
		{From: "b", To: "c"},
	}
	balance := nodeBalance(nodes, edges, []float64{4, 4})
	require.InDelta(t, -4, balance["a"], 1e-9)
	require.InDelta(t, 0, balance["b"], 1e-9)
	require.InDelta(t, 4, balance["c"], 1e-9)
}
