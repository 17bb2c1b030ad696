package model

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func intRef(n int) *int { return &n }

func requireInvalid(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "want *ValidationError, got %T: %v", err, err)
	require.Equal(t, field, verr.Field)
}

func validAllocation() *AllocationRequest {
	return &AllocationRequest{
		Items: []Item{
			{Name: "alpha", Value: 10, Requirements: map[string]float64{"budget": 4}},
			{Name: "beta", Value: 7, Requirements: map[string]float64{"budget": 3}},
		},
		Resources: map[string]float64{"budget": 10},
	}
}

func TestAllocationValidateDefaultsSense(t *testing.T) {
	req := validAllocation()
	require.NoError(t, req.Validate())
	require.Equal(t, Maximize, req.Objective.Sense)
}

func TestAllocationValidateItemUniverse(t *testing.T) {
	req := validAllocation()
	req.Items[1].Name = "alpha"
	requireInvalid(t, req.Validate(), "items")

	req = validAllocation()
	req.Items[0].Requirements["staff"] = 1
	requireInvalid(t, req.Validate(), "items.alpha")

	req = validAllocation()
	req.Items[0].Requirements["budget"] = -2
	requireInvalid(t, req.Validate(), "items.alpha")

	req = validAllocation()
	req.Items[0].Value = math.Inf(1)
	requireInvalid(t, req.Validate(), "items.alpha.value")

	req = validAllocation()
	req.Resources["budget"] = -1
	requireInvalid(t, req.Validate(), "resources.budget")
}

func TestAllocationValidateMultiObjective(t *testing.T) {
	req := validAllocation()
	req.Objective = ObjectiveSpec{
		Functions: []WeightedFunction{
			{Name: "value", Weight: 0.6, Items: map[string]float64{"alpha": 10}},
			{Name: "reach", Weight: 0.4, Items: map[string]float64{"beta": 3}},
		},
	}
	require.NoError(t, req.Validate())

	req.Objective.Functions[1].Weight = 0.5
	requireInvalid(t, req.Validate(), "objective.functions")

	req.Objective.Functions[1].Weight = 0.4
	req.Objective.Items = map[string]float64{"alpha": 1}
	requireInvalid(t, req.Validate(), "objective")

	req.Objective.Items = nil
	req.Objective.Functions = req.Objective.Functions[:1]
	requireInvalid(t, req.Validate(), "objective.functions")

	req = validAllocation()
	req.Objective = ObjectiveSpec{
		Functions: []WeightedFunction{
			{Name: "value", Weight: 0.5, Items: map[string]float64{"ghost": 1}},
			{Name: "reach", Weight: 0.5, Items: map[string]float64{"beta": 3}},
		},
	}
	requireInvalid(t, req.Validate(), "objective.functions.value")
}

func TestAllocationValidateSingleObjectiveUnknownItem(t *testing.T) {
	req := validAllocation()
	req.Objective = ObjectiveSpec{Sense: Minimize, Items: map[string]float64{"ghost": 1}}
	requireInvalid(t, req.Validate(), "objective.items")
}

func TestAllocationValidateConstraints(t *testing.T) {
	cases := []struct {
		name  string
		c     Constraint
		field string
	}{
		{"linear no coefficients", Constraint{Kind: ConstraintLinear, Sense: LessEq}, "constraints[0]"},
		{"linear unknown item", Constraint{Kind: ConstraintLinear, Coefficients: map[string]float64{"ghost": 1}, Sense: LessEq}, "constraints[0]"},
		{"linear bad sense", Constraint{Kind: ConstraintLinear, Coefficients: map[string]float64{"alpha": 1}, Sense: "lt"}, "constraints[0]"},
		{"conditional unknown then", Constraint{Kind: ConstraintConditional, IfItem: "alpha", ThenItem: "ghost"}, "constraints[0]"},
		{"mutex empty", Constraint{Kind: ConstraintMutex}, "constraints[0]"},
		{"disjunctive count range", Constraint{Kind: ConstraintDisjunctive, Items: []string{"alpha"}, Count: intRef(2)}, "constraints[0]"},
		{"named kind mismatch", Constraint{Kind: ConstraintDeadline, Name: "due"}, "constraints.due"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validAllocation()
			req.Constraints = []Constraint{tc.c}
			requireInvalid(t, req.Validate(), tc.field)
		})
	}

	req := validAllocation()
	req.Constraints = []Constraint{
		{Kind: ConstraintLinear, Coefficients: map[string]float64{"alpha": 1, "beta": 1}, Sense: LessEq, Bound: 1},
		{Kind: ConstraintConditional, IfItem: "alpha", ThenItem: "beta"},
		{Kind: ConstraintMutex, Items: []string{"alpha", "beta"}, Count: intRef(1)},
		{Kind: ConstraintMutex, Items: []string{"alpha"}, Count: intRef(0)},
	}
	require.NoError(t, req.Validate())
}

func validRobust() *RobustRequest {
	return &RobustRequest{
		Items: []Item{
			{Name: "alpha", Value: 10, Requirements: map[string]float64{"budget": 4}},
			{Name: "beta", Value: 7, Requirements: map[string]float64{"budget": 3}},
		},
		Resources: map[string]float64{"budget": 10},
		Scenarios: []Scenario{
			{Name: "boom", Values: map[string]float64{"alpha": 14}},
			{Name: "bust", Values: map[string]float64{"alpha": 3}},
		},
	}
}

func TestRobustValidateEqualizesProbabilities(t *testing.T) {
	req := validRobust()
	require.NoError(t, req.Validate())
	require.InDelta(t, 0.5, req.Scenarios[0].Probability, 1e-12)
	require.InDelta(t, 0.5, req.Scenarios[1].Probability, 1e-12)
}

func TestRobustValidateExplicitProbabilitiesMustSum(t *testing.T) {
	req := validRobust()
	req.Scenarios[0].Probability = 0.6
	req.Scenarios[1].Probability = 0.3
	requireInvalid(t, req.Validate(), "scenarios")

	req.Scenarios[1].Probability = 0.4
	require.NoError(t, req.Validate())
}

func TestRobustValidateScenarioErrors(t *testing.T) {
	req := validRobust()
	req.Scenarios[1].Name = "boom"
	requireInvalid(t, req.Validate(), "scenarios")

	req = validRobust()
	req.Scenarios[0].Values["ghost"] = 1
	requireInvalid(t, req.Validate(), "scenarios.boom")

	req = validRobust()
	req.Scenarios[0].Probability = -0.1
	requireInvalid(t, req.Validate(), "scenarios.boom")
}

func TestRobustValidateCriterion(t *testing.T) {
	req := validRobust()
	req.Criterion = PercentileFloor
	requireInvalid(t, req.Validate(), "percentile")

	req.Percentile = 25
	require.NoError(t, req.Validate())

	req.Criterion = "median"
	requireInvalid(t, req.Validate(), "criterion")
}

func validPortfolio() *PortfolioRequest {
	return &PortfolioRequest{
		Assets: []Asset{
			{Name: "bonds", ExpectedReturn: 0.03},
			{Name: "stocks", ExpectedReturn: 0.08},
		},
		Covariance: [][]float64{
			{0.01, 0.002},
			{0.002, 0.04},
		},
	}
}

func TestPortfolioValidate(t *testing.T) {
	require.NoError(t, validPortfolio().Validate())
}

func TestPortfolioValidateCovariance(t *testing.T) {
	req := validPortfolio()
	req.Covariance = req.Covariance[:1]
	requireInvalid(t, req.Validate(), "covariance_matrix")

	req = validPortfolio()
	req.Covariance[1] = []float64{0.002}
	requireInvalid(t, req.Validate(), "covariance_matrix")

	req = validPortfolio()
	req.Covariance[1][0] = 0.003
	requireInvalid(t, req.Validate(), "covariance_matrix")
}

func TestPortfolioValidateModes(t *testing.T) {
	req := validPortfolio()
	req.Mode = MaxReturn
	requireInvalid(t, req.Validate(), "max_risk")

	risk := 0.15
	req.MaxRisk = &risk
	require.NoError(t, req.Validate())

	req.Mode = "max_drawdown"
	requireInvalid(t, req.Validate(), "mode")
}

func TestPortfolioValidateRiskConstraints(t *testing.T) {
	req := validPortfolio()
	req.Constraints = []Constraint{{Kind: ConstraintQuadraticRisk, MaxRisk: 0.12}}
	require.NoError(t, req.Validate())
	require.NotNil(t, req.MaxRisk)
	require.Equal(t, 0.12, *req.MaxRisk)

	// the tightest ceiling wins over an explicit top-level one
	req = validPortfolio()
	loose := 0.30
	req.MaxRisk = &loose
	req.Constraints = []Constraint{{Kind: ConstraintQuadraticRisk, MaxRisk: 0.12}}
	require.NoError(t, req.Validate())
	require.Equal(t, 0.12, *req.MaxRisk)

	req = validPortfolio()
	req.Constraints = []Constraint{{Kind: ConstraintQuadraticRisk, MaxRisk: 0}}
	requireInvalid(t, req.Validate(), "constraints[0]")

	req = validPortfolio()
	req.Constraints = []Constraint{{Kind: ConstraintMutex, Items: []string{"bonds"}}}
	requireInvalid(t, req.Validate(), "constraints[0]")
}

func TestPortfolioValidateRiskConstraintSatisfiesMaxReturn(t *testing.T) {
	req := validPortfolio()
	req.Mode = MaxReturn
	req.Constraints = []Constraint{{Kind: ConstraintQuadraticRisk, MaxRisk: 0.15}}
	require.NoError(t, req.Validate())
}

func TestPortfolioValidateWeightBounds(t *testing.T) {
	req := validPortfolio()
	req.MinWeight = 0.8
	req.MaxWeight = 0.5
	requireInvalid(t, req.Validate(), "min_weight")

	req = validPortfolio()
	req.MaxWeight = 0.3
	requireInvalid(t, req.Validate(), "max_weight")

	req = validPortfolio()
	req.AllowShort = true
	require.NoError(t, req.Validate())
	lo, hi := req.weightBounds()
	require.Equal(t, -1.0, lo)
	require.Equal(t, 1.0, hi)
}

func validSchedule() *ScheduleRequest {
	return &ScheduleRequest{
		Tasks: []Task{
			{Name: "design", Duration: 2},
			{Name: "build", Duration: 3, Dependencies: []string{"design"}},
			{Name: "test", Duration: 1, Dependencies: []string{"build"}},
		},
		Horizon: 10,
	}
}

func TestScheduleValidate(t *testing.T) {
	require.NoError(t, validSchedule().Validate())
}

func TestScheduleValidateTasks(t *testing.T) {
	req := validSchedule()
	req.Tasks[1].Name = "design"
	requireInvalid(t, req.Validate(), "tasks")

	req = validSchedule()
	req.Tasks[0].Duration = 11
	requireInvalid(t, req.Validate(), "tasks.design.duration")

	req = validSchedule()
	req.Tasks[0].Dependencies = []string{"ghost"}
	requireInvalid(t, req.Validate(), "tasks.design.dependencies")

	req = validSchedule()
	req.Tasks[0].Requirements = map[string]float64{"crew": 2}
	requireInvalid(t, req.Validate(), "tasks.design.resource_requirements")

	req.Resources = map[string]float64{"crew": 3}
	require.NoError(t, req.Validate())
}

func TestScheduleValidateDetectsCycle(t *testing.T) {
	req := validSchedule()
	req.Tasks[0].Dependencies = []string{"test"}
	requireInvalid(t, req.Validate(), "tasks")
}

func TestScheduleValidateConstraints(t *testing.T) {
	req := validSchedule()
	req.Constraints = []Constraint{{Kind: ConstraintDeadline, Task: "ghost", Time: 5}}
	requireInvalid(t, req.Validate(), "constraints[0]")

	req.Constraints = []Constraint{{Kind: ConstraintDeadline, Task: "test", Time: 12}}
	requireInvalid(t, req.Validate(), "constraints[0]")

	req.Constraints = []Constraint{{Kind: ConstraintParallelLimit, Limit: 0}}
	requireInvalid(t, req.Validate(), "constraints[0]")

	req.Constraints = []Constraint{{Kind: ConstraintMutex, Items: []string{"design"}}}
	requireInvalid(t, req.Validate(), "constraints[0]")

	req.Constraints = []Constraint{
		{Kind: ConstraintRelease, Task: "build", Time: 2},
		{Kind: ConstraintDeadline, Task: "test", Time: 9},
		{Kind: ConstraintParallelLimit, Limit: 2},
	}
	require.NoError(t, req.Validate())
}

func TestScheduleValidateObjective(t *testing.T) {
	req := validSchedule()
	req.Objective = "min_cost"
	requireInvalid(t, req.Validate(), "objective")

	req.Objective = MaxValue
	require.NoError(t, req.Validate())
}

func TestFindCycle(t *testing.T) {
	require.Empty(t, findCycle([]Task{
		{Name: "a"},
		{Name: "b", Dependencies: []string{"a"}},
		{Name: "c", Dependencies: []string{"a", "b"}},
	}))

	cycle := findCycle([]Task{
		{Name: "a", Dependencies: []string{"c"}},
		{Name: "b", Dependencies: []string{"a"}},
		{Name: "c", Dependencies: []string{"b"}},
	})
	require.Contains(t, []string{"a", "b", "c"}, cycle)
}

func validNetwork() *NetworkRequest {
	return &NetworkRequest{
		Nodes: []Node{
			{Name: "plant", Supply: 10},
			{Name: "hub"},
			{Name: "store", Demand: 10},
		},
		Edges: []Edge{
			{From: "plant", To: "hub", Capacity: 10, Cost: 2},
			{From: "hub", To: "store", Capacity: 10, Cost: 1},
		},
		FlowType: MinCostFlow,
	}
}

func TestNetworkValidate(t *testing.T) {
	require.NoError(t, validNetwork().Validate())
}

func TestNetworkValidateNodes(t *testing.T) {
	req := validNetwork()
	req.Nodes[1].Name = "plant"
	requireInvalid(t, req.Validate(), "nodes")

	req = validNetwork()
	req.Nodes[0].Demand = 5
	requireInvalid(t, req.Validate(), "nodes.plant")
}

func TestNetworkValidateEdges(t *testing.T) {
	req := validNetwork()
	req.Edges[0].To = "plant"
	requireInvalid(t, req.Validate(), "edges")

	req = validNetwork()
	req.Edges[0].To = "ghost"
	requireInvalid(t, req.Validate(), "edges")

	req = validNetwork()
	req.Edges[0].Capacity = -1
	requireInvalid(t, req.Validate(), "edges")
}

func TestNetworkValidateMaxFlowInfersEndpoints(t *testing.T) {
	req := validNetwork()
	req.FlowType = MaxFlow
	require.NoError(t, req.Validate())
	require.Equal(t, "plant", req.Source)
	require.Equal(t, "store", req.Sink)
}

func TestNetworkValidateMaxFlowRequiresEndpoints(t *testing.T) {
	req := validNetwork()
	req.FlowType = MaxFlow
	req.Nodes[0].Supply = 0
	req.Nodes[2].Demand = 0
	requireInvalid(t, req.Validate(), "flow_type")

	req.Source = "plant"
	req.Sink = "ghost"
	requireInvalid(t, req.Validate(), "sink")
}

func TestNetworkValidateFlowTypeAndSideConstraints(t *testing.T) {
	req := validNetwork()
	req.FlowType = "multicommodity"
	requireInvalid(t, req.Validate(), "flow_type")

	req = validNetwork()
	req.SideConstraints = []Constraint{{Kind: ConstraintMutex, Items: []string{"plant"}}}
	requireInvalid(t, req.Validate(), "constraints[0]")
}

func validPareto() *ParetoRequest {
	return &ParetoRequest{
		Items: []Item{
			{Name: "alpha", Requirements: map[string]float64{"budget": 4}},
			{Name: "beta", Requirements: map[string]float64{"budget": 3}},
		},
		Resources: map[string]float64{"budget": 10},
		Objectives: []WeightedFunction{
			{Name: "value", Items: map[string]float64{"alpha": 10, "beta": 7}},
			{Name: "reach", Items: map[string]float64{"alpha": 1, "beta": 4}},
		},
	}
}

func TestParetoValidate(t *testing.T) {
	require.NoError(t, validPareto().Validate())
}

func TestParetoValidateObjectives(t *testing.T) {
	req := validPareto()
	req.Objectives = req.Objectives[:1]
	requireInvalid(t, req.Validate(), "objectives")

	req = validPareto()
	req.Objectives[1].Name = "value"
	requireInvalid(t, req.Validate(), "objectives")

	req = validPareto()
	req.Objectives[1].Items = nil
	requireInvalid(t, req.Validate(), "objectives.reach")

	req = validPareto()
	req.Objectives[1].Items["ghost"] = 1
	requireInvalid(t, req.Validate(), "objectives.reach")

	req = validPareto()
	req.NumPoints = -1
	requireInvalid(t, req.Validate(), "num_points")
}

func validStochastic() *StochasticRequest {
	return &StochasticRequest{
		FirstStage: StageSpec{
			Variables: []VariableSpec{{Name: "build"}},
			Objective: map[string]float64{"build": 100},
		},
		SecondStage: StageSpec{
			Variables: []VariableSpec{{Name: "ship"}},
			Objective: map[string]float64{"ship": 5},
			Constraints: []LinearRow{
				{Name: "capacity", Coefficients: map[string]float64{"ship": 1, "build": -1}, Sense: LessEq, Bound: 0},
				{Name: "demand", Coefficients: map[string]float64{"ship": 1}, Sense: GreaterEq, Bound: 8},
			},
		},
		Scenarios: []Scenario{
			{Name: "high", Values: map[string]float64{"rhs:demand": 12}},
			{Name: "low", Values: map[string]float64{"ship": 6}},
		},
	}
}

func TestStochasticValidateDefaultsSense(t *testing.T) {
	req := validStochastic()
	require.NoError(t, req.Validate())
	require.Equal(t, Minimize, req.Sense)
}

func TestStochasticValidateStages(t *testing.T) {
	req := validStochastic()
	req.SecondStage.Variables[0].Name = "build"
	requireInvalid(t, req.Validate(), "second_stage.variables")

	req = validStochastic()
	req.FirstStage.Variables[0].Type = "semicontinuous"
	requireInvalid(t, req.Validate(), "first_stage.variables.build")

	req = validStochastic()
	req.FirstStage.Objective["ship"] = 1
	requireInvalid(t, req.Validate(), "first_stage.objective")

	req = validStochastic()
	req.SecondStage.Constraints[0].Coefficients = nil
	requireInvalid(t, req.Validate(), "second_stage.constraints")

	req = validStochastic()
	req.SecondStage.Constraints[0].Sense = "lt"
	requireInvalid(t, req.Validate(), "second_stage.constraints")
}

func TestStochasticValidateScenarioOverrides(t *testing.T) {
	req := validStochastic()
	req.Scenarios[0].Values = map[string]float64{"rhs:ghost": 1}
	requireInvalid(t, req.Validate(), "scenarios.high")

	req = validStochastic()
	req.Scenarios[1].Values = map[string]float64{"build": 1}
	requireInvalid(t, req.Validate(), "scenarios.low")
}

func TestStochasticValidateRiskMeasure(t *testing.T) {
	req := validStochastic()
	req.RiskMeasure = WorstScenario
	require.NoError(t, req.Validate())

	req.RiskMeasure = CVaR
	requireInvalid(t, req.Validate(), "risk_measure")

	req.RiskMeasure = "variance"
	requireInvalid(t, req.Validate(), "risk_measure")
}

func validColumnGen() *ColumnGenRequest {
	return &ColumnGenRequest{
		Columns: []Column{
			{Name: "narrow", Cost: 1, Entries: map[string]float64{"w25": 3}},
			{Name: "wide", Cost: 1, Entries: map[string]float64{"w40": 2}},
		},
		Demands: map[string]float64{"w25": 30, "w40": 20},
		Pricing: PricingSpec{
			Type:     "knapsack",
			Capacity: 100,
			Items: []PricingItem{
				{Name: "cut25", Row: "w25", Weight: 25},
				{Name: "cut40", Row: "w40", Weight: 40},
			},
		},
	}
}

func TestColumnGenValidate(t *testing.T) {
	require.NoError(t, validColumnGen().Validate())
}

func TestColumnGenValidateColumns(t *testing.T) {
	req := validColumnGen()
	req.Columns[1].Name = "narrow"
	requireInvalid(t, req.Validate(), "initial_columns")

	req = validColumnGen()
	req.Columns[0].Entries["w99"] = 1
	requireInvalid(t, req.Validate(), "initial_columns.narrow")

	req = validColumnGen()
	req.Demands["w25"] = -1
	requireInvalid(t, req.Validate(), "demands.w25")
}

func TestColumnGenValidatePricing(t *testing.T) {
	req := validColumnGen()
	req.Pricing.Capacity = 0
	requireInvalid(t, req.Validate(), "pricing.capacity")

	req = validColumnGen()
	req.Pricing.Items = nil
	requireInvalid(t, req.Validate(), "pricing.items")

	req = validColumnGen()
	req.Pricing.Items[0].Row = "w99"
	requireInvalid(t, req.Validate(), "pricing.items.cut25")

	req = validColumnGen()
	req.Pricing.Items[0].Weight = 0
	requireInvalid(t, req.Validate(), "pricing.items.cut25")

	req = validColumnGen()
	req.Pricing.Type = "tsp"
	requireInvalid(t, req.Validate(), "pricing.type")

	req = validColumnGen()
	req.MaxIterations = -1
	requireInvalid(t, req.Validate(), "max_iterations")
}

func validExecute() *ExecuteRequest {
	lo, hi := 0.0, 10.0
	return &ExecuteRequest{
		Variables: []VariableSpec{
			{Name: "x", Type: "continuous", Lower: &lo, Upper: &hi},
			{Name: "y", Type: "integer"},
		},
		Objective: ExecuteObjective{
			Sense:  Maximize,
			Linear: map[string]float64{"x": 3, "y": 2},
		},
		Constraints: []LinearRow{
			{Coefficients: map[string]float64{"x": 1, "y": 1}, Sense: LessEq, Bound: 6},
		},
	}
}

func TestExecuteValidate(t *testing.T) {
	require.NoError(t, validExecute().Validate())
}

func TestExecuteValidateVariables(t *testing.T) {
	req := validExecute()
	req.Variables[1].Name = "x"
	requireInvalid(t, req.Validate(), "variables")

	req = validExecute()
	req.Variables[1].Type = "boolean"
	requireInvalid(t, req.Validate(), "variables.y")

	req = validExecute()
	lo, hi := 5.0, 2.0
	req.Variables[0].Lower = &lo
	req.Variables[0].Upper = &hi
	requireInvalid(t, req.Validate(), "variables.x")
}

func TestExecuteValidateObjective(t *testing.T) {
	req := validExecute()
	req.Objective.Sense = ""
	requireInvalid(t, req.Validate(), "objective.sense")

	req = validExecute()
	req.Objective.Linear["z"] = 1
	requireInvalid(t, req.Validate(), "objective.linear")

	req = validExecute()
	req.Objective.Quad = []QuadTerm{{I: "x", J: "z", Coef: 1}}
	requireInvalid(t, req.Validate(), "objective.quadratic")
}

func TestExecuteValidateConstraints(t *testing.T) {
	req := validExecute()
	req.Constraints[0].Coefficients = nil
	requireInvalid(t, req.Validate(), "constraints")

	req = validExecute()
	req.Constraints[0].Coefficients["z"] = 1
	requireInvalid(t, req.Validate(), "constraints")

	req = validExecute()
	req.Constraints[0].Sense = "lt"
	requireInvalid(t, req.Validate(), "constraints")

	req = validExecute()
	req.Constraints[0].Bound = math.NaN()
	requireInvalid(t, req.Validate(), "constraints.bound")
}
