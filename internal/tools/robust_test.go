package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/optikit/optikit/internal/model"
)

func TestRobustWorstCasePrefersStableItem(t *testing.T) {
	tb := testToolbox(bruteForce{})
	req := &model.RobustRequest{
		Items: []model.Item{
			{Name: "volatile", Value: 80, Requirements: map[string]float64{"budget": 1}},
			{Name: "steady", Value: 80, Requirements: map[string]float64{"budget": 1}},
		},
		Resources: map[string]float64{"budget": 1},
		Scenarios: []model.Scenario{
			{Name: "boom", Values: map[string]float64{"volatile": 100, "steady": 80}},
			{Name: "bust", Values: map[string]float64{"volatile": 60, "steady": 80}},
		},
		Criterion: model.WorstCase,
	}

	res, err := tb.Robust(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, model.StatusOptimal, res.Status)
	require.Equal(t, []string{"steady"}, res.Selected)
	require.InDelta(t, 80, res.Metrics.Worst, 1e-9)
	require.InDelta(t, 80, res.Metrics.Expected, 1e-9)
	require.InDelta(t, 1.0, res.Metrics.MeetingThreshold, 1e-9)
	require.GreaterOrEqual(t, res.Candidates, 2)
	require.Len(t, res.Outcomes, 2)
}

func TestRobustBestAveragePrefersHighMean(t *testing.T) {
	tb := testToolbox(bruteForce{})
	req := &model.RobustRequest{
		Items: []model.Item{
			{Name: "volatile", Value: 90, Requirements: map[string]float64{"budget": 1}},
			{Name: "steady", Value: 70, Requirements: map[string]float64{"budget": 1}},
		},
		Resources: map[string]float64{"budget": 1},
		Scenarios: []model.Scenario{
			{Name: "boom", Values: map[string]float64{"volatile": 120, "steady": 70}},
			{Name: "bust", Values: map[string]float64{"volatile": 60, "steady": 70}},
		},
	}

	res, err := tb.Robust(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, model.BestAverage, res.Criterion)
	require.Equal(t, []string{"volatile"}, res.Selected)
	require.InDelta(t, 90, res.Metrics.Expected, 1e-9)
	require.InDelta(t, 60, res.Metrics.Worst, 1e-9)
	require.InDelta(t, 120, res.Metrics.Best, 1e-9)
}

func TestRobustScenariosFromMonteCarlo(t *testing.T) {
	tb := testToolbox(bruteForce{})
	req := &model.RobustRequest{
		Items: []model.Item{
			{Name: "a", Value: 10, Requirements: map[string]float64{"budget": 1}},
		},
		Resources: map[string]float64{"budget": 1},
		MonteCarlo: &model.MCIntegration{
			Mode: model.MCScenarios,
			Output: model.MCOutput{
				Scenarios: []map[string]float64{
					{"a": 8},
					{"a": 12},
				},
			},
		},
	}

	res, err := tb.Robust(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, res.Selected)
	require.Len(t, res.Outcomes, 2)
	require.InDelta(t, 10, res.Metrics.Expected, 1e-9)
}

func TestRobustInfeasibleWithoutCapacity(t *testing.T) {
	tb := testToolbox(bruteForce{})
	req := &model.RobustRequest{
		Items: []model.Item{
			{Name: "a", Value: 10, Requirements: map[string]float64{"budget": 5}},
		},
		Resources: map[string]float64{"budget": 1},
		Scenarios: []model.Scenario{
			{Name: "only", Values: map[string]float64{"a": 10}},
		},
		Constraints: []model.Constraint{
			{Kind: model.ConstraintDisjunctive, Items: []string{"a"}, Count: intOf(1)},
		},
	}

	res, err := tb.Robust(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, model.StatusInfeasible, res.Status)
	require.NotEmpty(t, res.Message)
}

func TestRobustMetricsPercentiles(t *testing.T) {
	scenarios := []model.Scenario{
		{Name: "s1", Probability: 0.25},
		{Name: "s2", Probability: 0.25},
		{Name: "s3", Probability: 0.25},
		{Name: "s4", Probability: 0.25},
	}
	outcomes := []model.ScenarioOutcome{
		{Scenario: "s1", Value: 10},
		{Scenario: "s2", Value: 20},
		{Scenario: "s3", Value: 30},
		{Scenario: "s4", Value: 40},
	}

	m := robustMetrics(scenarios, outcomes, nil)
	require.InDelta(t, 25, m.Expected, 1e-9)
	require.InDelta(t, 10, m.Worst, 1e-9)
	require.InDelta(t, 40, m.Best, 1e-9)
	require.InDelta(t, 10, m.Percentiles["p10"], 1e-9)
	require.InDelta(t, 40, m.Percentiles["p90"], 1e-9)
	require.Greater(t, m.StdDev, 0.0)
	// default threshold is 0.9*expected = 22.5; two of four outcomes qualify
	require.InDelta(t, 0.5, m.MeetingThreshold, 1e-9)
}
