package tools

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/optikit/optikit/internal/model"
	"github.com/optikit/optikit/internal/solver"
)

// robustSeed keeps the perturbed candidate generation reproducible.
const robustSeed = 7

// Robust searches for an allocation that holds up across value scenarios.
// It generates a small pool of candidate selections (mean-scenario optimum,
// worst-scenario optimum, and randomized perturbations of the mean), scores
// every candidate under every scenario, and keeps the winner under the
// requested criterion.
func (tb *Toolbox) Robust(ctx context.Context, req *model.RobustRequest) (*model.RobustResult, error) {
	const tool = "robust_allocation"
	if req.MonteCarlo != nil && req.MonteCarlo.Mode == model.MCScenarios && len(req.Scenarios) == 0 {
		scenarios, err := req.MonteCarlo.ScenarioSet()
		if err != nil {
			return nil, err
		}
		req.Scenarios = scenarios
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	criterion := req.Criterion
	if criterion == "" {
		criterion = model.BestAverage
	}

	mean := scenarioMeans(req.Items, req.Scenarios)
	worst := scenarioWorst(req.Items, req.Scenarios)

	rng := rand.New(rand.NewSource(robustSeed))
	valueSets := [][]float64{mean, worst}
	for i := 0; i < 3; i++ {
		perturbed := make([]float64, len(mean))
		for j, v := range mean {
			perturbed[j] = v * (0.7 + 0.6*rng.Float64())
		}
		valueSets = append(valueSets, perturbed)
	}

	var (
		best        map[string]float64
		bestScore   float64
		bestSolTime float64
		seen        = map[string]bool{}
		evaluated   int
	)
	for _, values := range valueSets {
		items := make([]model.Item, len(req.Items))
		copy(items, req.Items)
		for j := range items {
			items[j].Value = values[j]
		}
		m, err := selectionModel(tool, items, req.Resources, &model.ObjectiveSpec{Sense: model.Maximize}, req.Constraints)
		if err != nil {
			return nil, err
		}
		sol, err := tb.reg.MILP.Solve(ctx, m, solver.Options{TimeLimit: req.Options.TimeLimit, Verbose: req.Options.Verbose})
		if err != nil {
			return &model.RobustResult{Summary: errorSummary(tool, err)}, nil
		}
		bestSolTime += sol.SolveTime.Seconds()
		if sol.Status != solver.StatusOptimal && sol.Status != solver.StatusFeasible {
			continue
		}
		key := selectionKey(req.Items, sol.Values)
		if seen[key] {
			continue
		}
		seen[key] = true
		evaluated++

		score := tb.scoreCandidate(req, sol.Values, criterion)
		if best == nil || score > bestScore {
			best, bestScore = sol.Values, score
		}
	}

	if best == nil {
		return &model.RobustResult{
			Summary: model.Summary{
				Tool:    tool,
				Solver:  tb.reg.MILP.Name(),
				Status:  model.StatusInfeasible,
				Message: "no candidate allocation is feasible under the given resources",
			},
			Criterion: criterion,
		}, nil
	}

	outcomes := scenarioOutcomes(req.Items, req.Scenarios, best)
	metrics := robustMetrics(req.Scenarios, outcomes, req.Threshold)

	res := &model.RobustResult{
		Summary: model.Summary{
			Tool:             tool,
			Solver:           tb.reg.MILP.Name(),
			Status:           model.StatusOptimal,
			Solution:         best,
			SolveTimeSeconds: bestSolTime,
		},
		Criterion:  criterion,
		Metrics:    metrics,
		Outcomes:   outcomes,
		Candidates: evaluated,
	}
	obj := metrics.Expected
	res.Objective = &obj
	for _, it := range req.Items {
		if best[it.Name] > 0.5 {
			res.Selected = append(res.Selected, it.Name)
		}
	}
	sort.Strings(res.Selected)
	res.ResourceUsage = resourceUsage(req.Items, req.Resources, best)
	res.MonteCarlo = mcBlock(tool, best, metrics.Expected,
		"expected value of the selected items across scenarios")
	return res, nil
}

func (tb *Toolbox) scoreCandidate(req *model.RobustRequest, chosen map[string]float64, criterion model.RobustCriterion) float64 {
	outcomes := scenarioOutcomes(req.Items, req.Scenarios, chosen)
	vals := make([]float64, len(outcomes))
	probs := make([]float64, len(outcomes))
	for i, o := range outcomes {
		vals[i] = o.Value
		probs[i] = req.Scenarios[i].Probability
	}
	switch criterion {
	case model.WorstCase:
		min := vals[0]
		for _, v := range vals[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case model.PercentileFloor:
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		return stat.Quantile(req.Percentile/100, stat.Empirical, sorted, nil)
	default:
		return stat.Mean(vals, probs)
	}
}

func scenarioOutcomes(items []model.Item, scenarios []model.Scenario, chosen map[string]float64) []model.ScenarioOutcome {
	out := make([]model.ScenarioOutcome, len(scenarios))
	for i, s := range scenarios {
		v := 0.0
		for _, it := range items {
			if chosen[it.Name] > 0.5 {
				if sv, ok := s.Values[it.Name]; ok {
					v += sv
				} else {
					v += it.Value
				}
			}
		}
		out[i] = model.ScenarioOutcome{Scenario: s.Name, Value: v}
	}
	return out
}

func robustMetrics(scenarios []model.Scenario, outcomes []model.ScenarioOutcome, threshold *float64) model.RobustMetrics {
	vals := make([]float64, len(outcomes))
	probs := make([]float64, len(outcomes))
	for i, o := range outcomes {
		vals[i] = o.Value
		probs[i] = scenarios[i].Probability
	}
	expected := stat.Mean(vals, probs)

	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	percentiles := make(map[string]float64, 5)
	for _, p := range []int{10, 25, 50, 75, 90} {
		percentiles[fmt.Sprintf("p%d", p)] = stat.Quantile(float64(p)/100, stat.Empirical, sorted, nil)
	}

	floor := 0.9 * expected
	if threshold != nil {
		floor = *threshold
	}
	meeting := 0
	for _, v := range vals {
		if v >= floor {
			meeting++
		}
	}

	m := model.RobustMetrics{
		Expected:         expected,
		Worst:            sorted[0],
		Best:             sorted[len(sorted)-1],
		Percentiles:      percentiles,
		MeetingThreshold: float64(meeting) / float64(len(vals)),
	}
	if len(vals) > 1 {
		m.StdDev = stat.StdDev(vals, probs)
	}
	return m
}

// selectionKey fingerprints a candidate selection for deduplication.
func selectionKey(items []model.Item, chosen map[string]float64) string {
	key := make([]byte, len(items))
	for i, it := range items {
		if chosen[it.Name] > 0.5 {
			key[i] = '1'
		} else {
			key[i] = '0'
		}
	}
	return string(key)
}

func scenarioMeans(items []model.Item, scenarios []model.Scenario) []float64 {
	means := make([]float64, len(items))
	for i, it := range items {
		total, weight := 0.0, 0.0
		for _, s := range scenarios {
			v, ok := s.Values[it.Name]
			if !ok {
				v = it.Value
			}
			total += s.Probability * v
			weight += s.Probability
		}
		if weight > 0 {
			means[i] = total / weight
		} else {
			means[i] = it.Value
		}
	}
	return means
}

func scenarioWorst(items []model.Item, scenarios []model.Scenario) []float64 {
	worst := make([]float64, len(items))
	for i, it := range items {
		min := it.Value
		first := true
		for _, s := range scenarios {
			v, ok := s.Values[it.Name]
			if !ok {
				v = it.Value
			}
			if first || v < min {
				min, first = v, false
			}
		}
		worst[i] = min
	}
	return worst
}
