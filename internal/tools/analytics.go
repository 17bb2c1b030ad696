package tools

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/optikit/optikit/internal/model"
	"github.com/optikit/optikit/internal/numeric"
	"github.com/optikit/optikit/internal/solver"
)

// summarize maps a raw adapter solution onto the shared result core.
func summarize(tool, solverName string, sol *solver.Solution) model.Summary {
	s := model.Summary{
		Tool:             tool,
		Solver:           solverName,
		Status:           model.Status(sol.Status),
		Solution:         sol.Values,
		Local:            sol.Local,
		SolveTimeSeconds: sol.SolveTime.Seconds(),
		Message:          sol.Detail,
	}
	if s.Solved() {
		obj := sol.Objective
		s.Objective = &obj
	}
	return s
}

// errorSummary is the structured form of an adapter failure; solver errors
// never cross the tool boundary as bare errors.
func errorSummary(tool string, err error) model.Summary {
	return model.Summary{
		Tool:    tool,
		Status:  model.StatusError,
		Message: err.Error(),
	}
}

// resourceUsage computes per-resource consumption of a selection.
func resourceUsage(items []model.Item, resources map[string]float64, chosen map[string]float64) map[string]model.ResourceUsage {
	usage := make(map[string]model.ResourceUsage, len(resources))
	for res, total := range resources {
		used := 0.0
		for _, it := range items {
			used += it.Requirements[res] * chosen[it.Name]
		}
		pct := 0.0
		if total > 0 {
			pct = 100 * used / total
		}
		usage[res] = model.ResourceUsage{Used: used, Total: total, UtilizationPct: pct}
	}
	return usage
}

// objectiveBreakdown evaluates each weighted function at the solution.
func objectiveBreakdown(funcs []model.WeightedFunction, chosen map[string]float64) map[string]model.FunctionValue {
	if len(funcs) == 0 {
		return nil
	}
	out := make(map[string]model.FunctionValue, len(funcs))
	for _, f := range funcs {
		v := 0.0
		for item, coef := range f.Items {
			v += coef * chosen[item]
		}
		out[f.Name] = model.FunctionValue{Value: v, Weight: f.Weight, WeightedValue: v * f.Weight}
	}
	return out
}

// mcStd is the tool-specific spread factor used for downstream validation
// assumptions.
var mcStd = map[string]float64{
	"optimize_allocation": 0.15,
	"robust_allocation":   0.15,
	"optimize_portfolio":  0.20,
	"optimize_schedule":   0.15,
	"optimize_network":    0.10,
	"pareto_frontier":     0.15,
	"stochastic_twostage": 0.10,
	"column_generation":   0.10,
	"execute":             0.10,
}

// mcBlock assembles the monte_carlo_compatible boundary payload: the chosen
// decisions, a normal-distribution assumption per decision, and the
// recommended downstream validation parameters.
func mcBlock(tool string, decisions map[string]float64, objective float64, outcome string) *model.MCCompatible {
	std := mcStd[tool]
	if std == 0 {
		std = 0.10
	}
	names := make([]string, 0, len(decisions))
	for name := range decisions {
		names = append(names, name)
	}
	sort.Strings(names)

	assumptions := make([]model.MCAssumption, 0, len(names))
	for _, name := range names {
		mean := decisions[name]
		assumptions = append(assumptions, model.MCAssumption{
			Name:         name,
			Distribution: "normal",
			Params: map[string]float64{
				"mean": mean,
				"std":  std * math.Abs(mean),
			},
		})
	}
	return &model.MCCompatible{
		DecisionVariables:   decisions,
		Assumptions:         assumptions,
		OutcomeFunction:     outcome,
		RecommendedNextTool: "validate_reasoning_confidence",
		RecommendedParams: model.MCParams{
			SuccessThreshold: 0.9 * objective,
			NumSimulations:   10000,
		},
	}
}

// bottleneckResources lists resources saturated at the solution.
func bottleneckResources(usage map[string]model.ResourceUsage) []string {
	var out []string
	for res, u := range usage {
		if u.Total > 0 && u.Used/u.Total >= numeric.Utilization {
			out = append(out, res)
		}
	}
	sort.Strings(out)
	return out
}

// oversizedItems names items whose single requirement already exceeds a
// resource capacity; they can never enter a feasible selection.
func oversizedItems(items []model.Item, resources map[string]float64) []string {
	var out []string
	for _, it := range items {
		for res, req := range it.Requirements {
			if cap, ok := resources[res]; ok && req > cap+numeric.Feasibility {
				out = append(out, it.Name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// exclusionMessage explains a zero-selection optimum.
func exclusionMessage(excluded []string) string {
	if len(excluded) == 0 {
		return "no item improves the objective within the available capacity"
	}
	return fmt.Sprintf("no feasible selection: requirement of %s exceeds total capacity on its own", strings.Join(excluded, ", "))
}
