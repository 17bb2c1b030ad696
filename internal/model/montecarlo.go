package model

import "fmt"

// MCMode tags how upstream simulation output is folded into a problem.
type MCMode string

const (
	MCPercentile MCMode = "percentile"
	MCExpected   MCMode = "expected"
	MCScenarios  MCMode = "scenarios"
)

// MCOutput is the relevant slice of an upstream Monte Carlo run.
type MCOutput struct {
	// Percentiles maps "p10".."p90" to per-name values.
	Percentiles map[string]map[string]float64 `json:"percentiles,omitempty"`
	Expected    map[string]float64            `json:"expected_outcome,omitempty"`
	Scenarios   []map[string]float64          `json:"scenarios,omitempty"`
}

// MCIntegration consumes upstream Monte Carlo output as problem parameters.
type MCIntegration struct {
	Mode       MCMode   `json:"mode" validate:"required"`
	Percentile int      `json:"percentile,omitempty"`
	Output     MCOutput `json:"simulation_output"`
}

// ParameterValues resolves the integration block to one concrete value per
// named parameter, per the mode tag. The expected mode falls back to the
// median percentile when no explicit expected outcome is present. The
// scenarios mode is resolved by the robust tool, not here.
func (m *MCIntegration) ParameterValues() (map[string]float64, error) {
	switch m.Mode {
	case MCPercentile:
		p := m.Percentile
		if p == 0 {
			p = 50
		}
		key := fmt.Sprintf("p%d", p)
		vals, ok := m.Output.Percentiles[key]
		if !ok {
			return nil, &ValidationError{
				Field:   "monte_carlo_integration.percentile",
				Message: fmt.Sprintf("simulation output has no %q percentile", key),
			}
		}
		return vals, nil
	case MCExpected:
		if len(m.Output.Expected) > 0 {
			return m.Output.Expected, nil
		}
		if vals, ok := m.Output.Percentiles["p50"]; ok {
			return vals, nil
		}
		return nil, &ValidationError{
			Field:   "monte_carlo_integration.simulation_output",
			Message: "expected mode requires expected_outcome or a p50 percentile",
		}
	case MCScenarios:
		return nil, &ValidationError{
			Field:   "monte_carlo_integration.mode",
			Message: "scenarios mode is only supported by the robust tool",
		}
	default:
		return nil, &ValidationError{
			Field:   "monte_carlo_integration.mode",
			Message: fmt.Sprintf("unknown mode %q", m.Mode),
		}
	}
}

// ScenarioSet converts scenarios-mode simulation output into equiprobable
// value scenarios.
func (m *MCIntegration) ScenarioSet() ([]Scenario, error) {
	if m.Mode != MCScenarios {
		return nil, &ValidationError{
			Field:   "monte_carlo_integration.mode",
			Message: "scenario extraction requires mode=scenarios",
		}
	}
	if len(m.Output.Scenarios) == 0 {
		return nil, &ValidationError{
			Field:   "monte_carlo_integration.simulation_output.scenarios",
			Message: "scenarios mode requires at least one scenario",
		}
	}
	p := 1.0 / float64(len(m.Output.Scenarios))
	out := make([]Scenario, len(m.Output.Scenarios))
	for i, vals := range m.Output.Scenarios {
		out[i] = Scenario{
			Name:        fmt.Sprintf("mc_%d", i),
			Probability: p,
			Values:      vals,
		}
	}
	return out, nil
}

// MCAssumption describes one input distribution recommended for downstream
// validation of the solution.
type MCAssumption struct {
	Name         string             `json:"name"`
	Distribution string             `json:"distribution"`
	Params       map[string]float64 `json:"params"`
}

// MCParams carries the recommended downstream validation settings.
type MCParams struct {
	SuccessThreshold float64 `json:"success_criteria_threshold"`
	NumSimulations   int     `json:"num_simulations"`
}

// MCCompatible is the boundary-contract block every tool emits so a
// downstream simulation step can stress-test the returned solution.
type MCCompatible struct {
	DecisionVariables   map[string]float64 `json:"decision_variables"`
	Assumptions         []MCAssumption     `json:"assumptions"`
	OutcomeFunction     string             `json:"outcome_function"`
	RecommendedNextTool string             `json:"recommended_next_tool"`
	RecommendedParams   MCParams           `json:"recommended_params"`
}
