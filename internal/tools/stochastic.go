package tools

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/optikit/optikit/internal/model"
	"github.com/optikit/optikit/internal/solver"
)

// Stochastic solves the extensive form of a two-stage program: one copy of
// the first-stage variables shared by every scenario, one copy of the
// second-stage variables per scenario, and a probability-weighted (or
// worst-case) objective. VSS and EVPI come from extra deterministic solves.
func (tb *Toolbox) Stochastic(ctx context.Context, req *model.StochasticRequest) (*model.StochasticResult, error) {
	const tool = "stochastic_twostage"
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.MonteCarlo != nil {
		vals, err := req.MonteCarlo.ParameterValues()
		if err != nil {
			return nil, err
		}
		clone := *req
		clone.SecondStage.Objective = make(map[string]float64, len(req.SecondStage.Objective))
		for name, coef := range req.SecondStage.Objective {
			if v, ok := vals[name]; ok {
				coef = v
			}
			clone.SecondStage.Objective[name] = coef
		}
		req = &clone
	}
	measure := req.RiskMeasure
	if measure == "" {
		measure = model.Expected
	}
	minimize := req.Sense != model.Maximize
	opts := solver.Options{TimeLimit: req.Options.TimeLimit, Verbose: req.Options.Verbose}

	m := extensiveForm(req, measure, minimize)
	backend, _, err := tb.reg.Dispatch(m, req.Options.Solver)
	if err != nil {
		return nil, err
	}
	sol, err := backend.Solve(ctx, m, opts)
	if err != nil {
		return &model.StochasticResult{Summary: errorSummary(tool, err)}, nil
	}
	res := &model.StochasticResult{Summary: summarize(tool, backend.Name(), sol)}
	if !res.Solved() {
		return res, nil
	}

	res.FirstStage = make(map[string]float64, len(req.FirstStage.Variables))
	for _, v := range req.FirstStage.Variables {
		res.FirstStage[v.Name] = sol.Values[v.Name]
	}

	res.ScenarioValues = make(map[string]float64, len(req.Scenarios))
	first := stageCost(req.FirstStage.Objective, sol.Values)
	worst := math.Inf(-1)
	if !minimize {
		worst = math.Inf(1)
	}
	expected := 0.0
	for idx, s := range req.Scenarios {
		second := scenarioCost(req, idx, sol.Values)
		total := first + second
		res.ScenarioValues[s.Name] = total
		expected += s.Probability * total
		if minimize && total > worst {
			worst = total
		}
		if !minimize && total < worst {
			worst = total
		}
	}
	res.ExpectedValue = expected
	res.WorstCaseValue = worst

	if req.ComputeVSS {
		if vss, err := tb.valueOfStochasticSolution(ctx, req, minimize, expected, opts); err == nil {
			res.VSS = vss
		} else {
			tb.log.Warn("vss computation failed", "error", err)
		}
	}
	if req.ComputeEVPI {
		if evpi, err := tb.expectedValueOfPerfectInfo(ctx, req, minimize, expected, opts); err == nil {
			res.EVPI = evpi
		} else {
			tb.log.Warn("evpi computation failed", "error", err)
		}
	}

	res.MonteCarlo = mcBlock(tool, res.FirstStage, expected,
		"expected total cost across scenarios for the chosen first-stage decisions")
	return res, nil
}

func scenarioVar(name string, idx int) string {
	return fmt.Sprintf("%s_s%d", name, idx)
}

// buildVar applies the LP bound conventions: missing lower bound is zero,
// missing upper bound is open.
func buildVar(spec model.VariableSpec, rename func(string) string) solver.Variable {
	v := solver.Variable{Name: rename(spec.Name), Lower: 0, Upper: math.Inf(1)}
	switch spec.Type {
	case "integer":
		v.Type = solver.Integer
	case "binary":
		v.Type = solver.Binary
	default:
		v.Type = solver.Continuous
	}
	if spec.Lower != nil {
		v.Lower = *spec.Lower
	}
	if spec.Upper != nil {
		v.Upper = *spec.Upper
	}
	return v
}

func stageRow(row model.LinearRow, name string, rename func(string) string, bound float64) solver.Constraint {
	terms := make([]solver.Term, 0, len(row.Coefficients))
	for varName, coef := range row.Coefficients {
		terms = append(terms, solver.Term{Var: rename(varName), Coef: coef})
	}
	switch row.Sense {
	case model.GreaterEq:
		return solver.GeRow(name, terms, bound)
	case model.Equal:
		return solver.EqRow(name, terms, bound)
	default:
		return solver.LeRow(name, terms, bound)
	}
}

// extensiveForm assembles the combined model across all scenarios.
func extensiveForm(req *model.StochasticRequest, measure model.RiskMeasure, minimize bool) *solver.Model {
	m := &solver.Model{Name: "stochastic_extensive"}
	ident := func(s string) string { return s }

	for _, spec := range req.FirstStage.Variables {
		m.Variables = append(m.Variables, buildVar(spec, ident))
	}
	m.Objective.Maximize = !minimize
	for name, coef := range req.FirstStage.Objective {
		m.Objective.Terms = append(m.Objective.Terms, solver.Term{Var: name, Coef: coef})
	}
	for i, row := range req.FirstStage.Constraints {
		name := row.Name
		if name == "" {
			name = fmt.Sprintf("first_%d", i)
		}
		m.Constraints = append(m.Constraints, stageRow(row, name, ident, row.Bound))
	}

	secondNames := make(map[string]bool, len(req.SecondStage.Variables))
	for _, spec := range req.SecondStage.Variables {
		secondNames[spec.Name] = true
	}

	for idx := range req.Scenarios {
		s := &req.Scenarios[idx]
		rename := func(name string) string {
			if secondNames[name] {
				return scenarioVar(name, idx)
			}
			return name
		}
		for _, spec := range req.SecondStage.Variables {
			m.Variables = append(m.Variables, buildVar(spec, rename))
		}
		for i, row := range req.SecondStage.Constraints {
			name := row.Name
			if name == "" {
				name = fmt.Sprintf("second_%d", i)
			}
			bound := row.Bound
			if override, ok := s.Values["rhs:"+row.Name]; ok {
				bound = override
			}
			m.Constraints = append(m.Constraints, stageRow(row, fmt.Sprintf("%s_s%d", name, idx), rename, bound))
		}
		if measure == model.Expected {
			for name, coef := range req.SecondStage.Objective {
				c := coef
				if override, ok := s.Values[name]; ok {
					c = override
				}
				m.Objective.Terms = append(m.Objective.Terms, solver.Term{Var: scenarioVar(name, idx), Coef: s.Probability * c})
			}
		}
	}

	if measure == model.WorstScenario {
		// epigraph variable bounding every scenario's second-stage cost
		const wv = "worst_stage_cost"
		m.Variables = append(m.Variables, solver.Variable{Name: wv, Type: solver.Continuous, Lower: math.Inf(-1), Upper: math.Inf(1)})
		m.Objective.Terms = append(m.Objective.Terms, solver.Term{Var: wv, Coef: 1})
		for idx := range req.Scenarios {
			s := &req.Scenarios[idx]
			terms := []solver.Term{{Var: wv, Coef: 1}}
			for name, coef := range req.SecondStage.Objective {
				c := coef
				if override, ok := s.Values[name]; ok {
					c = override
				}
				terms = append(terms, solver.Term{Var: scenarioVar(name, idx), Coef: -c})
			}
			name := fmt.Sprintf("worst_s%d", idx)
			if minimize {
				m.Constraints = append(m.Constraints, solver.GeRow(name, terms, 0))
			} else {
				m.Constraints = append(m.Constraints, solver.LeRow(name, terms, 0))
			}
		}
	}
	return m
}

func stageCost(objective map[string]float64, values map[string]float64) float64 {
	total := 0.0
	for name, coef := range objective {
		total += coef * values[name]
	}
	return total
}

func scenarioCost(req *model.StochasticRequest, idx int, values map[string]float64) float64 {
	s := &req.Scenarios[idx]
	total := 0.0
	for name, coef := range req.SecondStage.Objective {
		c := coef
		if override, ok := s.Values[name]; ok {
			c = override
		}
		total += c * values[scenarioVar(name, idx)]
	}
	return total
}

// meanScenario collapses the scenario set into one expectation scenario.
func meanScenario(req *model.StochasticRequest) model.Scenario {
	values := make(map[string]float64)
	for _, s := range req.Scenarios {
		for key, v := range s.Values {
			values[key] += s.Probability * v
		}
	}
	// keys absent from a scenario contribute the template value there
	for key := range values {
		missing := 0.0
		for _, s := range req.Scenarios {
			if _, ok := s.Values[key]; !ok {
				missing += s.Probability
			}
		}
		if missing > 0 {
			base := 0.0
			if name, ok := strings.CutPrefix(key, "rhs:"); ok {
				for _, row := range req.SecondStage.Constraints {
					if row.Name == name {
						base = row.Bound
					}
				}
			} else {
				base = req.SecondStage.Objective[key]
			}
			values[key] += missing * base
		}
	}
	return model.Scenario{Name: "mean", Probability: 1, Values: values}
}

// valueOfStochasticSolution solves the mean-scenario deterministic problem,
// fixes the first stage at that optimum, re-solves the extensive form, and
// reports the gap against the true stochastic optimum.
func (tb *Toolbox) valueOfStochasticSolution(ctx context.Context, req *model.StochasticRequest, minimize bool, spValue float64, opts solver.Options) (*float64, error) {
	det := *req
	det.Scenarios = []model.Scenario{meanScenario(req)}
	detModel := extensiveForm(&det, model.Expected, minimize)
	detSol, err := tb.reg.MILP.Solve(ctx, detModel, opts)
	if err != nil {
		return nil, err
	}
	if detSol.Status != solver.StatusOptimal {
		return nil, fmt.Errorf("mean-scenario problem not optimal: %s", detSol.Status)
	}

	// fix the first stage with equality rows so binary bounds stay intact
	eevModel := extensiveForm(req, model.Expected, minimize)
	for _, spec := range req.FirstStage.Variables {
		eevModel.Constraints = append(eevModel.Constraints, solver.EqRow(
			"fix_"+spec.Name,
			[]solver.Term{{Var: spec.Name, Coef: 1}},
			detSol.Values[spec.Name],
		))
	}
	eevSol, err := tb.reg.MILP.Solve(ctx, eevModel, opts)
	if err != nil {
		return nil, err
	}
	if eevSol.Status != solver.StatusOptimal && eevSol.Status != solver.StatusFeasible {
		// the deterministic first stage may be infeasible under recourse;
		// the stochastic solution is then worth the full horizon
		inf := math.Inf(1)
		return &inf, nil
	}
	vss := eevSol.Objective - spValue
	if !minimize {
		vss = spValue - eevSol.Objective
	}
	return &vss, nil
}

// expectedValueOfPerfectInfo solves the wait-and-see problem per scenario and
// reports the gap between the stochastic optimum and the expected
// wait-and-see value.
func (tb *Toolbox) expectedValueOfPerfectInfo(ctx context.Context, req *model.StochasticRequest, minimize bool, spValue float64, opts solver.Options) (*float64, error) {
	ws := 0.0
	for _, s := range req.Scenarios {
		one := *req
		single := s
		single.Probability = 1
		one.Scenarios = []model.Scenario{single}
		m := extensiveForm(&one, model.Expected, minimize)
		sol, err := tb.reg.MILP.Solve(ctx, m, opts)
		if err != nil {
			return nil, err
		}
		if sol.Status != solver.StatusOptimal {
			return nil, fmt.Errorf("wait-and-see solve for %q not optimal: %s", s.Name, sol.Status)
		}
		ws += s.Probability * sol.Objective
	}
	evpi := spValue - ws
	if !minimize {
		evpi = ws - spValue
	}
	return &evpi, nil
}
