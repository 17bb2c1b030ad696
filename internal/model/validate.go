package model

import (
	"math"
	"strconv"
	"strings"

	"github.com/optikit/optikit/internal/numeric"
)

// Validation order follows the boundary contract: required fields, name
// uniqueness, cross-reference resolution, numeric domains, weight sums.
// Everything fails fast, before any model construction.

func finite(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Invalid(field, "must be a finite number, got %v", v)
	}
	return nil
}

func itemSet(items []Item) (map[string]bool, error) {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		if it.Name == "" {
			return nil, Invalid("items", "item name must not be empty")
		}
		if set[it.Name] {
			return nil, Invalid("items", "duplicate item name %q", it.Name)
		}
		set[it.Name] = true
	}
	return set, nil
}

func validateItemUniverse(items []Item, resources map[string]float64) (map[string]bool, error) {
	set, err := itemSet(items)
	if err != nil {
		return nil, err
	}
	for name, cap := range resources {
		if err := finite("resources."+name, cap); err != nil {
			return nil, err
		}
		if cap < 0 {
			return nil, Invalid("resources."+name, "capacity must be >= 0, got %v", cap)
		}
	}
	for _, it := range items {
		if err := finite("items."+it.Name+".value", it.Value); err != nil {
			return nil, err
		}
		for res, req := range it.Requirements {
			if _, ok := resources[res]; !ok {
				return nil, Invalid("items."+it.Name, "requirement references unknown resource %q", res)
			}
			if err := finite("items."+it.Name+".resource_requirements."+res, req); err != nil {
				return nil, err
			}
			if req < 0 {
				return nil, Invalid("items."+it.Name, "requirement for %q must be >= 0", res)
			}
		}
	}
	return set, nil
}

func validateObjective(o *ObjectiveSpec, universe map[string]bool) error {
	if o.IsMulti() {
		if len(o.Items) > 0 {
			return Invalid("objective", "provide either a single objective or functions, not both")
		}
		if len(o.Functions) < 2 {
			return Invalid("objective.functions", "multi-objective requires at least two functions")
		}
		sum := 0.0
		for _, f := range o.Functions {
			if f.Name == "" {
				return Invalid("objective.functions", "function name must not be empty")
			}
			if f.Weight < 0 || f.Weight > 1 {
				return Invalid("objective.functions."+f.Name, "weight %v outside [0,1]", f.Weight)
			}
			sum += f.Weight
			for item := range f.Items {
				if !universe[item] {
					return Invalid("objective.functions."+f.Name, "references unknown item %q", item)
				}
			}
		}
		if !numeric.Eq(sum, 1.0, numeric.WeightSum) {
			return Invalid("objective.functions", "weights sum to %v, must be 1.0 within %v", sum, numeric.WeightSum)
		}
		return nil
	}
	if o.Sense != Maximize && o.Sense != Minimize {
		return Invalid("objective.sense", "must be %q or %q", Maximize, Minimize)
	}
	for item := range o.Items {
		if !universe[item] {
			return Invalid("objective.items", "references unknown item %q", item)
		}
	}
	return nil
}

func validateSelectionConstraints(cs []Constraint, universe map[string]bool) error {
	for i, c := range cs {
		field := constraintField(i, c)
		switch c.Kind {
		case ConstraintLinear:
			if len(c.Coefficients) == 0 {
				return Invalid(field, "linear constraint requires coefficients")
			}
			for item := range c.Coefficients {
				if !universe[item] {
					return Invalid(field, "references unknown item %q", item)
				}
			}
			if c.Sense != LessEq && c.Sense != GreaterEq && c.Sense != Equal {
				return Invalid(field, "sense must be le, ge, or eq")
			}
			if err := finite(field+".bound", c.Bound); err != nil {
				return err
			}
		case ConstraintConditional:
			if !universe[c.IfItem] {
				return Invalid(field, "if_item %q not in item universe", c.IfItem)
			}
			if !universe[c.ThenItem] {
				return Invalid(field, "then_item %q not in item universe", c.ThenItem)
			}
		case ConstraintDisjunctive, ConstraintMutex:
			if len(c.Items) == 0 {
				return Invalid(field, "requires a non-empty item list")
			}
			for _, item := range c.Items {
				if !universe[item] {
					return Invalid(field, "references unknown item %q", item)
				}
			}
			if c.Count != nil && (*c.Count < 0 || *c.Count > len(c.Items)) {
				return Invalid(field, "count %d outside [0, %d]", *c.Count, len(c.Items))
			}
		default:
			return Invalid(field, "constraint kind %q not valid for selection problems", c.Kind)
		}
	}
	return nil
}

func constraintField(i int, c Constraint) string {
	if c.Name != "" {
		return "constraints." + c.Name
	}
	return "constraints[" + strconv.Itoa(i) + "]"
}

// Validate checks an allocation request end to end.
func (r *AllocationRequest) Validate() error {
	universe, err := validateItemUniverse(r.Items, r.Resources)
	if err != nil {
		return err
	}
	if r.Objective.Sense == "" && !r.Objective.IsMulti() {
		// default objective maximizes declared item values
		r.Objective.Sense = Maximize
	}
	if err := validateObjective(&r.Objective, universe); err != nil {
		return err
	}
	return validateSelectionConstraints(r.Constraints, universe)
}

func validateScenarios(scenarios []Scenario, field string) error {
	seen := make(map[string]bool, len(scenarios))
	sum := 0.0
	explicit := false
	for i := range scenarios {
		s := &scenarios[i]
		if s.Name == "" {
			return Invalid(field, "scenario name must not be empty")
		}
		if seen[s.Name] {
			return Invalid(field, "duplicate scenario name %q", s.Name)
		}
		seen[s.Name] = true
		if s.Probability < 0 {
			return Invalid(field+"."+s.Name, "probability must be >= 0")
		}
		if s.Probability > 0 {
			explicit = true
		}
		sum += s.Probability
		for k, v := range s.Values {
			if err := finite(field+"."+s.Name+".values."+k, v); err != nil {
				return err
			}
		}
	}
	if explicit && !numeric.Eq(sum, 1.0, numeric.WeightSum) {
		return Invalid(field, "scenario probabilities sum to %v, must be 1.0 within %v", sum, numeric.WeightSum)
	}
	if !explicit {
		p := 1.0 / float64(len(scenarios))
		for i := range scenarios {
			scenarios[i].Probability = p
		}
	}
	return nil
}

// Validate checks a robust allocation request.
func (r *RobustRequest) Validate() error {
	universe, err := validateItemUniverse(r.Items, r.Resources)
	if err != nil {
		return err
	}
	if err := validateSelectionConstraints(r.Constraints, universe); err != nil {
		return err
	}
	if err := validateScenarios(r.Scenarios, "scenarios"); err != nil {
		return err
	}
	for i := range r.Scenarios {
		for item := range r.Scenarios[i].Values {
			if !universe[item] {
				return Invalid("scenarios."+r.Scenarios[i].Name, "references unknown item %q", item)
			}
		}
	}
	switch r.Criterion {
	case "", BestAverage, WorstCase:
	case PercentileFloor:
		if r.Percentile <= 0 || r.Percentile >= 100 {
			return Invalid("percentile", "must be in (0, 100), got %v", r.Percentile)
		}
	default:
		return Invalid("criterion", "unknown criterion %q", r.Criterion)
	}
	return nil
}

// Validate checks a portfolio request, including covariance shape and
// symmetry.
func (r *PortfolioRequest) Validate() error {
	n := len(r.Assets)
	if n < 2 {
		return Invalid("assets", "portfolio requires at least two assets")
	}
	seen := make(map[string]bool, n)
	for _, a := range r.Assets {
		if a.Name == "" {
			return Invalid("assets", "asset name must not be empty")
		}
		if seen[a.Name] {
			return Invalid("assets", "duplicate asset name %q", a.Name)
		}
		seen[a.Name] = true
		if err := finite("assets."+a.Name+".expected_return", a.ExpectedReturn); err != nil {
			return err
		}
	}
	if len(r.Covariance) != n {
		return Invalid("covariance_matrix", "has %d rows, asset count is %d", len(r.Covariance), n)
	}
	for i, row := range r.Covariance {
		if len(row) != n {
			return Invalid("covariance_matrix", "row %d has %d columns, asset count is %d", i, len(row), n)
		}
		for j, v := range row {
			if err := finite("covariance_matrix", v); err != nil {
				return err
			}
			if j < i && !numeric.Eq(v, r.Covariance[j][i], numeric.Feasibility) {
				return Invalid("covariance_matrix", "not symmetric at (%d,%d)", i, j)
			}
		}
	}
	for i, c := range r.Constraints {
		field := constraintField(i, c)
		if c.Kind != ConstraintQuadraticRisk {
			return Invalid(field, "constraint kind %q not valid for portfolios", c.Kind)
		}
		if err := finite(field+".max_risk", c.MaxRisk); err != nil {
			return err
		}
		if c.MaxRisk <= 0 {
			return Invalid(field, "max_risk must be positive")
		}
		// the tightest ceiling wins, including an explicit top-level one
		if r.MaxRisk == nil || c.MaxRisk < *r.MaxRisk {
			ceiling := c.MaxRisk
			r.MaxRisk = &ceiling
		}
	}
	switch r.Mode {
	case "", MaxSharpe, MinVariance, MaxReturn:
	default:
		return Invalid("mode", "unknown mode %q", r.Mode)
	}
	if r.Mode == MinVariance && r.TargetReturn == nil {
		// allowed: unconstrained minimum-variance portfolio
	}
	if r.Mode == MaxReturn && r.MaxRisk == nil {
		return Invalid("max_risk", "max_return mode requires a max_risk ceiling")
	}
	lo, hi := r.weightBounds()
	if lo > hi {
		return Invalid("min_weight", "min_weight %v exceeds max_weight %v", lo, hi)
	}
	if float64(n)*hi < 1.0-numeric.Feasibility {
		return Invalid("max_weight", "bounds make the weight simplex empty")
	}
	return nil
}

func (r *PortfolioRequest) weightBounds() (lo, hi float64) {
	lo, hi = r.MinWeight, r.MaxWeight
	if hi == 0 {
		hi = 1.0
	}
	if r.AllowShort && r.MinWeight == 0 {
		lo = -1.0
	}
	return lo, hi
}

// Validate checks a scheduling request, including dependency cycles.
func (r *ScheduleRequest) Validate() error {
	if r.Horizon <= 0 {
		return Invalid("time_horizon", "must be a positive integer")
	}
	tasks := make(map[string]*Task, len(r.Tasks))
	for i := range r.Tasks {
		t := &r.Tasks[i]
		if t.Name == "" {
			return Invalid("tasks", "task name must not be empty")
		}
		if _, dup := tasks[t.Name]; dup {
			return Invalid("tasks", "duplicate task name %q", t.Name)
		}
		if t.Duration <= 0 {
			return Invalid("tasks."+t.Name+".duration", "must be a positive integer")
		}
		if t.Duration > r.Horizon {
			return Invalid("tasks."+t.Name+".duration", "duration %d exceeds time horizon %d", t.Duration, r.Horizon)
		}
		tasks[t.Name] = t
	}
	for _, t := range r.Tasks {
		for _, dep := range t.Dependencies {
			if _, ok := tasks[dep]; !ok {
				return Invalid("tasks."+t.Name+".dependencies", "unknown task %q", dep)
			}
		}
		for res, req := range t.Requirements {
			if _, ok := r.Resources[res]; !ok {
				return Invalid("tasks."+t.Name+".resource_requirements", "unknown resource %q", res)
			}
			if req < 0 {
				return Invalid("tasks."+t.Name+".resource_requirements."+res, "must be >= 0")
			}
		}
	}
	if cycle := findCycle(r.Tasks); cycle != "" {
		return Invalid("tasks", "dependency cycle involving task %q", cycle)
	}
	for i, c := range r.Constraints {
		field := constraintField(i, c)
		switch c.Kind {
		case ConstraintDeadline, ConstraintRelease:
			if _, ok := tasks[c.Task]; !ok {
				return Invalid(field, "references unknown task %q", c.Task)
			}
			if c.Time < 0 || c.Time > float64(r.Horizon) {
				return Invalid(field, "time %v outside [0, %d]", c.Time, r.Horizon)
			}
		case ConstraintParallelLimit:
			if c.Limit <= 0 {
				return Invalid(field, "limit must be positive")
			}
		default:
			return Invalid(field, "constraint kind %q not valid for scheduling", c.Kind)
		}
	}
	switch r.Objective {
	case "", MinMakespan, MaxValue:
	default:
		return Invalid("objective", "unknown objective %q", r.Objective)
	}
	return nil
}

// findCycle runs a three-color DFS over the dependency graph and returns a
// task on a cycle, or "".
func findCycle(tasks []Task) string {
	deps := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		deps[t.Name] = t.Dependencies
	}
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))
	var visit func(string) string
	visit = func(name string) string {
		color[name] = gray
		for _, dep := range deps[name] {
			switch color[dep] {
			case gray:
				return dep
			case white:
				if c := visit(dep); c != "" {
					return c
				}
			}
		}
		color[name] = black
		return ""
	}
	for _, t := range tasks {
		if color[t.Name] == white {
			if c := visit(t.Name); c != "" {
				return c
			}
		}
	}
	return ""
}

// Validate checks a network request. Total supply and demand are deliberately
// not required to match; imbalance surfaces as infeasibility from the solver.
func (r *NetworkRequest) Validate() error {
	nodes := make(map[string]*Node, len(r.Nodes))
	for i := range r.Nodes {
		n := &r.Nodes[i]
		if n.Name == "" {
			return Invalid("nodes", "node name must not be empty")
		}
		if _, dup := nodes[n.Name]; dup {
			return Invalid("nodes", "duplicate node name %q", n.Name)
		}
		if n.Supply < 0 || n.Demand < 0 {
			return Invalid("nodes."+n.Name, "supply and demand must be >= 0")
		}
		if n.Supply > 0 && n.Demand > 0 {
			return Invalid("nodes."+n.Name, "node cannot both supply and demand")
		}
		nodes[n.Name] = n
	}
	for i, e := range r.Edges {
		if _, ok := nodes[e.From]; !ok {
			return Invalid("edges", "edge %d references unknown node %q", i, e.From)
		}
		if _, ok := nodes[e.To]; !ok {
			return Invalid("edges", "edge %d references unknown node %q", i, e.To)
		}
		if e.From == e.To {
			return Invalid("edges", "edge %d is a self-loop on %q", i, e.From)
		}
		if e.Capacity < 0 {
			return Invalid("edges", "edge %d capacity must be >= 0", i)
		}
		if err := finite("edges.cost", e.Cost); err != nil {
			return err
		}
	}
	switch r.FlowType {
	case MinCostFlow, Assignment:
	case MaxFlow:
		src, snk := r.Source, r.Sink
		if src == "" || snk == "" {
			// fall back to the unique supply/demand nodes
			for name, n := range nodes {
				if n.Supply > 0 && src == "" {
					src = name
				}
				if n.Demand > 0 && snk == "" {
					snk = name
				}
			}
		}
		if src == "" || snk == "" {
			return Invalid("flow_type", "max_flow requires a source and a sink")
		}
		if _, ok := nodes[src]; !ok {
			return Invalid("source", "unknown node %q", src)
		}
		if _, ok := nodes[snk]; !ok {
			return Invalid("sink", "unknown node %q", snk)
		}
		r.Source, r.Sink = src, snk
	default:
		return Invalid("flow_type", "unknown flow type %q", r.FlowType)
	}
	for i, c := range r.SideConstraints {
		if c.Kind != ConstraintLinear {
			return Invalid(constraintField(i, c), "only linear side constraints are supported")
		}
	}
	return nil
}

// Validate checks a Pareto request. Objective weights here are sweep seeds
// and are not required to sum to 1; per-point sweep weights always do.
func (r *ParetoRequest) Validate() error {
	universe, err := validateItemUniverse(r.Items, r.Resources)
	if err != nil {
		return err
	}
	if len(r.Objectives) < 2 {
		return Invalid("objectives", "pareto analysis requires at least two objectives")
	}
	seen := make(map[string]bool, len(r.Objectives))
	for _, f := range r.Objectives {
		if f.Name == "" {
			return Invalid("objectives", "objective name must not be empty")
		}
		if seen[f.Name] {
			return Invalid("objectives", "duplicate objective name %q", f.Name)
		}
		seen[f.Name] = true
		if len(f.Items) == 0 {
			return Invalid("objectives."+f.Name, "requires item coefficients")
		}
		for item := range f.Items {
			if !universe[item] {
				return Invalid("objectives."+f.Name, "references unknown item %q", item)
			}
		}
	}
	if r.NumPoints < 0 {
		return Invalid("num_points", "must be >= 0")
	}
	return validateSelectionConstraints(r.Constraints, universe)
}

func validateStage(s *StageSpec, field string, external map[string]bool) (map[string]bool, error) {
	vars := make(map[string]bool, len(s.Variables))
	for _, v := range s.Variables {
		if v.Name == "" {
			return nil, Invalid(field+".variables", "variable name must not be empty")
		}
		if vars[v.Name] || external[v.Name] {
			return nil, Invalid(field+".variables", "duplicate variable name %q", v.Name)
		}
		switch v.Type {
		case "", "continuous", "integer", "binary":
		default:
			return nil, Invalid(field+".variables."+v.Name, "unknown type %q", v.Type)
		}
		vars[v.Name] = true
	}
	known := func(name string) bool { return vars[name] || external[name] }
	for name := range s.Objective {
		if !vars[name] {
			return nil, Invalid(field+".objective", "references unknown variable %q", name)
		}
	}
	for i, row := range s.Constraints {
		if len(row.Coefficients) == 0 {
			return nil, Invalid(field+".constraints", "row %d has no coefficients", i)
		}
		for name := range row.Coefficients {
			if !known(name) {
				return nil, Invalid(field+".constraints", "row %d references unknown variable %q", i, name)
			}
		}
		if row.Sense != LessEq && row.Sense != GreaterEq && row.Sense != Equal {
			return nil, Invalid(field+".constraints", "row %d sense must be le, ge, or eq", i)
		}
	}
	return vars, nil
}

// Validate checks a two-stage stochastic request. CVaR is rejected here, not
// at solve time.
func (r *StochasticRequest) Validate() error {
	if r.Sense == "" {
		r.Sense = Minimize
	}
	if r.Sense != Maximize && r.Sense != Minimize {
		return Invalid("sense", "must be %q or %q", Maximize, Minimize)
	}
	first, err := validateStage(&r.FirstStage, "first_stage", nil)
	if err != nil {
		return err
	}
	second, err := validateStage(&r.SecondStage, "second_stage", first)
	if err != nil {
		return err
	}
	if err := validateScenarios(r.Scenarios, "scenarios"); err != nil {
		return err
	}
	for i := range r.Scenarios {
		s := &r.Scenarios[i]
		for key := range s.Values {
			name, isRHS := strings.CutPrefix(key, "rhs:")
			if isRHS {
				if !stageHasRow(&r.SecondStage, name) {
					return Invalid("scenarios."+s.Name, "rhs override references unknown row %q", name)
				}
				continue
			}
			if !second[key] {
				return Invalid("scenarios."+s.Name, "cost override references unknown second-stage variable %q", key)
			}
		}
	}
	switch r.RiskMeasure {
	case "", Expected, WorstScenario:
	case CVaR:
		return Invalid("risk_measure", "cvar is not supported; use expected or worst_case")
	default:
		return Invalid("risk_measure", "unknown risk measure %q", r.RiskMeasure)
	}
	return nil
}

func stageHasRow(s *StageSpec, name string) bool {
	for _, row := range s.Constraints {
		if row.Name == name {
			return true
		}
	}
	return false
}

// Validate checks a column-generation request.
func (r *ColumnGenRequest) Validate() error {
	if len(r.Columns) == 0 {
		return Invalid("initial_columns", "at least one starting column is required")
	}
	seen := make(map[string]bool, len(r.Columns))
	for _, c := range r.Columns {
		if c.Name == "" {
			return Invalid("initial_columns", "column name must not be empty")
		}
		if seen[c.Name] {
			return Invalid("initial_columns", "duplicate column name %q", c.Name)
		}
		seen[c.Name] = true
		for row := range c.Entries {
			if _, ok := r.Demands[row]; !ok {
				return Invalid("initial_columns."+c.Name, "entry references unknown demand row %q", row)
			}
		}
	}
	for row, d := range r.Demands {
		if d < 0 {
			return Invalid("demands."+row, "must be >= 0")
		}
	}
	switch r.Pricing.Type {
	case "knapsack":
		if r.Pricing.Capacity <= 0 {
			return Invalid("pricing.capacity", "knapsack pricing requires a positive capacity")
		}
		if len(r.Pricing.Items) == 0 {
			return Invalid("pricing.items", "knapsack pricing requires items")
		}
		for _, it := range r.Pricing.Items {
			if _, ok := r.Demands[it.Row]; !ok {
				return Invalid("pricing.items."+it.Name, "references unknown demand row %q", it.Row)
			}
			if it.Weight <= 0 {
				return Invalid("pricing.items."+it.Name, "weight must be positive")
			}
		}
	default:
		return Invalid("pricing.type", "unknown pricing type %q", r.Pricing.Type)
	}
	if r.MaxIterations < 0 {
		return Invalid("max_iterations", "must be >= 0")
	}
	return nil
}

// Validate checks a generic execute request.
func (r *ExecuteRequest) Validate() error {
	vars := make(map[string]bool, len(r.Variables))
	for _, v := range r.Variables {
		if v.Name == "" {
			return Invalid("variables", "variable name must not be empty")
		}
		if vars[v.Name] {
			return Invalid("variables", "duplicate variable name %q", v.Name)
		}
		switch v.Type {
		case "", "continuous", "integer", "binary":
		default:
			return Invalid("variables."+v.Name, "unknown type %q", v.Type)
		}
		if v.Lower != nil && v.Upper != nil && *v.Lower > *v.Upper {
			return Invalid("variables."+v.Name, "lower bound %v exceeds upper bound %v", *v.Lower, *v.Upper)
		}
		vars[v.Name] = true
	}
	if r.Objective.Sense != Maximize && r.Objective.Sense != Minimize {
		return Invalid("objective.sense", "must be %q or %q", Maximize, Minimize)
	}
	for name := range r.Objective.Linear {
		if !vars[name] {
			return Invalid("objective.linear", "references unknown variable %q", name)
		}
	}
	for _, q := range r.Objective.Quad {
		if !vars[q.I] || !vars[q.J] {
			return Invalid("objective.quadratic", "term (%s,%s) references an unknown variable", q.I, q.J)
		}
	}
	for i, row := range r.Constraints {
		if len(row.Coefficients) == 0 {
			return Invalid("constraints", "row %d has no coefficients", i)
		}
		for name := range row.Coefficients {
			if !vars[name] {
				return Invalid("constraints", "row %d references unknown variable %q", i, name)
			}
		}
		if row.Sense != LessEq && row.Sense != GreaterEq && row.Sense != Equal {
			return Invalid("constraints", "row %d sense must be le, ge, or eq", i)
		}
		if err := finite("constraints.bound", row.Bound); err != nil {
			return err
		}
	}
	return nil
}
