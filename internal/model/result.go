package model

// Status is the normalized outcome of a tool invocation.
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusFeasible   Status = "feasible" // time limit hit with an incumbent
	StatusInfeasible Status = "infeasible"
	StatusUnbounded  Status = "unbounded"
	StatusError      Status = "error"
)

// ResourceUsage reports consumption of one resource at the solution.
type ResourceUsage struct {
	Used           float64 `json:"used"`
	Total          float64 `json:"total"`
	UtilizationPct float64 `json:"utilization_pct"`
}

// FunctionValue is the per-function breakdown of a weighted multi-objective.
type FunctionValue struct {
	Value         float64 `json:"value"`
	Weight        float64 `json:"weight"`
	WeightedValue float64 `json:"weighted_value"`
}

// Summary is the normalized core shared by every tool result. ShadowPrices is
// populated only when the solved model is a pure LP. Local marks solutions
// from the nonlinear backend, which carry no optimality certificate.
type Summary struct {
	Tool             string                   `json:"tool"`
	Solver           string                   `json:"solver"`
	Status           Status                   `json:"status"`
	Message          string                   `json:"message,omitempty"`
	Objective        *float64                 `json:"objective_value"`
	Solution         map[string]float64       `json:"solution,omitempty"`
	ResourceUsage    map[string]ResourceUsage `json:"resource_usage,omitempty"`
	ShadowPrices     map[string]float64       `json:"shadow_prices,omitempty"`
	Breakdown        map[string]FunctionValue `json:"objective_breakdown,omitempty"`
	Local            bool                     `json:"local_optimum,omitempty"`
	SolveTimeSeconds float64                  `json:"solve_time_seconds"`
	MonteCarlo       *MCCompatible            `json:"monte_carlo_compatible,omitempty"`
}

// Solved reports whether the run produced a usable solution.
func (s *Summary) Solved() bool {
	return s.Status == StatusOptimal || s.Status == StatusFeasible
}

// AllocationResult is the allocation tool payload.
type AllocationResult struct {
	Summary
	Selected []string `json:"selected_items"`
	Excluded []string `json:"excluded_items,omitempty"`
}

// ScenarioOutcome is the value of one candidate allocation under one scenario.
type ScenarioOutcome struct {
	Scenario string  `json:"scenario"`
	Value    float64 `json:"value"`
}

// RobustMetrics summarizes a candidate's behavior across scenarios.
type RobustMetrics struct {
	Expected         float64            `json:"expected_value"`
	Worst            float64            `json:"worst_case"`
	Best             float64            `json:"best_case"`
	StdDev           float64            `json:"std_dev"`
	Percentiles      map[string]float64 `json:"percentiles"`
	MeetingThreshold float64            `json:"scenarios_meeting_threshold"`
}

// RobustResult is the robust-allocation tool payload.
type RobustResult struct {
	Summary
	Criterion  RobustCriterion   `json:"criterion"`
	Selected   []string          `json:"selected_items"`
	Metrics    RobustMetrics     `json:"robustness_metrics"`
	Outcomes   []ScenarioOutcome `json:"scenario_outcomes"`
	Candidates int               `json:"candidates_evaluated"`
}

// PortfolioResult is the portfolio tool payload.
type PortfolioResult struct {
	Summary
	Weights           map[string]float64 `json:"weights"`
	ExpectedReturn    float64            `json:"expected_return"`
	Variance          float64            `json:"variance"`
	StdDev            float64            `json:"std_dev"`
	SharpeRatio       float64            `json:"sharpe_ratio"`
	RiskContributions map[string]float64 `json:"risk_contributions"`
}

// TaskSlot is one scheduled task.
type TaskSlot struct {
	Name  string `json:"name"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// ScheduleResult is the scheduling tool payload.
type ScheduleResult struct {
	Summary
	Schedule     []TaskSlot           `json:"schedule"`
	Makespan     int                  `json:"makespan"`
	CriticalPath []string             `json:"critical_path,omitempty"`
	PeriodUsage  map[string][]float64 `json:"resource_usage_by_period,omitempty"`
	Unscheduled  []string             `json:"unscheduled_tasks,omitempty"`
}

// EdgeFlow is the solved flow on one edge.
type EdgeFlow struct {
	From        string  `json:"from"`
	To          string  `json:"to"`
	Flow        float64 `json:"flow"`
	Capacity    float64 `json:"capacity"`
	Utilization float64 `json:"utilization"`
}

// FlowResult is the network-flow tool payload.
type FlowResult struct {
	Summary
	FlowType    FlowType           `json:"flow_type"`
	Flows       []EdgeFlow         `json:"flows"`
	TotalFlow   float64            `json:"total_flow"`
	TotalCost   float64            `json:"total_cost"`
	Bottlenecks []EdgeFlow         `json:"bottlenecks,omitempty"`
	NodeBalance map[string]float64 `json:"node_balance"`
}

// ParetoPoint is one non-dominated frontier point.
type ParetoPoint struct {
	Weights    map[string]float64 `json:"weights"`
	Objectives map[string]float64 `json:"objectives"`
	Solution   map[string]float64 `json:"solution"`
}

// ParetoResult is the multi-objective tool payload.
type ParetoResult struct {
	Summary
	Frontier        []ParetoPoint `json:"pareto_frontier"`
	Knee            *ParetoPoint  `json:"knee_point,omitempty"`
	PointsEvaluated int           `json:"points_evaluated"`
	PointsDominated int           `json:"points_dominated"`
}

// StochasticResult is the two-stage stochastic tool payload.
type StochasticResult struct {
	Summary
	FirstStage     map[string]float64 `json:"first_stage_decisions"`
	ExpectedValue  float64            `json:"expected_value"`
	WorstCaseValue float64            `json:"worst_case_value"`
	ScenarioValues map[string]float64 `json:"scenario_values"`
	VSS            *float64           `json:"value_of_stochastic_solution,omitempty"`
	EVPI           *float64           `json:"expected_value_of_perfect_information,omitempty"`
}

// ColumnGenResult is the column-generation tool payload.
type ColumnGenResult struct {
	Summary
	Iterations  int                `json:"iterations"`
	Generated   int                `json:"columns_generated"`
	ColumnUsage map[string]float64 `json:"column_usage"`
	Columns     []Column           `json:"final_columns"`
}

// ExecuteResult is the generic tool payload.
type ExecuteResult struct {
	Summary
	ReducedCosts map[string]float64 `json:"reduced_costs,omitempty"`
	Slacks       map[string]float64 `json:"slacks,omitempty"`
}
