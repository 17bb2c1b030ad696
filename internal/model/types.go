// Package model defines the typed request and result contracts for every
// optimization tool. Untyped caller input is decoded into these types at the
// boundary and validated before any solver is touched.
package model

// Sense is an optimization direction.
type Sense string

const (
	Maximize Sense = "maximize"
	Minimize Sense = "minimize"
)

// RowSense is the comparison direction of a linear constraint row.
type RowSense string

const (
	LessEq    RowSense = "le"
	GreaterEq RowSense = "ge"
	Equal     RowSense = "eq"
)

// Item is a selectable unit in allocation-style problems.
type Item struct {
	Name         string             `json:"name" validate:"required"`
	Value        float64            `json:"value"`
	Requirements map[string]float64 `json:"resource_requirements,omitempty"`
}

// WeightedFunction is one component of a multi-objective.
type WeightedFunction struct {
	Name   string             `json:"name" validate:"required"`
	Weight float64            `json:"weight"`
	Sense  Sense              `json:"sense,omitempty"`
	Items  map[string]float64 `json:"items" validate:"required"`
}

// ObjectiveSpec describes either a single objective (Sense + Items) or a
// weighted multi-objective (Functions). Exactly one form must be populated.
type ObjectiveSpec struct {
	Sense     Sense              `json:"sense,omitempty"`
	Items     map[string]float64 `json:"items,omitempty"`
	Functions []WeightedFunction `json:"functions,omitempty"`
}

// IsMulti reports whether the multi-objective form is in use.
func (o *ObjectiveSpec) IsMulti() bool { return len(o.Functions) > 0 }

// ConstraintKind tags the constraint variants understood by the reformulator.
type ConstraintKind string

const (
	ConstraintLinear        ConstraintKind = "linear"
	ConstraintConditional   ConstraintKind = "conditional"
	ConstraintDisjunctive   ConstraintKind = "disjunctive"
	ConstraintMutex         ConstraintKind = "mutex"
	ConstraintDeadline      ConstraintKind = "deadline"
	ConstraintRelease       ConstraintKind = "release"
	ConstraintParallelLimit ConstraintKind = "parallel_limit"
	ConstraintQuadraticRisk ConstraintKind = "quadratic_risk"
)

// Constraint is a tagged union over business-level constraint intents.
// Only the fields relevant to Kind are consulted.
type Constraint struct {
	Kind ConstraintKind `json:"type" validate:"required"`
	Name string         `json:"name,omitempty"`

	// linear
	Coefficients map[string]float64 `json:"coefficients,omitempty"`
	Sense        RowSense           `json:"sense,omitempty"`
	Bound        float64            `json:"bound,omitempty"`

	// conditional
	IfItem   string `json:"if_item,omitempty"`
	ThenItem string `json:"then_item,omitempty"`

	// disjunctive / mutex; a nil Count means the default of 1, an explicit
	// zero is honored (mutex with count 0 forbids every listed item)
	Items []string `json:"items,omitempty"`
	Count *int     `json:"count,omitempty"`

	// deadline / release
	Task string  `json:"task,omitempty"`
	Time float64 `json:"time,omitempty"`

	// parallel_limit
	Limit int `json:"limit,omitempty"`

	// quadratic_risk
	MaxRisk float64 `json:"max_risk,omitempty"`
}

// SolverOptions carries caller-facing solver controls. Solver is an explicit
// backend override that bypasses automatic selection.
type SolverOptions struct {
	TimeLimit float64 `json:"time_limit,omitempty"`
	Verbose   bool    `json:"verbose,omitempty"`
	Solver    string  `json:"solver,omitempty"`
}

// Scenario is a named complete assignment of values to uncertain parameters.
type Scenario struct {
	Name        string             `json:"name" validate:"required"`
	Probability float64            `json:"probability,omitempty"`
	Values      map[string]float64 `json:"values"`
}

// AllocationRequest selects items under resource budgets.
type AllocationRequest struct {
	Items       []Item             `json:"items" validate:"required,min=1,dive"`
	Resources   map[string]float64 `json:"resources" validate:"required,min=1"`
	Objective   ObjectiveSpec      `json:"objective"`
	Constraints []Constraint       `json:"constraints,omitempty"`
	MonteCarlo  *MCIntegration     `json:"monte_carlo_integration,omitempty"`
	Options     SolverOptions      `json:"solver_options,omitempty"`
}

// RobustCriterion selects how candidate allocations are ranked across scenarios.
type RobustCriterion string

const (
	BestAverage     RobustCriterion = "best_average"
	WorstCase       RobustCriterion = "worst_case"
	PercentileFloor RobustCriterion = "percentile"
)

// RobustRequest evaluates an allocation problem across value scenarios.
type RobustRequest struct {
	Items       []Item             `json:"items" validate:"required,min=1,dive"`
	Resources   map[string]float64 `json:"resources" validate:"required,min=1"`
	Constraints []Constraint       `json:"constraints,omitempty"`
	Scenarios   []Scenario         `json:"scenarios" validate:"required,min=1,dive"`
	Criterion   RobustCriterion    `json:"criterion,omitempty"`
	Percentile  float64            `json:"percentile,omitempty"`
	Threshold   *float64           `json:"threshold,omitempty"`
	MonteCarlo  *MCIntegration     `json:"monte_carlo_integration,omitempty"`
	Options     SolverOptions      `json:"solver_options,omitempty"`
}

// Asset is one investable instrument in portfolio problems.
type Asset struct {
	Name           string  `json:"name" validate:"required"`
	ExpectedReturn float64 `json:"expected_return"`
}

// PortfolioMode selects the portfolio objective formulation.
type PortfolioMode string

const (
	MaxSharpe   PortfolioMode = "max_sharpe"
	MinVariance PortfolioMode = "min_variance"
	MaxReturn   PortfolioMode = "max_return"
)

// PortfolioRequest optimizes asset weights on the simplex. Constraints accept
// the quadratic_risk kind only; its MaxRisk is a standard-deviation ceiling
// folded into MaxRisk during validation.
type PortfolioRequest struct {
	Assets       []Asset         `json:"assets" validate:"required,min=2,dive"`
	Covariance   [][]float64     `json:"covariance_matrix" validate:"required"`
	Constraints  []Constraint    `json:"constraints,omitempty"`
	Mode         PortfolioMode   `json:"mode,omitempty"`
	RiskFreeRate float64         `json:"risk_free_rate,omitempty"`
	TargetReturn *float64        `json:"target_return,omitempty"`
	MaxRisk      *float64        `json:"max_risk,omitempty"`
	MinWeight    float64         `json:"min_weight,omitempty"`
	MaxWeight    float64         `json:"max_weight,omitempty"`
	AllowShort   bool            `json:"allow_short,omitempty"`
	MonteCarlo   *MCIntegration  `json:"monte_carlo_integration,omitempty"`
	Options      SolverOptions   `json:"solver_options,omitempty"`
}

// Task is a unit of work on an integer time axis.
type Task struct {
	Name         string             `json:"name" validate:"required"`
	Duration     int                `json:"duration" validate:"gt=0"`
	Value        float64            `json:"value,omitempty"`
	Dependencies []string           `json:"dependencies,omitempty"`
	Requirements map[string]float64 `json:"resource_requirements,omitempty"`
}

// ScheduleObjective selects the scheduling objective.
type ScheduleObjective string

const (
	MinMakespan ScheduleObjective = "min_makespan"
	MaxValue    ScheduleObjective = "max_value"
)

// ScheduleRequest places tasks on [0, Horizon) respecting precedence and
// per-period resource capacities.
type ScheduleRequest struct {
	Tasks       []Task             `json:"tasks" validate:"required,min=1,dive"`
	Resources   map[string]float64 `json:"resources,omitempty"`
	Horizon     int                `json:"time_horizon" validate:"gt=0"`
	Objective   ScheduleObjective  `json:"objective,omitempty"`
	Constraints []Constraint       `json:"constraints,omitempty"`
	MonteCarlo  *MCIntegration     `json:"monte_carlo_integration,omitempty"`
	Options     SolverOptions      `json:"solver_options,omitempty"`
}

// Node is a network vertex with optional supply or demand.
type Node struct {
	Name   string  `json:"name" validate:"required"`
	Supply float64 `json:"supply,omitempty"`
	Demand float64 `json:"demand,omitempty"`
}

// Edge is a directed capacitated arc with a per-unit cost.
type Edge struct {
	From     string  `json:"from" validate:"required"`
	To       string  `json:"to" validate:"required"`
	Capacity float64 `json:"capacity"`
	Cost     float64 `json:"cost,omitempty"`
}

// FlowType selects the network-flow problem family.
type FlowType string

const (
	MinCostFlow FlowType = "min_cost"
	MaxFlow     FlowType = "max_flow"
	Assignment  FlowType = "assignment"
)

// NetworkRequest solves a flow problem over Nodes and Edges.
type NetworkRequest struct {
	Nodes           []Node         `json:"nodes" validate:"required,min=2,dive"`
	Edges           []Edge         `json:"edges" validate:"required,min=1,dive"`
	FlowType        FlowType       `json:"flow_type" validate:"required"`
	Source          string         `json:"source,omitempty"`
	Sink            string         `json:"sink,omitempty"`
	SideConstraints []Constraint   `json:"side_constraints,omitempty"`
	MonteCarlo      *MCIntegration `json:"monte_carlo_integration,omitempty"`
	Options         SolverOptions  `json:"solver_options,omitempty"`
}

// ParetoRequest sweeps weighted scalarizations of 2+ objectives over the
// allocation feasible region.
type ParetoRequest struct {
	Items       []Item             `json:"items" validate:"required,min=1,dive"`
	Resources   map[string]float64 `json:"resources" validate:"required,min=1"`
	Objectives  []WeightedFunction `json:"objectives" validate:"required,min=2,dive"`
	Constraints []Constraint       `json:"constraints,omitempty"`
	NumPoints   int                `json:"num_points,omitempty"`
	MonteCarlo  *MCIntegration     `json:"monte_carlo_integration,omitempty"`
	Options     SolverOptions      `json:"solver_options,omitempty"`
}

// VariableSpec declares one decision variable for explicit models.
type VariableSpec struct {
	Name  string   `json:"name" validate:"required"`
	Type  string   `json:"type,omitempty"` // continuous | integer | binary
	Lower *float64 `json:"lower,omitempty"`
	Upper *float64 `json:"upper,omitempty"`
}

// LinearRow is one explicit linear constraint over named variables.
type LinearRow struct {
	Name         string             `json:"name,omitempty"`
	Coefficients map[string]float64 `json:"coefficients" validate:"required"`
	Sense        RowSense           `json:"sense" validate:"required"`
	Bound        float64            `json:"bound"`
}

// QuadTerm is one quadratic objective term Coef * x_I * x_J.
type QuadTerm struct {
	I    string  `json:"i" validate:"required"`
	J    string  `json:"j" validate:"required"`
	Coef float64 `json:"coef"`
}

// StageSpec describes the variables, objective coefficients, and constraints
// of one stage in a two-stage stochastic program. Second-stage constraints may
// reference first-stage variables (linking rows).
type StageSpec struct {
	Variables   []VariableSpec     `json:"variables" validate:"required,min=1,dive"`
	Objective   map[string]float64 `json:"objective"`
	Constraints []LinearRow        `json:"constraints,omitempty"`
}

// RiskMeasure selects how scenario outcomes are aggregated.
type RiskMeasure string

const (
	Expected      RiskMeasure = "expected"
	WorstScenario RiskMeasure = "worst_case"
	CVaR          RiskMeasure = "cvar"
)

// StochasticRequest builds and solves the extensive form of a two-stage
// stochastic program. Scenario values override second-stage objective
// coefficients by variable name and constraint bounds by "rhs:<row name>".
type StochasticRequest struct {
	Sense       Sense          `json:"sense,omitempty"`
	FirstStage  StageSpec      `json:"first_stage" validate:"required"`
	SecondStage StageSpec      `json:"second_stage" validate:"required"`
	Scenarios   []Scenario     `json:"scenarios" validate:"required,min=1,dive"`
	RiskMeasure RiskMeasure    `json:"risk_measure,omitempty"`
	ComputeVSS  bool           `json:"compute_vss,omitempty"`
	ComputeEVPI bool           `json:"compute_evpi,omitempty"`
	MonteCarlo  *MCIntegration `json:"monte_carlo_integration,omitempty"`
	Options     SolverOptions  `json:"solver_options,omitempty"`
}

// Column is one pattern in a column-generation master problem. Entries map
// cover-row names to the amount of coverage the column contributes.
type Column struct {
	Name    string             `json:"name" validate:"required"`
	Cost    float64            `json:"cost"`
	Entries map[string]float64 `json:"entries" validate:"required"`
}

// PricingItem is one selectable element in a knapsack pricing subproblem.
// Row names the cover row the element contributes to when selected.
type PricingItem struct {
	Name   string  `json:"name" validate:"required"`
	Row    string  `json:"row" validate:"required"`
	Weight float64 `json:"weight"`
}

// PricingSpec configures the column-generation pricing subproblem.
type PricingSpec struct {
	Type       string        `json:"type" validate:"required"` // knapsack
	Capacity   float64       `json:"capacity,omitempty"`
	Items      []PricingItem `json:"items,omitempty"`
	ColumnCost float64       `json:"column_cost,omitempty"`
}

// ColumnGenRequest drives restricted-master / pricing iterations.
type ColumnGenRequest struct {
	Columns       []Column           `json:"initial_columns" validate:"required,min=1,dive"`
	Demands       map[string]float64 `json:"demands" validate:"required,min=1"`
	Pricing       PricingSpec        `json:"pricing" validate:"required"`
	MaxIterations int                `json:"max_iterations,omitempty"`
	Gap           float64            `json:"gap,omitempty"`
	MonteCarlo    *MCIntegration     `json:"monte_carlo_integration,omitempty"`
	Options       SolverOptions      `json:"solver_options,omitempty"`
}

// ExecuteObjective is the fully explicit objective used by the generic tool.
type ExecuteObjective struct {
	Sense  Sense              `json:"sense" validate:"required"`
	Linear map[string]float64 `json:"linear,omitempty"`
	Quad   []QuadTerm         `json:"quadratic,omitempty"`
	Offset float64            `json:"offset,omitempty"`
}

// ExecuteRequest is the generic escape hatch: an explicit model dispatched
// purely by the solver selector.
type ExecuteRequest struct {
	Variables   []VariableSpec   `json:"variables" validate:"required,min=1,dive"`
	Objective   ExecuteObjective `json:"objective" validate:"required"`
	Constraints []LinearRow      `json:"constraints,omitempty"`
	MonteCarlo  *MCIntegration   `json:"monte_carlo_integration,omitempty"`
	Options     SolverOptions    `json:"solver_options,omitempty"`
}
