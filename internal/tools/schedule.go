package tools

import (
	"context"
	"sort"

	"github.com/optikit/optikit/internal/model"
	"github.com/optikit/optikit/internal/reform"
	"github.com/optikit/optikit/internal/solver"
)

// Schedule places tasks on an integer time axis with a time-indexed MILP.
// The default objective minimizes makespan with every task mandatory; the
// max_value objective schedules a value-maximizing subset instead.
func (tb *Toolbox) Schedule(ctx context.Context, req *model.ScheduleRequest) (*model.ScheduleResult, error) {
	const tool = "optimize_schedule"
	if err := req.Validate(); err != nil {
		return nil, err
	}
	objective := req.Objective
	if objective == "" {
		objective = model.MinMakespan
	}

	tasks := req.Tasks
	if req.MonteCarlo != nil {
		vals, err := req.MonteCarlo.ParameterValues()
		if err != nil {
			return nil, err
		}
		for i := range tasks {
			if v, ok := vals[tasks[i].Name]; ok {
				tasks[i].Value = v
			}
		}
	}

	optional := objective == model.MaxValue
	ti := reform.NewTimeIndexed(tasks, req.Horizon, optional)

	m := &solver.Model{Name: tool}
	m.Variables = ti.Variables()
	m.Constraints = append(m.Constraints, ti.AssignmentRows()...)
	prec, err := ti.PrecedenceRows()
	if err != nil {
		return nil, model.Invalid("tasks", "%s", err)
	}
	m.Constraints = append(m.Constraints, prec...)
	m.Constraints = append(m.Constraints, ti.ResourceRows(req.Resources)...)

	for i, c := range req.Constraints {
		switch c.Kind {
		case model.ConstraintDeadline:
			row, err := ti.DeadlineRow(rowName("deadline", i, c), c.Task, c.Time)
			if err != nil {
				return nil, model.Invalid("constraints", "%s", err)
			}
			m.Constraints = append(m.Constraints, row)
		case model.ConstraintRelease:
			row, err := ti.ReleaseRow(rowName("release", i, c), c.Task, c.Time)
			if err != nil {
				return nil, model.Invalid("constraints", "%s", err)
			}
			m.Constraints = append(m.Constraints, row)
		case model.ConstraintParallelLimit:
			m.Constraints = append(m.Constraints, ti.ParallelRows(c.Limit)...)
		}
	}

	if optional {
		m.Objective.Maximize = true
		for i := range tasks {
			task := &tasks[i]
			for t := 0; t <= ti.LatestStart(task); t++ {
				if task.Value != 0 {
					m.Objective.Terms = append(m.Objective.Terms, solver.Term{Var: ti.VarName(task.Name, t), Coef: task.Value})
				}
			}
		}
	} else {
		const msVar = "makespan"
		m.Variables = append(m.Variables, solver.Variable{
			Name: msVar, Type: solver.Continuous, Lower: 0, Upper: float64(req.Horizon),
		})
		m.Constraints = append(m.Constraints, ti.MakespanRows(msVar)...)
		m.Objective.Terms = []solver.Term{{Var: msVar, Coef: 1}}
	}

	sol, err := tb.reg.MILP.Solve(ctx, m, solver.Options{TimeLimit: req.Options.TimeLimit, Verbose: req.Options.Verbose})
	if err != nil {
		return &model.ScheduleResult{Summary: errorSummary(tool, err)}, nil
	}
	res := &model.ScheduleResult{Summary: summarize(tool, tb.reg.MILP.Name(), sol)}
	if !res.Solved() {
		if res.Status == model.StatusInfeasible {
			res.Message = infeasibleScheduleMessage(req)
		}
		return res, nil
	}

	starts := ti.StartTimes(sol.Values)
	byName := make(map[string]*model.Task, len(tasks))
	for i := range tasks {
		byName[tasks[i].Name] = &tasks[i]
	}
	makespan := 0
	for i := range tasks {
		task := &tasks[i]
		start, ok := starts[task.Name]
		if !ok {
			res.Unscheduled = append(res.Unscheduled, task.Name)
			continue
		}
		end := start + task.Duration
		res.Schedule = append(res.Schedule, model.TaskSlot{Name: task.Name, Start: start, End: end})
		if end > makespan {
			makespan = end
		}
	}
	sort.Slice(res.Schedule, func(i, j int) bool {
		if res.Schedule[i].Start != res.Schedule[j].Start {
			return res.Schedule[i].Start < res.Schedule[j].Start
		}
		return res.Schedule[i].Name < res.Schedule[j].Name
	})
	sort.Strings(res.Unscheduled)
	res.Makespan = makespan
	res.CriticalPath = criticalPath(byName, starts)
	res.PeriodUsage = periodUsage(tasks, starts, req.Resources, req.Horizon)

	// expose start times as the primary solution mapping
	starts2 := make(map[string]float64, len(starts))
	for name, t := range starts {
		starts2[name] = float64(t)
	}
	res.Solution = starts2
	res.MonteCarlo = mcBlock(tool, starts2, solObjective(sol, makespan),
		"schedule makespan under the chosen start times")
	return res, nil
}

func solObjective(sol *solver.Solution, makespan int) float64 {
	if sol.Objective != 0 {
		return sol.Objective
	}
	return float64(makespan)
}

func rowName(prefix string, i int, c model.Constraint) string {
	if c.Name != "" {
		return c.Name
	}
	return prefix + "_" + c.Task
}

// criticalPath backward-traces from the latest-finishing task through
// whichever predecessor finishes latest at each step.
func criticalPath(tasks map[string]*model.Task, starts map[string]int) []string {
	end := func(name string) int {
		return starts[name] + tasks[name].Duration
	}
	current := ""
	for name := range starts {
		if current == "" || end(name) > end(current) || (end(name) == end(current) && name < current) {
			current = name
		}
	}
	if current == "" {
		return nil
	}
	path := []string{current}
	for {
		task := tasks[current]
		next := ""
		for _, dep := range task.Dependencies {
			if _, ok := starts[dep]; !ok {
				continue
			}
			if next == "" || end(dep) > end(next) || (end(dep) == end(next) && dep < next) {
				next = dep
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		current = next
	}
	// reverse into chronological order
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

func periodUsage(tasks []model.Task, starts map[string]int, resources map[string]float64, horizon int) map[string][]float64 {
	if len(resources) == 0 {
		return nil
	}
	usage := make(map[string][]float64, len(resources))
	for res := range resources {
		perPeriod := make([]float64, horizon)
		for i := range tasks {
			task := &tasks[i]
			req := task.Requirements[res]
			if req == 0 {
				continue
			}
			start, ok := starts[task.Name]
			if !ok {
				continue
			}
			for t := start; t < start+task.Duration && t < horizon; t++ {
				perPeriod[t] += req
			}
		}
		usage[res] = perPeriod
	}
	return usage
}

// infeasibleScheduleMessage names the most likely cause of an infeasible
// schedule.
func infeasibleScheduleMessage(req *model.ScheduleRequest) string {
	if longestChain(req.Tasks) > req.Horizon {
		return "the dependency chain alone needs more time than the horizon allows"
	}
	for _, c := range req.Constraints {
		if c.Kind == model.ConstraintDeadline && chainTo(req.Tasks, c.Task) > int(c.Time) {
			return "deadline on task " + c.Task + " is tighter than its dependency chain"
		}
	}
	return "no schedule satisfies the given horizon, resources, and constraints"
}

// longestChain is the critical-path lower bound on the makespan.
func longestChain(tasks []model.Task) int {
	byName := make(map[string]*model.Task, len(tasks))
	for i := range tasks {
		byName[tasks[i].Name] = &tasks[i]
	}
	memo := make(map[string]int, len(tasks))
	var chain func(string) int
	chain = func(name string) int {
		if v, ok := memo[name]; ok {
			return v
		}
		t := byName[name]
		best := 0
		for _, dep := range t.Dependencies {
			if c := chain(dep); c > best {
				best = c
			}
		}
		memo[name] = best + t.Duration
		return memo[name]
	}
	longest := 0
	for _, t := range tasks {
		if c := chain(t.Name); c > longest {
			longest = c
		}
	}
	return longest
}

// chainTo is the earliest possible finish of one task given its dependency
// chain.
func chainTo(tasks []model.Task, name string) int {
	byName := make(map[string]*model.Task, len(tasks))
	for i := range tasks {
		byName[tasks[i].Name] = &tasks[i]
	}
	var finish func(string) int
	finish = func(n string) int {
		t, ok := byName[n]
		if !ok {
			return 0
		}
		earliest := 0
		for _, dep := range t.Dependencies {
			if f := finish(dep); f > earliest {
				earliest = f
			}
		}
		return earliest + t.Duration
	}
	return finish(name)
}
