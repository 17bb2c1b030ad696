package reform

import (
	"fmt"

	"github.com/optikit/optikit/internal/model"
	"github.com/optikit/optikit/internal/solver"
)

// TimeIndexed builds the time-indexed scheduling formulation: one binary
// x[task,t] per task and feasible start time t, where x[task,t] = 1 iff the
// task starts at t. Start times are recovered as weighted sums over the
// indicator row of each task.
type TimeIndexed struct {
	Horizon  int
	Tasks    []model.Task
	Optional bool // tasks may stay unscheduled (value-maximizing schedules)

	byName map[string]*model.Task
}

// NewTimeIndexed prepares the formulation helper.
func NewTimeIndexed(tasks []model.Task, horizon int, optional bool) *TimeIndexed {
	ti := &TimeIndexed{Horizon: horizon, Tasks: tasks, Optional: optional}
	ti.byName = make(map[string]*model.Task, len(tasks))
	for i := range tasks {
		ti.byName[tasks[i].Name] = &tasks[i]
	}
	return ti
}

// VarName is the indicator variable for a task starting at t.
func (ti *TimeIndexed) VarName(task string, t int) string {
	return fmt.Sprintf("x[%s,%d]", task, t)
}

// LatestStart is the last feasible start time for a task.
func (ti *TimeIndexed) LatestStart(task *model.Task) int {
	return ti.Horizon - task.Duration
}

// Variables declares every indicator binary.
func (ti *TimeIndexed) Variables() []solver.Variable {
	var vars []solver.Variable
	for i := range ti.Tasks {
		task := &ti.Tasks[i]
		for t := 0; t <= ti.LatestStart(task); t++ {
			vars = append(vars, solver.Variable{Name: ti.VarName(task.Name, t), Type: solver.Binary})
		}
	}
	return vars
}

// startTerms is sum(t * x[task,t]), the task's start time when scheduled.
func (ti *TimeIndexed) startTerms(task *model.Task, scale float64) []solver.Term {
	var terms []solver.Term
	for t := 0; t <= ti.LatestStart(task); t++ {
		if t == 0 {
			continue
		}
		terms = append(terms, solver.Term{Var: ti.VarName(task.Name, t), Coef: scale * float64(t)})
	}
	return terms
}

// selectedTerms is sum(x[task,t]), 1 iff the task is scheduled.
func (ti *TimeIndexed) selectedTerms(task *model.Task, scale float64) []solver.Term {
	var terms []solver.Term
	for t := 0; t <= ti.LatestStart(task); t++ {
		terms = append(terms, solver.Term{Var: ti.VarName(task.Name, t), Coef: scale})
	}
	return terms
}

// AssignmentRows forces each task to start exactly once, or at most once when
// schedules are optional.
func (ti *TimeIndexed) AssignmentRows() []solver.Constraint {
	rows := make([]solver.Constraint, 0, len(ti.Tasks))
	for i := range ti.Tasks {
		task := &ti.Tasks[i]
		name := "assign_" + task.Name
		terms := ti.selectedTerms(task, 1)
		if ti.Optional {
			rows = append(rows, solver.LeRow(name, terms, 1))
		} else {
			rows = append(rows, solver.EqRow(name, terms, 1))
		}
	}
	return rows
}

// PrecedenceRows enforces start(B) >= start(A) + duration(A) for every
// dependency A of B. With optional tasks the timing row is relaxed by the
// horizon when B stays unscheduled, and a selection row forces A in whenever
// B is in.
func (ti *TimeIndexed) PrecedenceRows() ([]solver.Constraint, error) {
	var rows []solver.Constraint
	for i := range ti.Tasks {
		b := &ti.Tasks[i]
		for _, depName := range b.Dependencies {
			a, ok := ti.byName[depName]
			if !ok {
				return nil, fmt.Errorf("task %q depends on unknown task %q", b.Name, depName)
			}
			name := fmt.Sprintf("prec_%s_%s", a.Name, b.Name)
			terms := append(ti.startTerms(b, 1), ti.startTerms(a, -1)...)
			if !ti.Optional {
				rows = append(rows, solver.GeRow(name, terms, float64(a.Duration)))
				continue
			}
			// start(B) - start(A) - H*selected(B) >= duration(A) - H
			relaxed := append(terms, ti.selectedTerms(b, -float64(ti.Horizon))...)
			rows = append(rows, solver.GeRow(name, relaxed, float64(a.Duration-ti.Horizon)))
			rows = append(rows, solver.GeRow(name+"_sel", append(ti.selectedTerms(a, 1), ti.selectedTerms(b, -1)...), 0))
		}
	}
	return rows, nil
}

// DeadlineRow bounds a task's finish time: start + duration <= deadline.
func (ti *TimeIndexed) DeadlineRow(name, task string, deadline float64) (solver.Constraint, error) {
	t, ok := ti.byName[task]
	if !ok {
		return solver.Constraint{}, fmt.Errorf("deadline references unknown task %q", task)
	}
	return solver.LeRow(name, ti.startTerms(t, 1), deadline-float64(t.Duration)), nil
}

// ReleaseRow keeps a task from starting before its release time.
func (ti *TimeIndexed) ReleaseRow(name, task string, release float64) (solver.Constraint, error) {
	t, ok := ti.byName[task]
	if !ok {
		return solver.Constraint{}, fmt.Errorf("release references unknown task %q", task)
	}
	return solver.GeRow(name, ti.startTerms(t, 1), release), nil
}

// coveringTerms collects indicators of starts that keep a task running
// during period p, scaled by coef.
func (ti *TimeIndexed) coveringTerms(task *model.Task, p int, coef float64) []solver.Term {
	var terms []solver.Term
	lo := p - task.Duration + 1
	if lo < 0 {
		lo = 0
	}
	hi := p
	if latest := ti.LatestStart(task); hi > latest {
		hi = latest
	}
	for t := lo; t <= hi; t++ {
		terms = append(terms, solver.Term{Var: ti.VarName(task.Name, t), Coef: coef})
	}
	return terms
}

// ResourceRows caps per-period resource consumption at each capacity.
func (ti *TimeIndexed) ResourceRows(resources map[string]float64) []solver.Constraint {
	var rows []solver.Constraint
	for res, cap := range resources {
		for p := 0; p < ti.Horizon; p++ {
			var terms []solver.Term
			for i := range ti.Tasks {
				task := &ti.Tasks[i]
				req := task.Requirements[res]
				if req == 0 {
					continue
				}
				terms = append(terms, ti.coveringTerms(task, p, req)...)
			}
			if len(terms) == 0 {
				continue
			}
			rows = append(rows, solver.LeRow(fmt.Sprintf("cap_%s_%d", res, p), terms, cap))
		}
	}
	return rows
}

// ParallelRows caps how many tasks run in any single period.
func (ti *TimeIndexed) ParallelRows(limit int) []solver.Constraint {
	var rows []solver.Constraint
	for p := 0; p < ti.Horizon; p++ {
		var terms []solver.Term
		for i := range ti.Tasks {
			terms = append(terms, ti.coveringTerms(&ti.Tasks[i], p, 1)...)
		}
		if len(terms) == 0 {
			continue
		}
		rows = append(rows, solver.LeRow(fmt.Sprintf("parallel_%d", p), terms, float64(limit)))
	}
	return rows
}

// MakespanRows links a continuous makespan variable to every task's finish
// time: ms >= start + duration.
func (ti *TimeIndexed) MakespanRows(msVar string) []solver.Constraint {
	rows := make([]solver.Constraint, 0, len(ti.Tasks))
	for i := range ti.Tasks {
		task := &ti.Tasks[i]
		terms := []solver.Term{{Var: msVar, Coef: 1}}
		terms = append(terms, ti.startTerms(task, -1)...)
		rows = append(rows, solver.GeRow("finish_"+task.Name, terms, float64(task.Duration)))
	}
	return rows
}

// StartTimes decodes solved indicators into integer start times. Tasks left
// unscheduled are absent from the map.
func (ti *TimeIndexed) StartTimes(values map[string]float64) map[string]int {
	starts := make(map[string]int, len(ti.Tasks))
	for i := range ti.Tasks {
		task := &ti.Tasks[i]
		for t := 0; t <= ti.LatestStart(task); t++ {
			if values[ti.VarName(task.Name, t)] > 0.5 {
				starts[task.Name] = t
				break
			}
		}
	}
	return starts
}
