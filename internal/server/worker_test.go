package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/optikit/optikit/internal/solver"
	"github.com/optikit/optikit/internal/store"
	"github.com/optikit/optikit/internal/tools"
)

// stubSolver reports every model optimal with all variables at zero. Enough
// to drive a job through its lifecycle without a real backend.
type stubSolver struct{}

func (s *stubSolver) Name() string { return "stub" }

func (s *stubSolver) Solve(ctx context.Context, m *solver.Model, opts solver.Options) (*solver.Solution, error) {
	values := make(map[string]float64, len(m.Variables))
	for _, v := range m.Variables {
		values[v.Name] = 0
	}
	return &solver.Solution{
		Status:    solver.StatusOptimal,
		Objective: m.Objective.Offset,
		Values:    values,
		SolveTime: time.Millisecond,
	}, nil
}

// newTestServer builds a server around stub backends. dataDir may be empty
// to disable persistence.
func newTestServer(t *testing.T, dataDir string) *Server {
	t.Helper()

	stub := &stubSolver{}
	reg := &solver.Registry{
		MILP:      stub,
		Quadratic: stub,
		Nonlinear: stub,
		Network:   solver.NewNetwork(),
	}
	tb := tools.New(reg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var st store.Store
	if dataDir != "" {
		fs, err := store.NewFSStore(dataDir)
		if err != nil {
			t.Fatalf("Failed to create run store: %v", err)
		}
		st = fs
	}

	return NewServer(":0", dataDir, tb, st)
}

func TestRunJob_Completes(t *testing.T) {
	dataDir := t.TempDir()
	s := newTestServer(t, dataDir)

	job := s.jobManager.CreateJob("optimize_allocation", allocationPayload())

	if err := s.runJob(context.Background(), job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	got, _ := s.jobManager.GetJob(job.ID)
	if got.State != StateCompleted {
		t.Fatalf("Expected completed state, got %s", got.State)
	}
	if got.Status != "optimal" {
		t.Errorf("Expected optimal status, got %s", got.Status)
	}
	if got.Objective == nil {
		t.Error("Completed job should carry an objective")
	}
	if got.EndTime == nil {
		t.Error("Completed job should have an end time")
	}

	// Result payload must be the tool's normalized result
	var result map[string]any
	if err := json.Unmarshal(got.Result, &result); err != nil {
		t.Fatalf("Result is not valid JSON: %v", err)
	}
	if result["tool"] != "optimize_allocation" {
		t.Errorf("Result tool mismatch: %v", result["tool"])
	}
	if result["status"] != "optimal" {
		t.Errorf("Result status mismatch: %v", result["status"])
	}
}

func TestRunJob_PersistsRecordAndTrace(t *testing.T) {
	dataDir := t.TempDir()
	s := newTestServer(t, dataDir)

	job := s.jobManager.CreateJob("optimize_allocation", allocationPayload())

	if err := s.runJob(context.Background(), job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	record, err := s.runStore.LoadRun(job.ID)
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if record.Tool != "optimize_allocation" {
		t.Errorf("Record tool mismatch: %s", record.Tool)
	}
	if record.Status != "optimal" {
		t.Errorf("Record status mismatch: %s", record.Status)
	}
	if len(record.Result) == 0 {
		t.Error("Record should carry the result payload")
	}
	if record.Finished == nil {
		t.Error("Record should have a finished time")
	}

	tr, err := store.NewTraceReader(dataDir, job.ID)
	if err != nil {
		t.Fatalf("NewTraceReader failed: %v", err)
	}
	defer tr.Close()

	entries, err := tr.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	phases := make([]string, len(entries))
	for i, e := range entries {
		phases[i] = e.Phase
	}
	want := []string{"submitted", "solving", "finished"}
	if len(phases) != len(want) {
		t.Fatalf("Expected phases %v, got %v", want, phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("Phase %d: expected %s, got %s", i, want[i], phases[i])
		}
	}
}

func TestRunJob_UnknownTool(t *testing.T) {
	s := newTestServer(t, t.TempDir())

	job := s.jobManager.CreateJob("simplex9000", json.RawMessage(`{}`))

	if err := s.runJob(context.Background(), job.ID); err == nil {
		t.Fatal("Expected error for unknown tool")
	}

	got, _ := s.jobManager.GetJob(job.ID)
	if got.State != StateFailed {
		t.Errorf("Expected failed state, got %s", got.State)
	}
	if got.Error == "" {
		t.Error("Failed job should carry an error message")
	}

	// Failure is persisted with the job state as status
	record, err := s.runStore.LoadRun(job.ID)
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if record.Status != "failed" {
		t.Errorf("Record status should be failed, got %s", record.Status)
	}
	if record.Error == "" {
		t.Error("Record should carry the error message")
	}
}

func TestRunJob_InvalidRequest(t *testing.T) {
	s := newTestServer(t, "")

	// Items is required; an empty object must fail at the boundary
	job := s.jobManager.CreateJob("optimize_allocation", json.RawMessage(`{}`))

	if err := s.runJob(context.Background(), job.ID); err == nil {
		t.Fatal("Expected validation error")
	}

	got, _ := s.jobManager.GetJob(job.ID)
	if got.State != StateFailed {
		t.Errorf("Expected failed state, got %s", got.State)
	}
}

func TestRunJob_NotFound(t *testing.T) {
	s := newTestServer(t, "")

	if err := s.runJob(context.Background(), "nonexistent"); err == nil {
		t.Error("Expected error for unknown job")
	}
}

func TestRunJob_WithoutStore(t *testing.T) {
	s := newTestServer(t, "")

	job := s.jobManager.CreateJob("optimize_allocation", allocationPayload())

	if err := s.runJob(context.Background(), job.ID); err != nil {
		t.Fatalf("runJob without store failed: %v", err)
	}

	got, _ := s.jobManager.GetJob(job.ID)
	if got.State != StateCompleted {
		t.Errorf("Expected completed state, got %s", got.State)
	}
}

func TestRunStatus(t *testing.T) {
	completed := &Job{State: StateCompleted, Status: "feasible"}
	if runStatus(completed) != "feasible" {
		t.Errorf("Completed job should report solver status, got %s", runStatus(completed))
	}

	failed := &Job{State: StateFailed, Status: ""}
	if runStatus(failed) != "failed" {
		t.Errorf("Failed job should report job state, got %s", runStatus(failed))
	}
}

func TestMarkJobFailed(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob("execute", json.RawMessage(`{}`))

	markJobFailed(jm, job.ID, errors.New("backend exploded"))

	got, _ := jm.GetJob(job.ID)
	if got.State != StateFailed {
		t.Errorf("Expected failed state, got %s", got.State)
	}
	if got.Error != "backend exploded" {
		t.Errorf("Error message mismatch: %s", got.Error)
	}
	if got.EndTime == nil {
		t.Error("Failed job should have an end time")
	}
}
