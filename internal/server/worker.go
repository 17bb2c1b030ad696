package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/optikit/optikit/internal/store"
)

// runJob executes a tool invocation in the background.
// If runStore is not nil the finished record and a lifecycle trace are
// persisted under the server's data directory.
func (s *Server) runJob(ctx context.Context, jobID string) error {
	jm := s.jobManager

	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "tool", job.Tool)

	tracer := s.openTrace(jobID)
	tracer.event("submitted", nil, "")
	tracer.event("solving", nil, "")

	// Check for cancellation before starting the solve
	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		tracer.close()
		return ctx.Err()
	default:
	}

	// Start progress monitoring goroutine
	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, progressDone)

	start := time.Now()
	payload, summary, err := Invoke(ctx, s.toolbox, s.validate, job.Tool, job.Request)
	elapsed := time.Since(start)

	close(progressDone)

	if err != nil {
		markJobFailed(jm, jobID, err)
		tracer.event("finished", nil, err.Error())
		tracer.close()
		s.persistJob(jobID)
		return err
	}

	// Check for cancellation after the solve
	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		tracer.close()
		s.persistJob(jobID)
		return ctx.Err()
	default:
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Result = payload
		j.Status = string(summary.Status)
		j.Objective = summary.Objective
		j.EndTime = &endTime
	})
	if err != nil {
		tracer.close()
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"tool", job.Tool,
		"status", summary.Status,
		"elapsed", elapsed,
		"solve_time_seconds", summary.SolveTimeSeconds,
	)

	tracer.event("finished", summary.Objective, string(summary.Status))
	tracer.close()
	s.persistJob(jobID)

	// Broadcast final completion event
	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     StateCompleted,
		Tool:      job.Tool,
		Status:    string(summary.Status),
		Objective: summary.Objective,
		Timestamp: time.Now(),
	})

	return nil
}

// monitorProgress periodically broadcasts progress events while a solve runs
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond) // Throttle to 2 updates per second
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}

			jm.broadcaster.Broadcast(ProgressEvent{
				JobID:     jobID,
				State:     job.State,
				Tool:      job.Tool,
				Status:    job.Status,
				Objective: job.Objective,
				Timestamp: time.Now(),
			})
		}
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
}

// persistJob writes the job's current state to the run store.
// Persistence failures are logged, not propagated; the in-memory job record
// stays authoritative for the API.
func (s *Server) persistJob(jobID string) {
	if s.runStore == nil {
		return
	}

	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		return
	}

	record := &store.RunRecord{
		RunID:     job.ID,
		Tool:      job.Tool,
		Status:    runStatus(job),
		Objective: job.Objective,
		Request:   job.Request,
		Result:    job.Result,
		Submitted: job.StartTime,
		Finished:  job.EndTime,
		Error:     job.Error,
	}

	if err := s.runStore.SaveRun(job.ID, record); err != nil {
		slog.Error("Failed to persist run record", "job_id", jobID, "error", err)
		return
	}

	slog.Debug("Run record persisted", "job_id", jobID, "status", record.Status)
}

// runStatus maps job state to the persisted status string. Completed jobs
// carry the solver's normalized status, everything else the job state.
func runStatus(job *Job) string {
	if job.State == StateCompleted && job.Status != "" {
		return job.Status
	}
	return string(job.State)
}

// jobTracer wraps a store trace writer for one job. A nil-file tracer is
// valid and drops every event, so callers never branch on persistence.
type jobTracer struct {
	w   *store.TraceWriter
	seq int
}

func (s *Server) openTrace(jobID string) *jobTracer {
	if s.runStore == nil || s.dataDir == "" {
		return &jobTracer{}
	}

	w, err := store.NewTraceWriter(s.dataDir, jobID, false)
	if err != nil {
		slog.Warn("Failed to open trace writer", "job_id", jobID, "error", err)
		return &jobTracer{}
	}
	return &jobTracer{w: w}
}

func (t *jobTracer) event(phase string, objective *float64, message string) {
	if t.w == nil {
		return
	}

	entry := store.TraceEntry{
		Seq:       t.seq,
		Phase:     phase,
		Objective: objective,
		Message:   message,
		Timestamp: time.Now(),
	}
	t.seq++

	if err := t.w.Write(entry); err != nil {
		slog.Warn("Failed to write trace entry", "error", err)
	}
}

func (t *jobTracer) close() {
	if t.w == nil {
		return
	}
	if err := t.w.Close(); err != nil {
		slog.Warn("Failed to close trace writer", "error", err)
	}
}
