package store

import (
	"encoding/json"
	"time"
)

// RunRecord is the persisted form of one tool invocation.
// All fields are serialized to JSON for persistence.
//
// Payload Handling:
//
// The record keeps the request and result payloads as raw JSON rather than
// typed structs. Each tool has its own request and result shape, and the
// store should not need to change when a tool's payload evolves. The typed
// view lives in the model package; the store only guarantees that what was
// submitted and what came back can be replayed byte for byte.
//
// SAVED STATE:
//   - Request: the request body exactly as submitted
//   - Result: the normalized result payload, present once the run finished
//   - Status: the normalized outcome string (optimal, feasible, infeasible, ...)
//   - Objective: the objective value when the run produced a solution
//
// NOT SAVED:
//   - Solver internals (bases, incumbents, populations). A rerun starts the
//     solve from scratch; records exist for audit and replay, not warm starts.
type RunRecord struct {
	// RunID is the unique identifier for this run
	RunID string `json:"runId"`

	// Tool is the tool name that served the run (allocation, portfolio, ...)
	Tool string `json:"tool"`

	// Status is the normalized outcome; "pending" and "running" are
	// transient states, everything else is terminal
	Status string `json:"status"`

	// Objective is the objective value, nil when the run produced no solution
	Objective *float64 `json:"objective,omitempty"`

	// SolveTimeSeconds is the wall time of the underlying solve
	SolveTimeSeconds float64 `json:"solveTimeSeconds,omitempty"`

	// Request is the submitted request body, verbatim
	Request json.RawMessage `json:"request"`

	// Result is the normalized result payload, nil until the run finished
	Result json.RawMessage `json:"result,omitempty"`

	// Submitted records when the run was accepted
	Submitted time.Time `json:"submitted"`

	// Finished records when the run reached a terminal state
	Finished *time.Time `json:"finished,omitempty"`

	// Error holds the failure message for runs that ended in error
	Error string `json:"error,omitempty"`
}

// RunInfo contains metadata about a run without the request and result
// payloads. Used for listing runs efficiently.
type RunInfo struct {
	// RunID is the unique identifier for this run
	RunID string `json:"runId"`

	// Tool is the tool name that served the run
	Tool string `json:"tool"`

	// Status is the normalized outcome at save time
	Status string `json:"status"`

	// Objective is the objective value, nil when no solution was found
	Objective *float64 `json:"objective,omitempty"`

	// Submitted records when the run was accepted
	Submitted time.Time `json:"submitted"`

	// Finished records when the run reached a terminal state
	Finished *time.Time `json:"finished,omitempty"`
}

// NewRunRecord creates a record for a freshly accepted run.
// This is a helper for converting runtime job state to a persistable record.
func NewRunRecord(runID, tool string, request json.RawMessage) *RunRecord {
	return &RunRecord{
		RunID:     runID,
		Tool:      tool,
		Status:    "pending",
		Request:   request,
		Submitted: time.Now(),
	}
}

// ToInfo converts a full RunRecord to RunInfo (metadata only).
func (r *RunRecord) ToInfo() RunInfo {
	return RunInfo{
		RunID:     r.RunID,
		Tool:      r.Tool,
		Status:    r.Status,
		Objective: r.Objective,
		Submitted: r.Submitted,
		Finished:  r.Finished,
	}
}

// Validate checks if the record has valid data.
// Returns an error if any required field is missing or invalid.
func (r *RunRecord) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if r.Tool == "" {
		return &ValidationError{Field: "Tool", Reason: "cannot be empty"}
	}
	if r.Status == "" {
		return &ValidationError{Field: "Status", Reason: "cannot be empty"}
	}
	if len(r.Request) == 0 {
		return &ValidationError{Field: "Request", Reason: "cannot be empty"}
	}
	if !json.Valid(r.Request) {
		return &ValidationError{Field: "Request", Reason: "must be valid JSON"}
	}
	if len(r.Result) > 0 && !json.Valid(r.Result) {
		return &ValidationError{Field: "Result", Reason: "must be valid JSON"}
	}
	if r.Submitted.IsZero() {
		return &ValidationError{Field: "Submitted", Reason: "cannot be zero"}
	}
	if r.Finished != nil && r.Finished.Before(r.Submitted) {
		return &ValidationError{Field: "Finished", Reason: "cannot precede Submitted"}
	}
	if r.SolveTimeSeconds < 0 {
		return &ValidationError{Field: "SolveTimeSeconds", Reason: "cannot be negative"}
	}
	return nil
}

// ValidationError represents a run record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
