package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/optikit/optikit/internal/model"
	"github.com/optikit/optikit/internal/store"
	"github.com/optikit/optikit/internal/tools"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	toolbox    *tools.Toolbox
	runStore   store.Store
	validate   *validator.Validate
	addr       string
	dataDir    string
	server     *http.Server
}

// NewServer creates a new HTTP server. runStore may be nil, in which case
// finished runs are kept in memory only. dataDir is the base directory of
// the run store and is needed for trace artifacts; pass "" when runStore
// is nil.
func NewServer(addr, dataDir string, tb *tools.Toolbox, runStore store.Store) *Server {
	return &Server{
		jobManager: NewJobManager(),
		toolbox:    tb,
		runStore:   runStore,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		addr:       addr,
		dataDir:    dataDir,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Register API routes
	mux.HandleFunc("/api/v1/tools", s.handleListTools)
	mux.HandleFunc("/api/v1/tools/", s.handleToolInvoke)
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)

	// Wrap with middleware
	handler := s.loggingMiddleware(s.corsMiddleware(mux))

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: handler,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleListTools handles GET /api/v1/tools
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"tools": knownTools})
}

// handleToolInvoke handles POST /api/v1/tools/:name, running the tool
// synchronously. The response body is the tool result; callers needing
// progress or persistence submit a job instead.
func (s *Server) handleToolInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tool := strings.TrimPrefix(r.URL.Path, "/api/v1/tools/")
	if tool == "" || strings.Contains(tool, "/") {
		http.Error(w, "Tool name required", http.StatusBadRequest)
		return
	}
	if !isKnownTool(tool) {
		writeJSON(w, http.StatusNotFound, model.Summary{
			Tool:    tool,
			Status:  model.StatusError,
			Message: fmt.Sprintf("unknown tool %q", tool),
		})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, model.Summary{
			Tool:    tool,
			Status:  model.StatusError,
			Message: fmt.Sprintf("failed to read request: %v", err),
		})
		return
	}

	result, _, err := Invoke(r.Context(), s.toolbox, s.validate, tool, body)
	if err != nil {
		status := http.StatusInternalServerError
		var verr *model.ValidationError
		var serr validator.ValidationErrors
		if errors.As(err, &verr) || errors.As(err, &serr) || strings.Contains(err.Error(), "request payload") {
			status = http.StatusBadRequest
		}
		// same Summary envelope the tools emit for solver failures
		writeJSON(w, status, model.Summary{
			Tool:    tool,
			Status:  model.StatusError,
			Message: err.Error(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(result)
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	// Parse job ID from path
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]

	// Route based on subpath
	if len(parts) == 1 || parts[1] == "status" {
		s.handleGetJobStatus(w, r, jobID)
	} else if parts[1] == "result" {
		s.handleGetJobResult(w, r, jobID)
	} else if parts[1] == "trace" {
		s.handleGetJobTrace(w, r, jobID)
	} else if parts[1] == "stream" {
		s.handleJobStream(w, r, jobID)
	} else {
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// createJobRequest is the body of POST /api/v1/jobs.
type createJobRequest struct {
	Tool    string          `json:"tool" validate:"required"`
	Request json.RawMessage `json:"request" validate:"required"`
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var body createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if err := s.validate.Struct(&body); err != nil {
		http.Error(w, fmt.Sprintf("Invalid job: %v", err), http.StatusBadRequest)
		return
	}

	if !isKnownTool(body.Tool) {
		http.Error(w, fmt.Sprintf("Unknown tool: %s", body.Tool), http.StatusBadRequest)
		return
	}

	// Create job
	job := s.jobManager.CreateJob(body.Tool, body.Request)

	// Start worker in background
	go s.runJob(context.Background(), job.ID)

	// Return job
	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobManager.ListJobs()

	writeJSON(w, http.StatusOK, jobs)
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	// Compute elapsed time
	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	// Create response
	response := map[string]any{
		"id":        job.ID,
		"state":     job.State,
		"tool":      job.Tool,
		"status":    job.Status,
		"objective": job.Objective,
		"elapsed":   elapsed.Seconds(),
		"startTime": job.StartTime,
		"endTime":   job.EndTime,
		"error":     job.Error,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleGetJobResult handles GET /api/v1/jobs/:id/result
func (s *Server) handleGetJobResult(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	if len(job.Result) == 0 {
		http.Error(w, "No result yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(job.Result)
}

// handleGetJobTrace handles GET /api/v1/jobs/:id/trace
func (s *Server) handleGetJobTrace(w http.ResponseWriter, r *http.Request, jobID string) {
	if s.dataDir == "" {
		http.Error(w, "Tracing not enabled", http.StatusNotFound)
		return
	}

	tr, err := store.NewTraceReader(s.dataDir, jobID)
	if err != nil {
		http.Error(w, "Trace not found", http.StatusNotFound)
		return
	}
	defer tr.Close()

	entries, err := tr.ReadAll()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read trace: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
