package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FSStore implements the Store interface using filesystem-based persistence.
// Records are stored in a directory structure: <baseDir>/runs/<runID>/
//
// Thread-safety: This implementation uses atomic file operations (rename)
// and does not require locks. Multiple goroutines can safely call methods
// concurrently.
type FSStore struct {
	baseDir string // Root directory for all run data (e.g., "./data")
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

// runDir returns the directory path for a given run ID.
func (fs *FSStore) runDir(runID string) string {
	return filepath.Join(fs.baseDir, "runs", runID)
}

// recordPath returns the path to the run.json file for a run.
func (fs *FSStore) recordPath(runID string) string {
	return filepath.Join(fs.runDir(runID), "run.json")
}

// SaveRun atomically saves the record for the given run.
// Uses temp file + rename pattern to ensure atomicity.
func (fs *FSStore) SaveRun(runID string, record *RunRecord) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}

	runDir := fs.runDir(runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize run record: %w", err)
	}

	// Write to temporary file first (atomic pattern)
	tempPath := fs.recordPath(runID) + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp record file: %w", err)
	}

	// Atomic rename to final location
	finalPath := fs.recordPath(runID)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename record file: %w", err)
	}

	slog.Debug("Run record saved", "runID", runID, "path", finalPath)
	return nil
}

// LoadRun retrieves the record for the given run.
func (fs *FSStore) LoadRun(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	path := fs.recordPath(runID)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat record file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var record RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize run record: %w", err)
	}

	slog.Debug("Run record loaded", "runID", runID, "path", path)
	return &record, nil
}

// ListRuns returns metadata for all persisted runs.
func (fs *FSStore) ListRuns() ([]RunInfo, error) {
	runsDir := filepath.Join(fs.baseDir, "runs")

	if _, err := os.Stat(runsDir); os.IsNotExist(err) {
		// No runs exist yet, return empty slice
		return []RunInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat runs directory: %w", err)
	}

	entries, err := os.ReadDir(runsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	var infos []RunInfo

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		runID := entry.Name()
		recordPath := fs.recordPath(runID)

		if _, err := os.Stat(recordPath); os.IsNotExist(err) {
			continue // Skip directories without run.json
		}

		record, err := fs.LoadRun(runID)
		if err != nil {
			slog.Warn("Failed to load run record for listing", "runID", runID, "error", err)
			continue // Skip corrupted records
		}

		infos = append(infos, record.ToInfo())
	}

	slog.Debug("Listed runs", "count", len(infos))
	return infos, nil
}

// DeleteRun removes the record and all associated artifacts.
func (fs *FSStore) DeleteRun(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	runDir := fs.runDir(runID)

	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		return &NotFoundError{RunID: runID}
	} else if err != nil {
		return fmt.Errorf("failed to stat run directory: %w", err)
	}

	if err := os.RemoveAll(runDir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}

	slog.Debug("Run record deleted", "runID", runID, "path", runDir)
	return nil
}
