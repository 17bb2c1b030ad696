package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setupTestStore creates a temporary directory and returns an FSStore for testing.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir() // Automatically cleaned up after test
	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}

	return store, tempDir
}

// createTestRecord creates a run record with test data.
func createTestRecord(runID string) *RunRecord {
	obj := 130000.0
	finished := time.Now()
	return &RunRecord{
		RunID:            runID,
		Tool:             "allocation",
		Status:           "optimal",
		Objective:        &obj,
		SolveTimeSeconds: 0.042,
		Request:          json.RawMessage(`{"items":[{"name":"alpha","cost":25000,"value":50000}],"budget":100000}`),
		Result:           json.RawMessage(`{"tool":"allocation","status":"optimal","objective_value":130000}`),
		Submitted:        finished.Add(-time.Second),
		Finished:         &finished,
	}
}

func TestNewFSStore(t *testing.T) {
	tempDir := t.TempDir()

	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	if store == nil {
		t.Fatal("Expected non-nil store")
	}

	// Verify base directory was created
	if _, err := os.Stat(tempDir); os.IsNotExist(err) {
		t.Fatal("Base directory was not created")
	}
}

func TestNewFSStoreCreatesMissingDir(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "nested", "data")

	if _, err := NewFSStore(tempDir); err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	if _, err := os.Stat(tempDir); os.IsNotExist(err) {
		t.Fatal("Nested base directory was not created")
	}
}

func TestSaveAndLoadRun(t *testing.T) {
	store, tempDir := setupTestStore(t)

	record := createTestRecord("run-123")
	if err := store.SaveRun("run-123", record); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	// Verify file exists at expected location
	recordPath := filepath.Join(tempDir, "runs", "run-123", "run.json")
	if _, err := os.Stat(recordPath); os.IsNotExist(err) {
		t.Fatal("run.json was not written")
	}

	// No temp file should remain after the atomic rename
	if _, err := os.Stat(recordPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temp file was left behind")
	}

	loaded, err := store.LoadRun("run-123")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}

	if loaded.RunID != record.RunID {
		t.Errorf("RunID mismatch: expected %s, got %s", record.RunID, loaded.RunID)
	}
	if loaded.Tool != "allocation" {
		t.Errorf("Tool mismatch: got %s", loaded.Tool)
	}
	if loaded.Status != "optimal" {
		t.Errorf("Status mismatch: got %s", loaded.Status)
	}
	if loaded.Objective == nil || *loaded.Objective != 130000 {
		t.Errorf("Objective mismatch: got %v", loaded.Objective)
	}
	if string(loaded.Request) == "" {
		t.Error("Request payload was not preserved")
	}

	// The request payload must survive byte-for-byte semantically
	var req map[string]any
	if err := json.Unmarshal(loaded.Request, &req); err != nil {
		t.Fatalf("Loaded request is not valid JSON: %v", err)
	}
	if req["budget"].(float64) != 100000 {
		t.Errorf("Request budget mismatch: got %v", req["budget"])
	}
}

func TestSaveRunOverwrites(t *testing.T) {
	store, _ := setupTestStore(t)

	record := createTestRecord("run-123")
	record.Status = "running"
	record.Objective = nil
	if err := store.SaveRun("run-123", record); err != nil {
		t.Fatalf("First SaveRun failed: %v", err)
	}

	record.Status = "optimal"
	obj := 42.0
	record.Objective = &obj
	if err := store.SaveRun("run-123", record); err != nil {
		t.Fatalf("Second SaveRun failed: %v", err)
	}

	loaded, err := store.LoadRun("run-123")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if loaded.Status != "optimal" {
		t.Errorf("Expected overwritten status optimal, got %s", loaded.Status)
	}
	if loaded.Objective == nil || *loaded.Objective != 42 {
		t.Errorf("Expected overwritten objective 42, got %v", loaded.Objective)
	}
}

func TestSaveRunValidation(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.SaveRun("", createTestRecord("x")); err == nil {
		t.Error("Expected error for empty runID")
	}

	if err := store.SaveRun("run-123", nil); err == nil {
		t.Error("Expected error for nil record")
	}
}

func TestLoadRunNotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.LoadRun("nonexistent")
	if err == nil {
		t.Fatal("Expected error for missing run")
	}

	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	var nfe *NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("Expected *NotFoundError, got %T", err)
	}
	if nfe.RunID != "nonexistent" {
		t.Errorf("NotFoundError should carry run ID, got %q", nfe.RunID)
	}
}

func TestLoadRunCorrupted(t *testing.T) {
	store, tempDir := setupTestStore(t)

	runDir := filepath.Join(tempDir, "runs", "run-bad")
	if err := os.MkdirAll(runDir, 0755); err != nil {
		t.Fatalf("Failed to create run dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "run.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write corrupted record: %v", err)
	}

	if _, err := store.LoadRun("run-bad"); err == nil {
		t.Error("Expected error for corrupted record")
	}
}

func TestListRunsEmpty(t *testing.T) {
	store, _ := setupTestStore(t)

	infos, err := store.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}

	if len(infos) != 0 {
		t.Errorf("Expected empty list, got %d entries", len(infos))
	}
}

func TestListRuns(t *testing.T) {
	store, tempDir := setupTestStore(t)

	for _, id := range []string{"run-1", "run-2", "run-3"} {
		record := createTestRecord(id)
		if err := store.SaveRun(id, record); err != nil {
			t.Fatalf("SaveRun(%s) failed: %v", id, err)
		}
	}

	// A directory without run.json must be skipped
	if err := os.MkdirAll(filepath.Join(tempDir, "runs", "run-empty"), 0755); err != nil {
		t.Fatalf("Failed to create empty run dir: %v", err)
	}

	// A corrupted record must be skipped, not fail the listing
	badDir := filepath.Join(tempDir, "runs", "run-bad")
	if err := os.MkdirAll(badDir, 0755); err != nil {
		t.Fatalf("Failed to create bad run dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(badDir, "run.json"), []byte("garbage"), 0644); err != nil {
		t.Fatalf("Failed to write bad record: %v", err)
	}

	infos, err := store.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}

	if len(infos) != 3 {
		t.Fatalf("Expected 3 runs, got %d", len(infos))
	}

	seen := make(map[string]bool)
	for _, info := range infos {
		seen[info.RunID] = true
		if info.Tool != "allocation" {
			t.Errorf("Tool mismatch for %s: got %s", info.RunID, info.Tool)
		}
		if info.Status != "optimal" {
			t.Errorf("Status mismatch for %s: got %s", info.RunID, info.Status)
		}
	}
	for _, id := range []string{"run-1", "run-2", "run-3"} {
		if !seen[id] {
			t.Errorf("Run %s missing from listing", id)
		}
	}
}

func TestDeleteRun(t *testing.T) {
	store, tempDir := setupTestStore(t)

	record := createTestRecord("run-123")
	if err := store.SaveRun("run-123", record); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	// Trace artifacts live in the same directory and must go with the record
	tw, err := NewTraceWriter(tempDir, "run-123", false)
	if err != nil {
		t.Fatalf("NewTraceWriter failed: %v", err)
	}
	tw.Write(TraceEntry{Seq: 0, Phase: "submitted", Timestamp: time.Now()})
	tw.Close()

	if err := store.DeleteRun("run-123"); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}

	runDir := filepath.Join(tempDir, "runs", "run-123")
	if _, err := os.Stat(runDir); !os.IsNotExist(err) {
		t.Error("Run directory was not removed")
	}

	if _, err := store.LoadRun("run-123"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestDeleteRunNotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	err := store.DeleteRun("nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentSaves(t *testing.T) {
	store, _ := setupTestStore(t)

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("run-%d", i)
		go func() {
			done <- store.SaveRun(id, createTestRecord(id))
		}()
	}

	for i := 0; i < 10; i++ {
		if err := <-done; err != nil {
			t.Errorf("Concurrent SaveRun failed: %v", err)
		}
	}

	infos, err := store.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns after concurrent saves failed: %v", err)
	}
	if len(infos) != 10 {
		t.Errorf("Expected 10 runs, got %d", len(infos))
	}
}
