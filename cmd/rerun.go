package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/optikit/optikit/internal/server"
	"github.com/optikit/optikit/internal/solver"
	"github.com/optikit/optikit/internal/store"
	"github.com/optikit/optikit/internal/tools"
	"github.com/spf13/cobra"
)

var rerunDataDir string

var rerunCmd = &cobra.Command{
	Use:   "rerun [run-id]",
	Short: "Re-solve a persisted run's request",
	Long: `Loads the request of a persisted run and solves it again with the current
backends. The stored record is left untouched; the fresh result is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runRerun,
}

func init() {
	rerunCmd.Flags().StringVar(&rerunDataDir, "data-dir", "./data", "Base directory for run storage")
	rootCmd.AddCommand(rerunCmd)
}

func runRerun(cmd *cobra.Command, args []string) error {
	runStore, err := store.NewFSStore(rerunDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	record, err := runStore.LoadRun(args[0])
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}

	slog.Info("Re-solving run", "run_id", record.RunID, "tool", record.Tool, "original_status", record.Status)

	toolbox := tools.New(solver.NewRegistry(), slog.Default())
	validate := validator.New(validator.WithRequiredStructEnabled())

	start := time.Now()
	payload, summary, err := server.Invoke(cmd.Context(), toolbox, validate, record.Tool, record.Request)
	if err != nil {
		return fmt.Errorf("re-solve failed: %w", err)
	}

	slog.Info("Re-solve complete",
		"run_id", record.RunID,
		"status", summary.Status,
		"elapsed", time.Since(start),
	)

	var buf any
	if err := json.Unmarshal(payload, &buf); err == nil {
		if pretty, err := json.MarshalIndent(buf, "", "  "); err == nil {
			fmt.Println(string(pretty))
			return nil
		}
	}
	fmt.Println(string(payload))
	return nil
}
