package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/optikit/optikit/internal/server"
	"github.com/optikit/optikit/internal/solver"
	"github.com/optikit/optikit/internal/tools"
	"github.com/spf13/cobra"
)

var (
	runTool        string
	runRequestPath string
	runOutPath     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single tool invocation",
	Long:  `Reads a JSON request file, runs the named tool synchronously, and writes the normalized result.`,
	RunE:  runSolve,
}

func init() {
	runCmd.Flags().StringVar(&runTool, "tool", "", "Tool name (e.g. optimize_allocation)")
	runCmd.Flags().StringVar(&runRequestPath, "request", "", "Request JSON path (required)")
	runCmd.Flags().StringVar(&runOutPath, "out", "", "Result output path (default stdout)")

	runCmd.MarkFlagRequired("tool")
	runCmd.MarkFlagRequired("request")
	rootCmd.AddCommand(runCmd)
}

func runSolve(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(runRequestPath)
	if err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}

	slog.Info("Starting solve", "tool", runTool, "request", runRequestPath)

	toolbox := tools.New(solver.NewRegistry(), slog.Default())
	validate := validator.New(validator.WithRequiredStructEnabled())

	start := time.Now()
	payload, summary, err := server.Invoke(cmd.Context(), toolbox, validate, runTool, raw)
	if err != nil {
		return fmt.Errorf("solve failed: %w", err)
	}
	elapsed := time.Since(start)

	slog.Info("Solve complete",
		"tool", runTool,
		"status", summary.Status,
		"solver", summary.Solver,
		"elapsed", elapsed,
	)

	var pretty []byte
	{
		var buf any
		if err := json.Unmarshal(payload, &buf); err == nil {
			pretty, _ = json.MarshalIndent(buf, "", "  ")
		} else {
			pretty = payload
		}
	}

	if runOutPath == "" {
		fmt.Println(string(pretty))
	} else {
		if err := os.WriteFile(runOutPath, pretty, 0644); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
		objective := "n/a"
		if summary.Objective != nil {
			objective = fmt.Sprintf("%.6g", *summary.Objective)
		}
		fmt.Printf("Wrote %s (status: %s, objective: %s)\n", runOutPath, summary.Status, objective)
	}

	return nil
}
