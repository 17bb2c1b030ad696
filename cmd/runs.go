package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/optikit/optikit/internal/store"
	"github.com/spf13/cobra"
)

var (
	runsDataDir   string
	keepLast      int
	olderThanDays int
	forceClean    bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage persisted optimization runs",
	Long: `Manage persisted run records including listing, inspecting, and cleaning
old runs. Records are written by the serve command for every finished job.`,
}

var listRunsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all persisted runs",
	Long:  `Display all run records with metadata including run ID, tool, status, objective, and file sizes.`,
	RunE:  runListRuns,
}

var showRunCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Print a run record",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowRun,
}

var cleanRunsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old runs",
	Long: `Delete old run records based on retention policy.
You can specify how many runs to keep or delete runs older than N days.`,
	RunE: runCleanRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.AddCommand(listRunsCmd)
	runsCmd.AddCommand(showRunCmd)
	runsCmd.AddCommand(cleanRunsCmd)

	runsCmd.PersistentFlags().StringVar(&runsDataDir, "data-dir", "./data", "Base directory for run storage")

	cleanRunsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the last N runs (0 = keep all)")
	cleanRunsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanRunsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListRuns(cmd *cobra.Command, args []string) error {
	runStore, err := store.NewFSStore(runsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	infos, err := runStore.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	// Newest first
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Submitted.After(infos[j].Submitted)
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tTOOL\tSTATUS\tOBJECTIVE\tSUBMITTED\tSIZE")
	fmt.Fprintln(w, "------\t----\t------\t---------\t---------\t----")

	for _, info := range infos {
		runDir := filepath.Join(runsDataDir, "runs", info.RunID)
		size, err := getDirSize(runDir)
		sizeStr := "unknown"
		if err == nil {
			sizeStr = formatBytes(size)
		}

		objective := "-"
		if info.Objective != nil {
			objective = fmt.Sprintf("%.6g", *info.Objective)
		}

		submitted := info.Submitted.Format("2006-01-02 15:04:05")

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(info.RunID),
			info.Tool,
			info.Status,
			objective,
			submitted,
			sizeStr,
		)
	}

	w.Flush()

	fmt.Printf("\nTotal runs: %d\n", len(infos))
	return nil
}

func runShowRun(cmd *cobra.Command, args []string) error {
	runStore, err := store.NewFSStore(runsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	record, err := runStore.LoadRun(args[0])
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	fmt.Println(string(data))
	return nil
}

func runCleanRuns(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	runStore, err := store.NewFSStore(runsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	infos, err := runStore.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No runs to clean.")
		return nil
	}

	toDelete := selectRunsForDeletion(infos, keepLast, olderThanDays)

	if len(toDelete) == 0 {
		fmt.Println("No runs match deletion criteria.")
		return nil
	}

	fmt.Printf("Found %d run(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Printf("  - %s (%s, %s)\n",
			shortID(info.RunID),
			info.Tool,
			info.Submitted.Format("2006-01-02 15:04:05"),
		)
	}

	// Ask for confirmation unless --force is set
	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		err := runStore.DeleteRun(info.RunID)
		if err != nil {
			slog.Error("Failed to delete run", "run_id", info.RunID, "error", err)
			failed++
		} else {
			slog.Info("Deleted run", "run_id", info.RunID)
			deleted++
		}
	}

	fmt.Printf("\nDeleted %d run(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRunsForDeletion determines which runs should be deleted based on retention policy
func selectRunsForDeletion(infos []store.RunInfo, keepLast int, olderThanDays int) []store.RunInfo {
	var toDelete []store.RunInfo
	selected := make(map[string]bool)

	// Apply age-based deletion
	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Submitted.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.RunID] = true
			}
		}
	}

	// Apply count-based deletion: keep the newest keepLast runs, drop the rest
	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.RunInfo, len(infos))
		copy(sorted, infos)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Submitted.Before(sorted[j].Submitted)
		})

		numToDelete := len(sorted) - keepLast
		for i := 0; i < numToDelete; i++ {
			if !selected[sorted[i].RunID] {
				toDelete = append(toDelete, sorted[i])
				selected[sorted[i].RunID] = true
			}
		}
	}

	return toDelete
}

// shortID truncates a run ID for display
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
