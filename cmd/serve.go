package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/optikit/optikit/internal/server"
	"github.com/optikit/optikit/internal/solver"
	"github.com/optikit/optikit/internal/store"
	"github.com/optikit/optikit/internal/tools"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	serveDataDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job server",
	Long: `Starts an HTTP server exposing the optimization tools as asynchronous jobs.
Submitted runs are persisted under the data directory unless --data-dir is
set to the empty string.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Base directory for run records (empty disables persistence)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	toolbox := tools.New(solver.NewRegistry(), slog.Default())

	var runStore store.Store
	if serveDataDir != "" {
		fs, err := store.NewFSStore(serveDataDir)
		if err != nil {
			return fmt.Errorf("failed to create run store: %w", err)
		}
		runStore = fs
	}

	srv := server.NewServer(serveAddr, serveDataDir, toolbox, runStore)

	// Shut down cleanly on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("Received signal, shutting down", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Shutdown failed", "error", err)
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
