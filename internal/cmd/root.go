// Package cmd implements the tailorbatch CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tailorforge/tailorbatch/internal/observability"
	"github.com/tailorforge/tailorbatch/internal/server/handlers"
)

var rootCmd = &cobra.Command{
	Use:   "tailorbatch",
	Short: "Batch orchestrator for resume tailoring",
	Long: `tailorbatch runs batches of resume tailoring work items with bounded
parallelism, per-item deadlines, and failure isolation.

Run a one-shot batch from a manifest with "tailorbatch run", or start
the HTTP API with "tailorbatch serve".`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return observability.InitLogging(logLevel, logProfile)
	},
}

var (
	logLevel   string
	logProfile string
)

// versionInfo holds build metadata injected at link time.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version: "dev",
}

// SetVersionInfo records build metadata for the version command and
// the version endpoint. Called from main before Execute.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	handlers.SetVersionInfo(version, commit, buildDate)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logProfile, "log-profile", "cli", "Log output profile (cli|structured)")
}

// exitCodeError carries a process exit code alongside the error.
type exitCodeError struct {
	code    int
	message string
	err     error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return e.message
	}
	return fmt.Sprintf("%s: %v", e.message, e.err)
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}

// exitError creates an error that will cause the CLI to exit with the
// given code.
func exitError(code int, message string, err error) error {
	return &exitCodeError{code: code, message: message, err: err}
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	defer observability.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		return 1
	}
	return 0
}
