// Package cmd provides the CLI commands for skillmind.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/skillmind/skillmind/internal/logging"
	"github.com/skillmind/skillmind/pkg/version"
)

// Debug logging flag
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the skillmind CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skillmind",
		Short: "Skill-discovery MCP server: EWC++ Pattern Store, SONA Router, Swarm Indexer",
		Long: `skillmind is a local-first MCP server that recommends skills to AI
coding assistants (Claude Code, Cursor) based on prior outcomes.

It stores observed (context, skill, outcome) patterns in an EWC++
Pattern Store, routes recommend_skill calls through a SONA
mixture-of-experts Router, and keeps the store's corpus current with a
Swarm Indexer over upstream skill registries.

Run 'skillmind serve' to start the MCP server.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("skillmind version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.skillmind/logs/")
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newRecommendCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging enables debug logging to file when --debug is set.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}

	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))

	return nil
}

// stopLogging flushes and closes the debug log file, if one was opened.
func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		slog.Info("debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
