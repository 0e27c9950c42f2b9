package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skillmind/skillmind/internal/config"
	"github.com/skillmind/skillmind/internal/logging"
	"github.com/skillmind/skillmind/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var transport string
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the skillmind MCP server, exposing recommend_skill,
record_outcome, and index_status over the chosen transport.

The MCP protocol requires stdout to carry only JSON-RPC messages, so
all diagnostic output goes to the debug log file instead (--debug).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, transport, addr)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio (default); sse is accepted but the server returns a not-implemented error for it")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (sse transport only)")

	return cmd
}

func runServe(cmd *cobra.Command, transport, addr string) error {
	// stdio transport forbids stdout writes once the server starts, so
	// route logging to file here even without --debug (with --debug the
	// root command has already installed its debug-level file logger).
	if !debugMode {
		if logger, cleanup, err := logging.Setup(logging.DefaultConfig()); err == nil {
			slog.SetDefault(logger)
			defer cleanup()
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comps, err := loadComponents(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	server, err := mcp.NewServer(comps.store, comps.router, comps.embedder, comps.cfg)
	if err != nil {
		return fmt.Errorf("failed to construct MCP server: %w", err)
	}
	defer func() { _ = server.Close() }()

	server.SetMetrics(newQueryMetrics(comps))

	watcher, err := config.NewWatcher(".", func(reloaded *config.Config) {
		comps.router.UpdateToolWeights(toRouterToolWeights(reloaded.Router.ToolWeights))
		slog.Info("router_tool_weights_reloaded", slog.Int("tools", len(reloaded.Router.ToolWeights)))
	}, slog.Default())
	if err != nil {
		slog.Warn("config_hot_reload_unavailable", slog.String("error", err.Error()))
	} else {
		defer func() { _ = watcher.Stop() }()
	}

	slog.Info("skillmind serving", slog.String("transport", transport))
	return server.Serve(ctx, transport, addr)
}
