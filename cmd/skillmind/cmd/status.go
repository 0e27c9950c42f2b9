package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skillmind/skillmind/internal/mcp"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show Pattern Store, Router, and Indexer health",
		Long: `Display the same information the index_status MCP tool reports:
  - Pattern count and average importance in the EWC++ Pattern Store
  - SONA Router expert health and decision cache size
  - Recent consolidation history
  - The most recent Swarm Indexer run, if one has completed`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, jsonOutput bool) error {
	ctx := context.Background()

	comps, err := loadComponents(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	server, err := mcp.NewServer(comps.store, comps.router, comps.embedder, comps.cfg)
	if err != nil {
		return fmt.Errorf("failed to construct server: %w", err)
	}
	defer func() { _ = server.Close() }()

	out, err := server.CallTool(ctx, "index_status", nil)
	if err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	status, ok := out.(*mcp.IndexStatusOutput)
	if !ok {
		return fmt.Errorf("unexpected index_status result type")
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Pattern Store\n")
	fmt.Fprintf(w, "  patterns:           %d\n", status.Patterns.PatternCount)
	fmt.Fprintf(w, "  avg importance:     %.3f\n", status.Patterns.AverageImportance)
	if status.Patterns.LastConsolidatedAt != "" {
		fmt.Fprintf(w, "  last consolidated:  %s\n", status.Patterns.LastConsolidatedAt)
	}

	fmt.Fprintf(w, "\nSONA Router\n")
	fmt.Fprintf(w, "  experts:            %d\n", status.Router.ExpertCount)
	fmt.Fprintf(w, "  healthy:            %s\n", joinOrNone(status.Router.HealthyExperts))
	fmt.Fprintf(w, "  degraded:           %s\n", joinOrNone(status.Router.DegradedExpert))
	fmt.Fprintf(w, "  decision cache:     %d entries\n", status.Router.CacheSize)

	if status.Consolidation != nil {
		fmt.Fprintf(w, "\nConsolidation history\n")
		fmt.Fprintf(w, "  runs:               %d\n", status.Consolidation.RunCount)
		fmt.Fprintf(w, "  avg preservation:   %.3f\n", status.Consolidation.AveragePreservation)
		fmt.Fprintf(w, "  lowest preservation: %.3f\n", status.Consolidation.LowestPreservation)
		fmt.Fprintf(w, "  below threshold:    %d\n", status.Consolidation.BelowThresholdCount)
	}

	if status.Indexing != nil {
		fmt.Fprintf(w, "\nSwarm Indexer\n")
		fmt.Fprintf(w, "  status:             %s\n", status.Indexing.Status)
		fmt.Fprintf(w, "  workers:            %d/%d completed, %d failed\n",
			status.Indexing.WorkersCompleted, status.Indexing.WorkersTotal, status.Indexing.WorkersFailed)
		fmt.Fprintf(w, "  repositories:       %d indexed of %d found\n",
			status.Indexing.RepositoriesIndex, status.Indexing.RepositoriesFound)
	} else {
		fmt.Fprintf(w, "\nSwarm Indexer\n  status:             no run recorded (run 'skillmind index')\n")
	}

	return nil
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
