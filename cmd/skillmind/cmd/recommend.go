package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skillmind/skillmind/internal/mcp"
)

func newRecommendCmd() *cobra.Command {
	var (
		tool          string
		skillID       string
		category      string
		limit         int
		minImportance float64
		jsonOutput    bool
	)

	cmd := &cobra.Command{
		Use:   "recommend <context text>",
		Short: "Recommend skills for a context, from the command line",
		Long: `Query the Pattern Store for skills similar to the given context text,
the same lookup the recommend_skill MCP tool performs. Useful for
inspecting recommendations without a connected AI client.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contextText := strings.Join(args, " ")
			return runRecommend(cmd, contextText, tool, skillID, category, limit, minImportance, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&tool, "tool", "", "Route through the SONA Router for this tool name")
	cmd.Flags().StringVar(&skillID, "skill", "", "Restrict to a specific skill ID")
	cmd.Flags().StringVar(&category, "category", "", "Restrict to a skill category")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of recommendations")
	cmd.Flags().Float64Var(&minImportance, "min-importance", 0, "Minimum pattern importance")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runRecommend(cmd *cobra.Command, contextText, tool, skillID, category string, limit int, minImportance float64, jsonOutput bool) error {
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

	out, err := server.CallTool(ctx, "recommend_skill", map[string]any{
		"context_text":   contextText,
		"tool":           tool,
		"skill_id":       skillID,
		"category":       category,
		"limit":          float64(limit),
		"min_importance": minImportance,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	result, ok := out.(*mcp.RecommendSkillOutput)
	if !ok {
		return fmt.Errorf("unexpected recommend_skill result type")
	}

	if len(result.Recommendations) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no recommendations found")
		return nil
	}

	if result.Routing != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "routed to %s (confidence %.2f, %s)\n\n",
			result.Routing.ExpertID, result.Routing.Confidence, result.Routing.Reason)
	}

	for _, r := range result.Recommendations {
		fmt.Fprintf(cmd.OutOrStdout(), "%d. %-24s similarity=%.3f weighted=%.3f importance=%.3f outcome=%s\n",
			r.Rank, r.SkillID, r.Similarity, r.WeightedSimilarity, r.Importance, r.OutcomeType)
	}

	return nil
}
