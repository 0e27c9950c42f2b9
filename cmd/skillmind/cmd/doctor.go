package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skillmind/skillmind/internal/config"
	"github.com/skillmind/skillmind/internal/embed"
)

// checkStatus classifies a single diagnostic check's outcome.
type checkStatus string

const (
	checkOK   checkStatus = "ok"
	checkWarn checkStatus = "warn"
	checkFail checkStatus = "fail"
)

// checkResult is one diagnostic check's outcome.
type checkResult struct {
	Name     string      `json:"name"`
	Status   checkStatus `json:"status"`
	Message  string      `json:"message"`
	Required bool        `json:"required"`
}

func newDoctorCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run diagnostics to confirm skillmind can operate correctly.

Checks:
  - Pattern Store data directory is writable
  - Embedding provider is reachable (falls back to static if not)
  - Configuration parses and validates`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDoctor(cmd *cobra.Command, jsonOutput bool) error {
	ctx := context.Background()
	results := []checkResult{}

	cfg, err := config.Load(".")
	if err != nil {
		results = append(results, checkResult{
			Name: "configuration", Status: checkFail,
			Message: err.Error(), Required: true,
		})
		cfg = config.NewConfig()
	} else {
		results = append(results, checkResult{
			Name: "configuration", Status: checkOK,
			Message: "configuration loaded and validated", Required: true,
		})
	}

	results = append(results, checkDataDir(cfg.PatternStore.DBPath))
	results = append(results, checkDataDir(cfg.Indexer.LockPath))
	results = append(results, checkEmbedder(ctx, cfg))

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	printResults(cmd, results)

	for _, r := range results {
		if r.Required && r.Status == checkFail {
			return fmt.Errorf("system check failed")
		}
	}
	return nil
}

// checkDataDir verifies the directory holding path is writable, creating
// it if necessary.
func checkDataDir(path string) checkResult {
	if path == "" {
		return checkResult{Name: "data directory", Status: checkOK, Message: "in-memory store, no directory needed"}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return checkResult{
			Name: "data directory", Status: checkFail,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err), Required: true,
		}
	}

	probe := filepath.Join(dir, ".skillmind-write-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return checkResult{
			Name: "data directory", Status: checkFail,
			Message: fmt.Sprintf("%s is not writable: %v", dir, err), Required: true,
		}
	}
	_ = os.Remove(probe)

	return checkResult{Name: "data directory", Status: checkOK, Message: dir, Required: true}
}

// checkEmbedder reports whether the configured embedding provider is
// reachable. Unreachable is a warning, not a failure: the Pattern Store
// falls back to static embeddings.
func checkEmbedder(ctx context.Context, cfg *config.Config) checkResult {
	provider := embed.ParseProvider(cfg.Embedding.Provider)
	embedder, err := embed.NewEmbedder(ctx, provider, cfg.Embedding.Model)
	if err != nil {
		return checkResult{
			Name: "embedding provider", Status: checkWarn,
			Message: fmt.Sprintf("%s unavailable (%v), falls back to static embeddings", provider, err),
		}
	}
	defer func() { _ = embedder.Close() }()

	info := embed.GetInfo(ctx, embedder)
	if !info.Available {
		return checkResult{
			Name: "embedding provider", Status: checkWarn,
			Message: fmt.Sprintf("%s configured but not currently available", info.Provider),
		}
	}
	return checkResult{
		Name: "embedding provider", Status: checkOK,
		Message: fmt.Sprintf("%s (%s, %d dims)", info.Provider, info.Model, info.Dimensions),
	}
}

func printResults(cmd *cobra.Command, results []checkResult) {
	w := cmd.OutOrStdout()
	for _, r := range results {
		symbol := "✓"
		color := "32" // green
		switch r.Status {
		case checkWarn:
			symbol = "!"
			color = "33" // yellow
		case checkFail:
			symbol = "✗"
			color = "31" // red
		}
		fmt.Fprintf(w, "%s %-20s %s\n", ansiColor(w, color, symbol), r.Name, r.Message)
	}
}
