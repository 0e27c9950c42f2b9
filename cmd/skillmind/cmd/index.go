package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skillmind/skillmind/internal/config"
	"github.com/skillmind/skillmind/internal/skillrepo"
	"github.com/skillmind/skillmind/internal/swarm"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Run the Swarm Indexer over configured partitions",
		Long: `Run index_all: fan out a worker per keyspace partition against the
configured Source Adapter, upsert discovered skills into the Skill
Repository, and aggregate the results.

The Source Adapter is a per-registry integration (§6 of the design):
skillmind ships the partitioning, rate limiting, and lock but does not
bundle a concrete registry client. Wire one in before running this
command against a real skill registry.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd)
		},
	}

	return cmd
}

func runIndex(cmd *cobra.Command) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	lock := swarm.NewIndexLock(filepath.Dir(cfg.Indexer.LockPath))
	acquired, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire index lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("another index_all run is already in progress (lock at %s)", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	repoPath := filepath.Join(filepath.Dir(cfg.PatternStore.DBPath), "skills.bleve")
	repo, err := skillrepo.NewBleveRepository(repoPath)
	if err != nil {
		return fmt.Errorf("failed to open skill repository: %w", err)
	}
	defer func() { _ = repo.Close() }()

	partitions := swarm.CreateEmptyPartitions()
	if len(cfg.Indexer.Partitions) > 0 {
		ranges := make([][2]string, 0, len(cfg.Indexer.Partitions))
		for i := 0; i+1 < len(cfg.Indexer.Partitions); i += 2 {
			ranges = append(ranges, [2]string{cfg.Indexer.Partitions[i], cfg.Indexer.Partitions[i+1]})
		}
		if len(ranges) > 0 {
			partitions = swarm.NewPartitions(ranges)
		}
	}

	_ = partitions

	// No Source Adapter is bundled with this build; see the command's
	// long description. Wire a concrete sourceadapter.Adapter
	// implementation here (e.g. against a specific skill registry's API),
	// then construct swarm.New(adapter, repo, swarm.Config{Embedder:
	// embedder, ...}, logger).IndexAll so long indexing runs pace the
	// configured embedder across partitions.
	return fmt.Errorf("no source adapter configured: skillmind does not bundle a registry integration, see 'skillmind index --help'")
}
