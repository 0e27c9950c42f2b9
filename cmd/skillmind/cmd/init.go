package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skillmind/skillmind/configs"
)

const projectConfigFile = ".skillmind.yaml"

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a project configuration file",
		Long: `Create .skillmind.yaml in the current directory from a template,
for version-controlled Pattern Store, Router, and Indexer tuning.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing .skillmind.yaml")

	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	if fileExists(projectConfigFile) && !force {
		fmt.Fprintf(cmd.OutOrStdout(), "%s already exists (use --force to overwrite)\n", projectConfigFile)
		return nil
	}

	if err := os.WriteFile(projectConfigFile, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", projectConfigFile, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", projectConfigFile)
	return nil
}
