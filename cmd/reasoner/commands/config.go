package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/reasoner/internal/config"
	"github.com/opencode-ai/reasoner/pkg/types"
)

var (
	configProject bool
	configForce   bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	Long: `Show the configuration after merging the global and project files
and the environment.

Examples:
  reasoner config                 # Print the resolved configuration
  reasoner config paths           # Show where reasoner keeps its files
  reasoner config init --project  # Write a default .reasoner/reasoner.json`,
	RunE: runConfigShow,
}

var configPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show system paths",
	RunE:  runConfigPaths,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the defaults",
	RunE:  runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVar(&configProject, "project", false, "Write the project config instead of the global one")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configPathsCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(appConfig, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigPaths(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	paths := config.GetPaths()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Reasoner Paths:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Config:   %s\n", config.GlobalConfigPath())
	fmt.Fprintf(out, "  Project:  %s\n", config.ProjectConfigPath(workDir))
	fmt.Fprintf(out, "  State:    %s\n", paths.StatePath())
	fmt.Fprintf(out, "  Logs:     %s\n", paths.LogPath())
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.GlobalConfigPath()
	if configProject {
		workDir, err := os.Getwd()
		if err != nil {
			return err
		}
		path = config.ProjectConfigPath(workDir)
	}
	return writeDefaultConfig(cmd, path, configForce)
}

func writeDefaultConfig(cmd *cobra.Command, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := &types.Config{}
	config.ApplyDefaults(cfg)
	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
