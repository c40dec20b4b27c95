package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/reasoner/internal/config"
	"github.com/opencode-ai/reasoner/internal/provider"
)

var modelsDir string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List model files",
	Long: `List the model files found in the model directory.

Examples:
  reasoner models                 # Scan the configured model directory
  reasoner models --dir ~/models  # Scan another directory`,
	RunE: runModels,
}

func init() {
	modelsCmd.Flags().StringVar(&modelsDir, "dir", "", "Directory to scan (defaults to the configured model directory)")
}

func runModels(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	dir := modelsDir
	if dir == "" {
		dir = appConfig.ModelDir
	}
	catalog := provider.NewCatalog(dir, appConfig.ModelPattern)
	files, err := catalog.Scan()
	if err != nil {
		return fmt.Errorf("scan %s: %w", catalog.Dir(), err)
	}

	out := cmd.OutOrStdout()
	if len(files) == 0 {
		fmt.Fprintf(out, "No model files in %s\n", catalog.Dir())
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tPATH\t")
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", f.Name, formatSize(f.Size), f.Path)
	}
	return w.Flush()
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
