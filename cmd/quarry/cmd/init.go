package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/quarrysearch/quarry/configs"
	"github.com/quarrysearch/quarry/internal/output"
)

// newInitCmd creates the init command.
func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create a starter .quarry.yaml",
		Long: `Init writes a commented .quarry.yaml template into the given
directory (default: current directory). The file also pins the corpus
root: commands run from a subdirectory resolve upward to it.

Every setting in the template is commented out, so a fresh file changes
nothing until edited. An existing .quarry.yaml or .quarry.yml is
preserved unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

// runInit writes the embedded config template, preserving user edits.
func runInit(cmd *cobra.Command, dir string, force bool) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("cannot initialize %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cannot initialize %s: not a directory", dir)
	}

	out := output.New(cmd.OutOrStdout())
	yamlPath := filepath.Join(root, ".quarry.yaml")

	if !force {
		// Don't clobber user customizations.
		if _, err := os.Stat(yamlPath); err == nil {
			out.Status("ℹ️ ", "Existing .quarry.yaml preserved (use --force to overwrite)")
			return nil
		}
		// .yml is equally valid, user preference.
		if _, err := os.Stat(filepath.Join(root, ".quarry.yml")); err == nil {
			out.Status("ℹ️ ", "Existing .quarry.yml found, skipping template")
			return nil
		}
	}

	if err := os.WriteFile(yamlPath, []byte(configs.ProjectConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write .quarry.yaml: %w", err)
	}

	out.Statusf("📝", "Created %s", yamlPath)
	out.Status("", "Run 'quarry index' to build the search index.")
	return nil
}
