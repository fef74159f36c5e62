package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/hbsbundle/internal/build"
	"github.com/conneroisu/hbsbundle/internal/config"
)

var initCmd = &cobra.Command{
	Use:     "init [dir]",
	Aliases: []string{"i"},
	Short:   "Write a default .hbsbundle.yml",
	Long: `Write a configuration file holding every default into the project
directory. When a package.json is present the bundle namespace is derived
from the package name.

Examples:
  hbsbundle init                  # Initialize the current directory
  hbsbundle init packages/cards   # Initialize another directory
  hbsbundle init --force          # Overwrite an existing configuration`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var initForce bool

// initFs is replaced in tests.
var initFs = afero.NewOsFs()

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := rootDir
	if len(args) == 1 {
		dir = args[0]
	}

	target := filepath.Join(dir, config.FileName)
	exists, err := afero.Exists(initFs, target)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", target, err)
	}
	if exists && !initForce {
		return fmt.Errorf("%s already exists, use --force to overwrite", target)
	}

	cfg := config.Default()
	if pkg, err := build.ReadPackage(initFs, filepath.Join(dir, cfg.Project.PackageJSON)); err == nil {
		if name := build.GlobalName(pkg.Name); name != "" {
			cfg.Project.Namespace = name
		}
	}
	// Bundles follow the namespace unless they name their own global.
	for i := range cfg.Bundles {
		cfg.Bundles[i].GlobalName = ""
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	if err := initFs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := afero.WriteFile(initFs, target, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (namespace %s)\n", target, cfg.Project.Namespace)

	return nil
}
