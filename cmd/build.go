package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/hbsbundle/internal/build"
	"github.com/conneroisu/hbsbundle/internal/plugins"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Bundle the library for every configured target",
	Long: `Bundle the project entry point once per configured target, bundle the
plain stylesheets into the styles directory, write the distribution
package.json next to the bundles and copy the essential files. Templates
shared by several targets are compiled once.

Examples:
  hbsbundle build                          # Clean the output directory and build
  hbsbundle build --clean=false            # Keep existing outputs
  hbsbundle build --metrics-file m.prom    # Write transform metrics in text format`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

var (
	buildClean       bool
	buildMetricsFile string
)

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().BoolVar(&buildClean, "clean", true, "Remove the output directory before building")
	buildCmd.Flags().StringVar(&buildMetricsFile, "metrics-file", "", "Write Prometheus metrics to this file")
}

func runBuild(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	ctx := commandContext(cmd)

	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	metrics := plugins.NewMetrics()
	pm, err := s.pluginManager(metrics)
	if err != nil {
		return fmt.Errorf("failed to register plugins: %w", err)
	}

	bundler, err := build.NewBundler(s.cfg, build.Options{
		Root:    s.root,
		Fs:      s.fs,
		Plugins: pm,
		Logger:  s.logger,
		Metrics: build.NewMetrics(metrics.Registry()),
	})
	if err != nil {
		return err
	}

	if buildClean {
		if err := bundler.Clean(ctx); err != nil {
			return err
		}
	}

	result, buildErr := bundler.Build(ctx)

	if buildMetricsFile != "" {
		if err := metrics.WriteToTextfile(buildMetricsFile); err != nil {
			s.logger.Warn(ctx, err, "failed to write metrics", "file", buildMetricsFile)
		}
	}

	if buildErr != nil {
		return buildErr
	}

	out := cmd.OutOrStdout()
	for _, b := range result.Bundles {
		fmt.Fprintf(out, "%-10s %s (%v)\n", b.Name, strings.Join(b.Files, ", "), b.Duration.Round(time.Millisecond))
	}
	if len(result.Styles) > 0 {
		fmt.Fprintf(out, "styles     %s\n", strings.Join(result.Styles, ", "))
	}
	if rel, err := filepath.Rel(s.root, result.Manifest); err == nil {
		fmt.Fprintf(out, "manifest   %s\n", filepath.ToSlash(rel))
	}
	if len(result.Copied) > 0 {
		fmt.Fprintf(out, "copied     %s\n", strings.Join(result.Copied, ", "))
	}
	fmt.Fprintf(out, "Build completed in %v\n", time.Since(startTime).Round(time.Millisecond))

	return nil
}

// commandContext returns the command's context, or a background context for
// commands run outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}
