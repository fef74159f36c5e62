package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/conneroisu/hbsbundle/internal/errors"
	"github.com/conneroisu/hbsbundle/internal/transform"
)

var compileCmd = &cobra.Command{
	Use:     "compile <file>",
	Aliases: []string{"c"},
	Short:   "Print the module a source file is transformed into",
	Long: `Run a single file through the configured plugins and print the resulting
module. Templates become precompiled ES modules; elided stylesheets become
empty modules.

Examples:
  hbsbundle compile src/card.hbs                   # Module with inline source map
  hbsbundle compile src/card.hbs --no-map          # Module only
  hbsbundle compile src/card.hbs --map-out card.map  # Source map written beside`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

var (
	compileNoMap  bool
	compileMapOut string
)

func init() {
	rootCmd.AddCommand(compileCmd)

	compileCmd.Flags().BoolVar(&compileNoMap, "no-map", false, "Omit the source map")
	compileCmd.Flags().StringVar(&compileMapOut, "map-out", "", "Write the source map to this file instead of inlining it")
}

func runCompile(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	pm, err := s.pluginManager(nil)
	if err != nil {
		return fmt.Errorf("failed to register plugins: %w", err)
	}

	path, err := templatePath(args[0])
	if err != nil {
		return err
	}
	source, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return errors.NewIOError(errors.ErrCodeFileNotFound, "read source", err).WithLocation(path, 0, 0)
	}

	res, plugin, err := pm.Transform(ctx, transform.Request{Source: string(source), FileID: path})
	if err != nil {
		return err
	}
	if res == nil {
		return fmt.Errorf("no plugin handles %s", args[0])
	}
	s.logger.Debug(ctx, "transformed", "plugin", plugin, "file", path)

	code := res.Code
	if res.Map != nil && !compileNoMap {
		if !strings.HasSuffix(code, "\n") {
			code += "\n"
		}

		if compileMapOut != "" {
			data, err := res.Map.MarshalJSON()
			if err != nil {
				return errors.NewInternalError(errors.ErrCodeInternalError, "encode source map", err)
			}
			if err := afero.WriteFile(s.fs, compileMapOut, data, 0o644); err != nil {
				return errors.NewIOError(errors.ErrCodeFileWrite, "write source map", err).
					WithLocation(compileMapOut, 0, 0)
			}
			code += "//# sourceMappingURL=" + filepath.Base(compileMapOut) + "\n"
		} else {
			comment, err := res.Map.InlineComment()
			if err != nil {
				return errors.NewInternalError(errors.ErrCodeInternalError, "encode source map", err)
			}
			code += comment + "\n"
		}
	}

	_, err = fmt.Fprint(cmd.OutOrStdout(), code)

	return err
}
