package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/hbsbundle/internal/handlebars"
)

var renderCmd = &cobra.Command{
	Use:     "render <file>",
	Aliases: []string{"r"},
	Short:   "Render a template with JSON data",
	Long: `Render a template in Go with the given data. Partials in the same
directory are available under their partial key, as in the browser.

Examples:
  hbsbundle render src/card.hbs --data '{"name":"Ada"}'
  hbsbundle render src/card.hbs --data @card.json
  hbsbundle render src/card.hbs --data-file card.json`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var renderFlags *StandardFlags

func init() {
	rootCmd.AddCommand(renderCmd)

	renderFlags = AddStandardFlags(renderCmd, "data")
}

func runRender(cmd *cobra.Command, args []string) error {
	if err := renderFlags.ValidateFlags(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	data, err := renderFlags.ParseData()
	if err != nil {
		return err
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	opts, err := s.cfg.TemplateOptions()
	if err != nil {
		return err
	}
	t, err := handlebars.NewTransformer(opts)
	if err != nil {
		return err
	}

	path, err := templatePath(args[0])
	if err != nil {
		return err
	}

	out, err := t.Preview(s.fs, path, data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), out)

	return err
}
