package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/hbsbundle/internal/handlebars"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List the templates of the project",
	Long: `List the templates under the source directory with the key they are
registered under and whether they register as a partial.

Examples:
  hbsbundle list                  # List templates in table format
  hbsbundle list -f json          # Output as JSON (short flag)
  hbsbundle list --format yaml    # Output as YAML
  hbsbundle list -p               # List the registered plugins instead`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var (
	listFlags   *StandardFlags
	listPlugins bool
)

func init() {
	rootCmd.AddCommand(listCmd)

	listFlags = AddStandardFlags(listCmd, "output")

	listCmd.Flags().BoolVarP(&listPlugins, "plugins", "p", false, "List the registered plugins")
}

// TemplateInfo describes one template file.
type TemplateInfo struct {
	Path    string `json:"path" yaml:"path"`
	Key     string `json:"key" yaml:"key"`
	Partial bool   `json:"partial" yaml:"partial"`
}

func runList(cmd *cobra.Command, args []string) error {
	if err := listFlags.ValidateFlags(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	format := strings.ToLower(listFlags.OutputFormat)

	if listPlugins {
		pm, err := s.pluginManager(nil)
		if err != nil {
			return fmt.Errorf("failed to register plugins: %w", err)
		}
		infos := pm.ListPlugins()

		if format == "table" {
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPRIORITY\tEXTENSIONS")
			fmt.Fprintln(w, "----\t--------\t----------")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%d\t%s\n", info.Name, info.Priority, strings.Join(info.Extensions, ", "))
			}
			return w.Flush()
		}
		return encode(out, format, infos)
	}

	opts, err := s.cfg.TemplateOptions()
	if err != nil {
		return err
	}
	t, err := handlebars.NewTransformer(opts)
	if err != nil {
		return err
	}

	templates, err := findTemplates(s.fs, filepath.Join(s.root, s.cfg.Project.Source), t)
	if err != nil {
		return err
	}

	if format == "table" {
		return outputTemplateTable(out, templates)
	}

	return encode(out, format, templates)
}

// findTemplates walks dir for files with the template extension. Paths are
// relative to dir and use forward slashes.
func findTemplates(fs afero.Fs, dir string, t *handlebars.Transformer) ([]TemplateInfo, error) {
	ext := t.Options().TemplateExtension

	var templates []TemplateInfo
	err := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ext) {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		templates = append(templates, TemplateInfo{
			Path:    filepath.ToSlash(rel),
			Key:     handlebars.PartialName(path, ext),
			Partial: t.IsPartial(path),
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	sort.Slice(templates, func(i, j int) bool { return templates[i].Path < templates[j].Path })

	return templates, nil
}

func outputTemplateTable(out io.Writer, templates []TemplateInfo) error {
	if len(templates) == 0 {
		_, err := fmt.Fprintln(out, "No templates found.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tKEY\tPARTIAL")
	fmt.Fprintln(w, "----\t---\t-------")
	for _, tpl := range templates {
		fmt.Fprintf(w, "%s\t%s\t%t\n", tpl.Path, tpl.Key, tpl.Partial)
	}
	fmt.Fprintf(w, "\nTotal: %d templates\n", len(templates))

	return w.Flush()
}

func encode(out io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		defer encoder.Close()
		return encoder.Encode(v)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}
