package handlebars

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/spf13/afero"

	"github.com/conneroisu/hbsbundle/internal/errors"
)

// Preview renders the template at path with data using the Go Handlebars
// runtime. Templates in the same directory whose partial key satisfies the
// partial predicate are available as partials, mirroring what the emitted
// modules register in the browser.
func (t *Transformer) Preview(fs afero.Fs, path string, data interface{}) (string, error) {
	source, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeFileNotFound, "read template", err).
			WithLocation(path, 0, 0)
	}

	tpl, err := raymond.Parse(string(source))
	if err != nil {
		return "", errors.NewTemplateSyntaxError(path, ErrorLine(err), err)
	}

	partials, err := t.siblingPartials(fs, filepath.Dir(path))
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(partials))
	for name := range partials {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tpl.RegisterPartial(name, partials[name])
	}

	out, err := tpl.Exec(data)
	if err != nil {
		return "", errors.NewBuildError(errors.ErrCodeBuildFailed, "render template", err).
			WithLocation(path, 0, 0)
	}

	return out, nil
}

func (t *Transformer) siblingPartials(fs afero.Fs, dir string) (map[string]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "list template directory", err).
			WithLocation(dir, 0, 0)
	}

	partials := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), t.opts.TemplateExtension) {
			continue
		}

		key := PartialName(entry.Name(), t.opts.TemplateExtension)
		if !t.opts.IsPartial(key) {
			continue
		}

		body, err := afero.ReadFile(fs, filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "read partial", err).
				WithLocation(filepath.Join(dir, entry.Name()), 0, 0)
		}
		partials[key] = string(body)
	}

	return partials, nil
}
