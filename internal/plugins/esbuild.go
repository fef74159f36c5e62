package plugins

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/afero"

	"github.com/conneroisu/hbsbundle/internal/errors"
	"github.com/conneroisu/hbsbundle/internal/transform"
)

// pluginPrefix namespaces plugin names inside esbuild diagnostics.
const pluginPrefix = "hbsbundle:"

// ESBuildPlugins adapts every registered transform to an esbuild plugin, in
// execution order. esbuild uses the first load result that sets contents,
// so earlier plugins shadow later ones for shared extensions.
func (pm *PluginManager) ESBuildPlugins() []api.Plugin {
	ordered := pm.ordered()

	out := make([]api.Plugin, 0, len(ordered))
	for _, e := range ordered {
		out = append(out, pm.esbuildPlugin(e.transformer))
	}

	return out
}

func (pm *PluginManager) esbuildPlugin(t transform.Transformer) api.Plugin {
	name := pluginPrefix + t.Name()
	filter := ExtensionFilter(t.Extensions())

	return api.Plugin{
		Name: name,
		Setup: func(build api.PluginBuild) {
			if filter == "" {
				return
			}
			build.OnLoad(api.OnLoadOptions{Filter: filter, Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					return pm.load(t, name, args.Path), nil
				})
		},
	}
}

// load runs t on the file at path and converts the outcome into an esbuild
// load result. An empty result lets esbuild load the file itself.
func (pm *PluginManager) load(t transform.Transformer, pluginName, path string) api.OnLoadResult {
	ctx := context.Background()

	source, err := afero.ReadFile(pm.fs, path)
	if err != nil {
		ioErr := errors.NewIOError(errors.ErrCodeFileNotFound, "read source", err).WithLocation(path, 0, 0)
		return api.OnLoadResult{PluginName: pluginName, Errors: []api.Message{toMessage(ioErr)}}
	}

	res, err := pm.run(ctx, t, transform.Request{Source: string(source), FileID: path})
	if err != nil {
		return api.OnLoadResult{PluginName: pluginName, Errors: []api.Message{toMessage(err)}}
	}
	if res == nil {
		return api.OnLoadResult{}
	}

	contents, err := withInlineMap(res)
	if err != nil {
		return api.OnLoadResult{PluginName: pluginName, Errors: []api.Message{toMessage(err)}}
	}

	return api.OnLoadResult{
		PluginName: pluginName,
		Contents:   &contents,
		ResolveDir: filepath.Dir(path),
		Loader:     LoaderFor(res.Lang),
	}
}

// withInlineMap appends the result's source map as a data URL comment.
func withInlineMap(res *transform.Result) (string, error) {
	if res.Map == nil {
		return res.Code, nil
	}

	comment, err := res.Map.InlineComment()
	if err != nil {
		return "", errors.NewInternalError(errors.ErrCodeInternalError, "encode source map", err)
	}

	code := res.Code
	if !strings.HasSuffix(code, "\n") {
		code += "\n"
	}

	return code + comment + "\n", nil
}

func toMessage(err error) api.Message {
	msg := api.Message{Text: err.Error()}
	if file, line, col, ok := errors.Location(err); ok {
		msg.Location = &api.Location{File: file, Line: line, Column: col}
	}

	return msg
}

// ExtensionFilter builds an esbuild filter matching paths that end with any
// of exts. It returns "" for an empty list.
func ExtensionFilter(exts []string) string {
	if len(exts) == 0 {
		return ""
	}

	quoted := make([]string, 0, len(exts))
	for _, ext := range exts {
		quoted = append(quoted, regexp.QuoteMeta(ext))
	}

	return "(" + strings.Join(quoted, "|") + ")$"
}

// LoaderFor maps a transform result language to an esbuild loader.
func LoaderFor(lang string) api.Loader {
	switch lang {
	case "ts":
		return api.LoaderTS
	case "tsx":
		return api.LoaderTSX
	case "jsx":
		return api.LoaderJSX
	default:
		return api.LoaderJS
	}
}
