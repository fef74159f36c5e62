package plugins

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/hbsbundle/internal/handlebars"
	"github.com/conneroisu/hbsbundle/internal/replace"
	"github.com/conneroisu/hbsbundle/internal/sourcemap"
	"github.com/conneroisu/hbsbundle/internal/transform"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newBuiltinManager(t *testing.T, metrics *Metrics) *PluginManager {
	t.Helper()

	pm := NewPluginManager(afero.NewOsFs(), nil, metrics)
	require.NoError(t, pm.RegisterBuiltins(BuiltinOptions{
		Templates:       handlebars.DefaultOptions(),
		ElideExtensions: []string{".scss"},
		ReplacePatterns: []replace.Pattern{{Test: `\./conf/conf1`, Replace: "./conf/conf2"}},
	}))

	return pm
}

func bundle(t *testing.T, dir string, pm *PluginManager) api.BuildResult {
	t.Helper()

	return api.Build(api.BuildOptions{
		AbsWorkingDir: dir,
		EntryPoints:   []string{filepath.Join(dir, "src", "index.js")},
		Outfile:       filepath.Join(dir, "out", "bundle.js"),
		Bundle:        true,
		Write:         false,
		Format:        api.FormatESModule,
		Sourcemap:     api.SourceMapExternal,
		External:      []string{handlebars.DefaultRuntimeModuleID},
		Plugins:       pm.ESBuildPlugins(),
		LogLevel:      api.LogLevelSilent,
	})
}

func outputs(result api.BuildResult) map[string]string {
	out := make(map[string]string, len(result.OutputFiles))
	for _, f := range result.OutputFiles {
		out[filepath.Base(f.Path)] = string(f.Contents)
	}

	return out
}

func TestESBuildBundlesTemplates(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/index.js": strings.Join([]string{
			"import card from './card.hbs';",
			"import './_header.hbs';",
			"import styles from './styles.scss';",
			"import conf from './conf/conf1';",
			"export function render(data) { return card(data) + String(styles) + conf; }",
		}, "\n"),
		"src/card.hbs":      "<div>{{name}}</div>",
		"src/_header.hbs":   "<h1>{{title}}</h1>",
		"src/styles.scss":   "body { color: red; }",
		"src/conf/conf1.js": "export default 'conf-one';",
		"src/conf/conf2.js": "export default 'conf-two';",
	})

	metrics := NewMetrics()
	result := bundle(t, dir, newBuiltinManager(t, metrics))
	require.Empty(t, result.Errors, "%v", result.Errors)

	files := outputs(result)
	js, ok := files["bundle.js"]
	require.True(t, ok, "bundle.js missing from %v", files)

	assert.Contains(t, js, `from "handlebars/runtime"`)
	assert.Contains(t, js, `registerPartial("_header"`)
	assert.Contains(t, js, "escapeExpression")
	assert.Contains(t, js, "conf-two")
	assert.NotContains(t, js, "conf-one")
	assert.NotContains(t, js, "color: red")

	smap, ok := files["bundle.js.map"]
	require.True(t, ok)
	assert.Contains(t, smap, "card.hbs")

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.transforms.WithLabelValues("handlebars", OutcomeTransformed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transforms.WithLabelValues("elide", OutcomeTransformed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transforms.WithLabelValues("replace", OutcomeTransformed)))
}

func TestESBuildReportsTemplateErrors(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/index.js":   "import broken from './broken.hbs';\nexport default broken;\n",
		"src/broken.hbs": "<p>\n{{#if a}}x{{/each}}\n</p>",
	})

	result := bundle(t, dir, newBuiltinManager(t, nil))
	require.NotEmpty(t, result.Errors)

	msg := result.Errors[0]
	assert.Contains(t, msg.Text, "broken.hbs")
	assert.Contains(t, msg.Text, "template syntax error")
	assert.Equal(t, "hbsbundle:handlebars", msg.PluginName)
	require.NotNil(t, msg.Location)
	assert.Greater(t, msg.Location.Line, 0)
}

func TestLoadPassThroughAndMissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/a.other", []byte("x"), 0o644))

	pm := NewPluginManager(fs, nil, nil)
	tr := &fakeTransformer{name: "fake", ext: ".hbs"}

	res := pm.load(tr, "fake", "/src/a.other")
	assert.Nil(t, res.Contents)
	assert.Empty(t, res.Errors)

	res = pm.load(tr, "fake", "/src/missing.hbs")
	require.Len(t, res.Errors, 1)
	require.NotNil(t, res.Errors[0].Location)
	assert.Equal(t, "/src/missing.hbs", res.Errors[0].Location.File)
}

func TestLoadAppendsInlineMap(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/views/card.hbs", []byte("<b>{{x}}</b>"), 0o644))

	hbs, err := handlebars.NewTransformer(handlebars.DefaultOptions())
	require.NoError(t, err)

	pm := NewPluginManager(fs, nil, nil)
	res := pm.load(hbs, "hbsbundle:handlebars", "/views/card.hbs")
	require.NotNil(t, res.Contents)

	assert.Contains(t, *res.Contents, "\n//# sourceMappingURL=data:application/json;charset=utf-8;base64,")
	assert.Equal(t, "/views", res.ResolveDir)
	assert.Equal(t, api.LoaderJS, res.Loader)
}

func TestWithInlineMap(t *testing.T) {
	code, err := withInlineMap(&transform.Result{Code: "a"})
	require.NoError(t, err)
	assert.Equal(t, "a", code)

	code, err = withInlineMap(&transform.Result{Code: "a", Map: sourcemap.Empty()})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(code, "a\n//# sourceMappingURL="))
	assert.True(t, strings.HasSuffix(code, "\n"))
}

func TestExtensionFilter(t *testing.T) {
	assert.Equal(t, "", ExtensionFilter(nil))
	assert.Equal(t, `(\.hbs)$`, ExtensionFilter([]string{".hbs"}))
	assert.Equal(t, `(\.css|\.scss)$`, ExtensionFilter([]string{".css", ".scss"}))
}

func TestLoaderFor(t *testing.T) {
	assert.Equal(t, api.LoaderJS, LoaderFor("js"))
	assert.Equal(t, api.LoaderJS, LoaderFor(""))
	assert.Equal(t, api.LoaderTS, LoaderFor("ts"))
	assert.Equal(t, api.LoaderTSX, LoaderFor("tsx"))
	assert.Equal(t, api.LoaderJSX, LoaderFor("jsx"))
}
