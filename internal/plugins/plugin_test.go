package plugins

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/hbsbundle/internal/errors"
	"github.com/conneroisu/hbsbundle/internal/handlebars"
	"github.com/conneroisu/hbsbundle/internal/replace"
	"github.com/conneroisu/hbsbundle/internal/transform"
)

// fakeTransformer handles files ending with ext and records its calls.
type fakeTransformer struct {
	name  string
	ext   string
	code  string
	err   error
	calls int
}

func (f *fakeTransformer) Name() string         { return f.name }
func (f *fakeTransformer) Extensions() []string { return []string{f.ext} }

func (f *fakeTransformer) Transform(req transform.Request) (*transform.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(req.FileID) < len(f.ext) || req.FileID[len(req.FileID)-len(f.ext):] != f.ext {
		return nil, nil
	}

	return &transform.Result{Code: f.code, Lang: "js"}, nil
}

func TestRegisterPlugin(t *testing.T) {
	pm := NewPluginManager(afero.NewMemMapFs(), nil, nil)

	require.NoError(t, pm.RegisterPlugin(&fakeTransformer{name: "a", ext: ".a"}, 1))

	err := pm.RegisterPlugin(&fakeTransformer{name: "a", ext: ".b"}, 2)
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))

	got, err := pm.GetPlugin("a")
	require.NoError(t, err)
	assert.Equal(t, []string{".a"}, got.Extensions())

	_, err = pm.GetPlugin("missing")
	assert.Error(t, err)

	require.NoError(t, pm.UnregisterPlugin("a"))
	assert.Error(t, pm.UnregisterPlugin("a"))
	assert.Empty(t, pm.ListPlugins())
}

func TestListPluginsOrder(t *testing.T) {
	pm := NewPluginManager(afero.NewMemMapFs(), nil, nil)

	require.NoError(t, pm.RegisterPlugin(&fakeTransformer{name: "late", ext: ".x"}, 50))
	require.NoError(t, pm.RegisterPlugin(&fakeTransformer{name: "first", ext: ".x"}, 1))
	require.NoError(t, pm.RegisterPlugin(&fakeTransformer{name: "tie-a", ext: ".x"}, 10))
	require.NoError(t, pm.RegisterPlugin(&fakeTransformer{name: "tie-b", ext: ".x"}, 10))

	var names []string
	for _, info := range pm.ListPlugins() {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"first", "tie-a", "tie-b", "late"}, names)
}

func TestTransformFirstResultWins(t *testing.T) {
	metrics := NewMetrics()
	pm := NewPluginManager(afero.NewMemMapFs(), nil, metrics)

	skip := &fakeTransformer{name: "skip", ext: ".other"}
	winner := &fakeTransformer{name: "winner", ext: ".hbs", code: "A"}
	shadowed := &fakeTransformer{name: "shadowed", ext: ".hbs", code: "B"}

	require.NoError(t, pm.RegisterPlugin(skip, 1))
	require.NoError(t, pm.RegisterPlugin(winner, 2))
	require.NoError(t, pm.RegisterPlugin(shadowed, 3))

	res, name, err := pm.Transform(context.Background(), transform.Request{FileID: "card.hbs"})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "A", res.Code)
	assert.Equal(t, "winner", name)
	assert.Equal(t, 0, shadowed.calls)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transforms.WithLabelValues("skip", OutcomePassThrough)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transforms.WithLabelValues("winner", OutcomeTransformed)))
}

func TestTransformNoPluginHandles(t *testing.T) {
	pm := NewPluginManager(afero.NewMemMapFs(), nil, nil)
	require.NoError(t, pm.RegisterPlugin(&fakeTransformer{name: "a", ext: ".a"}, 1))

	res, name, err := pm.Transform(context.Background(), transform.Request{FileID: "x.ts"})
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, name)
}

func TestTransformError(t *testing.T) {
	metrics := NewMetrics()
	pm := NewPluginManager(afero.NewMemMapFs(), nil, metrics)
	require.NoError(t, pm.RegisterPlugin(&fakeTransformer{name: "bad", ext: ".a", err: fmt.Errorf("boom")}, 1))

	res, name, err := pm.Transform(context.Background(), transform.Request{FileID: "x.a"})
	assert.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, "bad", name)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transforms.WithLabelValues("bad", OutcomeError)))
}

func TestRegisterBuiltins(t *testing.T) {
	t.Run("all enabled", func(t *testing.T) {
		pm := NewPluginManager(afero.NewMemMapFs(), nil, nil)
		err := pm.RegisterBuiltins(BuiltinOptions{
			Templates:       handlebars.DefaultOptions(),
			ElideExtensions: []string{".scss"},
			ReplacePatterns: []replace.Pattern{{Test: "a", Replace: "b"}},
		})
		require.NoError(t, err)

		assert.Equal(t, []PluginInfo{
			{Name: "replace", Extensions: []string{".js", ".ts"}, Priority: PriorityReplace},
			{Name: "handlebars", Extensions: []string{".hbs"}, Priority: PriorityHandlebars},
			{Name: "elide", Extensions: []string{".scss"}, Priority: PriorityElide},
		}, pm.ListPlugins())
	})

	t.Run("optional plugins skipped", func(t *testing.T) {
		pm := NewPluginManager(afero.NewMemMapFs(), nil, nil)
		require.NoError(t, pm.RegisterBuiltins(BuiltinOptions{}))

		infos := pm.ListPlugins()
		require.Len(t, infos, 1)
		assert.Equal(t, "handlebars", infos[0].Name)
	})

	t.Run("invalid pattern", func(t *testing.T) {
		pm := NewPluginManager(afero.NewMemMapFs(), nil, nil)
		err := pm.RegisterBuiltins(BuiltinOptions{
			ReplacePatterns: []replace.Pattern{{Test: "(", Replace: ""}},
		})
		require.Error(t, err)
		assert.True(t, errors.IsConfigError(err))
	})
}

func TestMetricsWriteToTextfile(t *testing.T) {
	metrics := NewMetrics()
	metrics.Observe("handlebars", OutcomeTransformed, 0)

	path := t.TempDir() + "/metrics.prom"
	require.NoError(t, metrics.WriteToTextfile(path))

	raw, err := afero.ReadFile(afero.NewOsFs(), path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `hbsbundle_transforms_total{outcome="transformed",plugin="handlebars"} 1`)
	assert.Contains(t, string(raw), "hbsbundle_transform_duration_seconds")
}
