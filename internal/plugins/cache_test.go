package plugins

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/hbsbundle/internal/handlebars"
	"github.com/conneroisu/hbsbundle/internal/sourcemap"
	"github.com/conneroisu/hbsbundle/internal/transform"
)

// countingTransformer compiles every file and counts its calls.
type countingTransformer struct {
	calls int64
	delay time.Duration
	err   error
}

func (c *countingTransformer) Name() string         { return "counting" }
func (c *countingTransformer) Extensions() []string { return []string{".hbs"} }

func (c *countingTransformer) Transform(req transform.Request) (*transform.Result, error) {
	atomic.AddInt64(&c.calls, 1)
	time.Sleep(c.delay)
	if c.err != nil {
		return nil, c.err
	}

	m := sourcemap.New(req.FileID, req.Source)
	m.Add(0, 0, 0, 0)

	return &transform.Result{Code: "compiled:" + req.Source, Map: m, Lang: "js"}, nil
}

func (c *countingTransformer) transform() func(transform.Request) func() (*transform.Result, error) {
	return func(req transform.Request) func() (*transform.Result, error) {
		return func() (*transform.Result, error) { return c.Transform(req) }
	}
}

func TestResultCacheReusesIdenticalSource(t *testing.T) {
	cache := NewResultCache(8)
	tr := &countingTransformer{}
	run := tr.transform()

	req := transform.Request{FileID: "/src/card.hbs", Source: "<p>{{x}}</p>"}

	first, cached, err := cache.Do("hbs", req, run(req))
	require.NoError(t, err)
	assert.False(t, cached)

	second, cached, err := cache.Do("hbs", req, run(req))
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, int64(1), atomic.LoadInt64(&tr.calls))

	changed := transform.Request{FileID: req.FileID, Source: "<p>{{y}}</p>"}
	third, cached, err := cache.Do("hbs", changed, run(changed))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "compiled:<p>{{y}}</p>", third.Code)

	other := transform.Request{FileID: "/src/other.hbs", Source: req.Source}
	_, cached, err = cache.Do("hbs", other, run(other))
	require.NoError(t, err)
	assert.False(t, cached)

	_, cached, err = cache.Do("elide", req, run(req))
	require.NoError(t, err)
	assert.False(t, cached)

	stats := cache.Stats()
	assert.Equal(t, 4, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(4), stats.Misses)
}

func TestResultCacheReturnsCopies(t *testing.T) {
	cache := NewResultCache(8)
	tr := &countingTransformer{}
	req := transform.Request{FileID: "a.hbs", Source: "x"}

	first, _, err := cache.Do("hbs", req, tr.transform()(req))
	require.NoError(t, err)
	first.Map.Shift(3, 4)
	first.Map.Sources[0] = "mutated"

	second, cached, err := cache.Do("hbs", req, tr.transform()(req))
	require.NoError(t, err)
	require.True(t, cached)
	assert.Equal(t, []string{"a.hbs"}, second.Map.Sources)
	assert.Equal(t, sourcemap.Mapping{}, second.Map.Mappings[0])
}

func TestResultCacheSkipsErrorsAndPassThrough(t *testing.T) {
	cache := NewResultCache(8)
	req := transform.Request{FileID: "a.hbs", Source: "x"}

	failing := &countingTransformer{err: fmt.Errorf("boom")}
	for i := 0; i < 2; i++ {
		_, cached, err := cache.Do("hbs", req, failing.transform()(req))
		require.Error(t, err)
		assert.False(t, cached)
	}
	assert.Equal(t, int64(2), atomic.LoadInt64(&failing.calls))

	passes := 0
	for i := 0; i < 2; i++ {
		res, cached, err := cache.Do("skip", req, func() (*transform.Result, error) {
			passes++
			return nil, nil
		})
		require.NoError(t, err)
		assert.Nil(t, res)
		assert.False(t, cached)
	}
	assert.Equal(t, 2, passes)
	assert.Equal(t, 0, cache.Stats().Entries)
}

func TestResultCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewResultCache(2)
	tr := &countingTransformer{}
	run := tr.transform()

	a := transform.Request{FileID: "a.hbs", Source: "a"}
	b := transform.Request{FileID: "b.hbs", Source: "b"}
	c := transform.Request{FileID: "c.hbs", Source: "c"}

	for _, req := range []transform.Request{a, b, a, c} {
		_, _, err := cache.Do("hbs", req, run(req))
		require.NoError(t, err)
	}

	stats := cache.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, int64(1), stats.Evictions)

	_, cached, err := cache.Do("hbs", a, run(a))
	require.NoError(t, err)
	assert.True(t, cached, "recently used entry survives")

	_, cached, err = cache.Do("hbs", b, run(b))
	require.NoError(t, err)
	assert.False(t, cached, "least recently used entry is evicted")

	cache.Clear()
	assert.Equal(t, CacheStats{}, cache.Stats())
}

func TestResultCacheSharesConcurrentCalls(t *testing.T) {
	cache := NewResultCache(8)
	tr := &countingTransformer{delay: 20 * time.Millisecond}
	req := transform.Request{FileID: "a.hbs", Source: "x"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _, err := cache.Do("hbs", req, tr.transform()(req))
			assert.NoError(t, err)
			assert.Equal(t, "compiled:x", res.Code)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&tr.calls))
}

func TestNilResultCache(t *testing.T) {
	var cache *ResultCache
	tr := &countingTransformer{}
	req := transform.Request{FileID: "a.hbs", Source: "x"}

	for i := 0; i < 2; i++ {
		_, cached, err := cache.Do("hbs", req, tr.transform()(req))
		require.NoError(t, err)
		assert.False(t, cached)
	}
	assert.Equal(t, int64(2), atomic.LoadInt64(&tr.calls))
	assert.Equal(t, CacheStats{}, cache.Stats())
	cache.Clear()
}

func TestPluginManagerCachesResults(t *testing.T) {
	metrics := NewMetrics()
	pm := NewPluginManager(afero.NewMemMapFs(), nil, metrics)
	tr := &countingTransformer{}
	require.NoError(t, pm.RegisterPlugin(tr, 1))

	req := transform.Request{FileID: "card.hbs", Source: "x"}
	for i := 0; i < 3; i++ {
		res, name, err := pm.Transform(context.Background(), req)
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, "counting", name)
	}

	assert.Equal(t, int64(1), atomic.LoadInt64(&tr.calls))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transforms.WithLabelValues("counting", OutcomeTransformed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.transforms.WithLabelValues("counting", OutcomeCached)))

	pm.SetCache(nil)
	_, _, err := pm.Transform(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&tr.calls))
}

func TestTemplatesCompileOnceAcrossTargets(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/index.js":    "import card from './card.hbs';\nimport './_header.hbs';\nexport default card;\n",
		"src/card.hbs":    "<div>{{> _header}}{{name}}</div>",
		"src/_header.hbs": "<h1>{{title}}</h1>",
	})

	metrics := NewMetrics()
	pm := NewPluginManager(afero.NewOsFs(), nil, metrics)
	require.NoError(t, pm.RegisterBuiltins(BuiltinOptions{Templates: handlebars.DefaultOptions()}))

	formats := []api.Format{api.FormatESModule, api.FormatIIFE, api.FormatCommonJS}

	var wg sync.WaitGroup
	results := make([]api.BuildResult, len(formats))
	for i, format := range formats {
		wg.Add(1)
		go func(i int, format api.Format) {
			defer wg.Done()
			results[i] = api.Build(api.BuildOptions{
				AbsWorkingDir: dir,
				EntryPoints:   []string{filepath.Join(dir, "src", "index.js")},
				Outfile:       filepath.Join(dir, "out", fmt.Sprintf("bundle-%d.js", i)),
				Bundle:        true,
				Write:         false,
				Format:        format,
				External:      []string{handlebars.DefaultRuntimeModuleID},
				Plugins:       pm.ESBuildPlugins(),
				LogLevel:      api.LogLevelSilent,
			})
		}(i, format)
	}
	wg.Wait()

	for _, result := range results {
		require.Empty(t, result.Errors, "%v", result.Errors)
		require.NotEmpty(t, result.OutputFiles)
		assert.True(t, strings.Contains(string(result.OutputFiles[0].Contents), `registerPartial("_header"`))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.transforms.WithLabelValues("handlebars", OutcomeTransformed)))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.transforms.WithLabelValues("handlebars", OutcomeCached)))
	assert.Equal(t, 2, pm.Cache().Stats().Entries)
}
