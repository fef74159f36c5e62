// Package plugins registers source transforms and exposes them to the
// esbuild bundler as load plugins.
package plugins

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/conneroisu/hbsbundle/internal/errors"
	"github.com/conneroisu/hbsbundle/internal/logging"
	"github.com/conneroisu/hbsbundle/internal/transform"
)

// PluginInfo describes a registered plugin.
type PluginInfo struct {
	Name       string   `json:"name" yaml:"name"`
	Extensions []string `json:"extensions" yaml:"extensions"`
	Priority   int      `json:"priority" yaml:"priority"`
}

type entry struct {
	transformer transform.Transformer
	priority    int
	seq         int
}

// PluginManager holds the registered transforms. Lower priorities run
// first; ties keep registration order.
type PluginManager struct {
	fs      afero.Fs
	logger  logging.Logger
	metrics *Metrics
	cache   *ResultCache

	mu      sync.RWMutex
	plugins map[string]*entry
	seq     int
}

// NewPluginManager creates a manager that reads sources from fs. metrics
// may be nil. Results are cached in a ResultCache of DefaultCacheEntries.
func NewPluginManager(fs afero.Fs, logger logging.Logger, metrics *Metrics) *PluginManager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &PluginManager{
		fs:      fs,
		logger:  logger.WithComponent("plugins"),
		metrics: metrics,
		cache:   NewResultCache(DefaultCacheEntries),
		plugins: make(map[string]*entry),
	}
}

// SetCache replaces the result cache. Nil disables caching.
func (pm *PluginManager) SetCache(c *ResultCache) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.cache = c
}

// Cache returns the result cache, nil when caching is disabled.
func (pm *PluginManager) Cache() *ResultCache {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return pm.cache
}

// RegisterPlugin adds t under its name.
func (pm *PluginManager) RegisterPlugin(t transform.Transformer, priority int) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	name := t.Name()
	if _, exists := pm.plugins[name]; exists {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("plugin %s already registered", name))
	}

	pm.seq++
	pm.plugins[name] = &entry{transformer: t, priority: priority, seq: pm.seq}

	return nil
}

// UnregisterPlugin removes the named plugin.
func (pm *PluginManager) UnregisterPlugin(name string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.plugins[name]; !exists {
		return fmt.Errorf("plugin %s not found", name)
	}
	delete(pm.plugins, name)

	return nil
}

// GetPlugin retrieves a plugin by name.
func (pm *PluginManager) GetPlugin(name string) (transform.Transformer, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	e, exists := pm.plugins[name]
	if !exists {
		return nil, fmt.Errorf("plugin %s not found", name)
	}

	return e.transformer, nil
}

// ListPlugins returns the registered plugins in execution order.
func (pm *PluginManager) ListPlugins() []PluginInfo {
	ordered := pm.ordered()

	infos := make([]PluginInfo, 0, len(ordered))
	for _, e := range ordered {
		infos = append(infos, PluginInfo{
			Name:       e.transformer.Name(),
			Extensions: e.transformer.Extensions(),
			Priority:   e.priority,
		})
	}

	return infos
}

// Transform offers req to each plugin in execution order and returns the
// first result, with the name of the plugin that produced it. A nil result
// means no plugin handled the file.
func (pm *PluginManager) Transform(ctx context.Context, req transform.Request) (*transform.Result, string, error) {
	for _, e := range pm.ordered() {
		res, err := pm.run(ctx, e.transformer, req)
		if err != nil {
			return nil, e.transformer.Name(), err
		}
		if res != nil {
			return res, e.transformer.Name(), nil
		}
	}

	return nil, "", nil
}

func (pm *PluginManager) ordered() []*entry {
	pm.mu.RLock()
	out := make([]*entry, 0, len(pm.plugins))
	for _, e := range pm.plugins {
		out = append(out, e)
	}
	pm.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority < out[j].priority
		}
		return out[i].seq < out[j].seq
	})

	return out
}

// run calls one transform, or reuses its cached result for identical
// source, and records the outcome.
func (pm *PluginManager) run(ctx context.Context, t transform.Transformer, req transform.Request) (*transform.Result, error) {
	start := time.Now()
	res, cached, err := pm.Cache().Do(t.Name(), req, func() (*transform.Result, error) {
		return t.Transform(req)
	})
	elapsed := time.Since(start)

	switch {
	case cached && err == nil:
		pm.metrics.Observe(t.Name(), OutcomeCached, elapsed)
		pm.logger.Debug(ctx, "reused cached result", "plugin", t.Name(), "file", req.FileID)
	case err != nil:
		pm.metrics.Observe(t.Name(), OutcomeError, elapsed)
		pm.logger.Warn(ctx, err, "transform failed", "plugin", t.Name(), "file", req.FileID)
	case res == nil:
		pm.metrics.Observe(t.Name(), OutcomePassThrough, elapsed)
	default:
		pm.metrics.Observe(t.Name(), OutcomeTransformed, elapsed)
		pm.logger.Debug(ctx, "transformed", "plugin", t.Name(), "file", req.FileID, "duration", elapsed)
	}

	return res, err
}
