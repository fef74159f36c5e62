package plugins

import (
	"github.com/conneroisu/hbsbundle/internal/elide"
	"github.com/conneroisu/hbsbundle/internal/handlebars"
	"github.com/conneroisu/hbsbundle/internal/replace"
)

// Priorities of the built-in plugins.
const (
	PriorityReplace    = 10
	PriorityHandlebars = 20
	PriorityElide      = 30
)

// BuiltinOptions select and configure the built-in plugins.
type BuiltinOptions struct {
	Templates handlebars.Options

	// ElideExtensions enables import elision when non-empty.
	ElideExtensions []string

	// ReplacePatterns enables the path replace plugin when non-empty.
	ReplacePatterns   []replace.Pattern
	ReplaceExtensions []string
}

// RegisterBuiltins constructs the built-in plugins from opts and registers
// them. The template compiler is always registered.
func (pm *PluginManager) RegisterBuiltins(opts BuiltinOptions) error {
	if len(opts.ReplacePatterns) > 0 {
		r, err := replace.NewTransformer(opts.ReplacePatterns, opts.ReplaceExtensions...)
		if err != nil {
			return err
		}
		if err := pm.RegisterPlugin(r, PriorityReplace); err != nil {
			return err
		}
	}

	hbs, err := handlebars.NewTransformer(opts.Templates)
	if err != nil {
		return err
	}
	if err := pm.RegisterPlugin(hbs, PriorityHandlebars); err != nil {
		return err
	}

	if len(opts.ElideExtensions) > 0 {
		e, err := elide.NewTransformer(opts.ElideExtensions...)
		if err != nil {
			return err
		}
		if err := pm.RegisterPlugin(e, PriorityElide); err != nil {
			return err
		}
	}

	return nil
}
