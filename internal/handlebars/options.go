package handlebars

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/conneroisu/hbsbundle/internal/errors"
)

const (
	// DefaultTemplateExtension is the suffix of template files.
	DefaultTemplateExtension = ".hbs"
	// DefaultRuntimeModuleID is the module the emitted code imports the
	// Handlebars runtime from.
	DefaultRuntimeModuleID = "handlebars/runtime"
)

// Options configure the template compiler transform. Options are copied
// when a Transformer is built; later changes have no effect on it.
type Options struct {
	// TemplateExtension selects template files. Empty means
	// DefaultTemplateExtension.
	TemplateExtension string

	// IsPartial decides, from the template's partial key (base name without
	// extension), whether the emitted module registers itself as a partial.
	// It must be a pure function. Nil means DefaultIsPartial.
	IsPartial func(name string) bool

	// RuntimeModuleID is the import specifier of the Handlebars runtime.
	// Empty means DefaultRuntimeModuleID.
	RuntimeModuleID string

	// DisableSourceMap turns source map generation off. Maps are generated
	// by default.
	DisableSourceMap bool

	// SrcName overrides the source name recorded in source maps. When empty
	// the template's base name is used.
	SrcName string

	// Compiler holds raw compiler options. "sourceMap" (bool) and
	// "srcName" (string) are honoured; every other key is ignored.
	Compiler map[string]interface{}
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		TemplateExtension: DefaultTemplateExtension,
		IsPartial:         DefaultIsPartial,
		RuntimeModuleID:   DefaultRuntimeModuleID,
	}
}

// DefaultIsPartial treats templates whose name starts with an underscore as
// partials.
func DefaultIsPartial(name string) bool {
	return strings.HasPrefix(name, "_")
}

// NeverPartial disables partial registration.
func NeverPartial(string) bool { return false }

// PatternPartial returns a predicate matching names against re.
func PatternPartial(re *regexp.Regexp) func(string) bool {
	return re.MatchString
}

// resolve fills defaults and folds the raw compiler options in.
func (o Options) resolve() (Options, error) {
	out := o
	out.Compiler = nil

	if strings.TrimSpace(out.TemplateExtension) == "" {
		out.TemplateExtension = DefaultTemplateExtension
	}
	if out.IsPartial == nil {
		out.IsPartial = DefaultIsPartial
	}
	if out.RuntimeModuleID == "" {
		out.RuntimeModuleID = DefaultRuntimeModuleID
	}

	if raw, ok := o.Compiler["sourceMap"]; ok {
		enabled, isBool := raw.(bool)
		if !isBool {
			return Options{}, errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("compiler option sourceMap must be a boolean, got %T", raw))
		}
		out.DisableSourceMap = !enabled
	}

	if raw, ok := o.Compiler["srcName"]; ok && out.SrcName == "" {
		name, isString := raw.(string)
		if !isString {
			return Options{}, errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("compiler option srcName must be a string, got %T", raw))
		}
		out.SrcName = name
	}

	return out, nil
}
