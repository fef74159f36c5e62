// Package handlebars compiles Handlebars templates into ES modules that
// default-export a render function.
//
// A template file is parsed, precompiled into a runtime template spec and
// wrapped into a module that imports the Handlebars runtime, builds the
// template object and optionally registers it as a named partial:
//
//	import Handlebars from 'handlebars/runtime';
//	var Template = Handlebars.template({...});
//	Handlebars.registerPartial('_header', Template);
//	export default function(data, options) {
//	  return Template(data, options);
//	};
//
// The registration statement runs when the emitted module is loaded, never
// at compile time.
package handlebars

import (
	"strings"

	"github.com/conneroisu/hbsbundle/internal/errors"
	"github.com/conneroisu/hbsbundle/internal/jsmodule"
	"github.com/conneroisu/hbsbundle/internal/sourcemap"
	"github.com/conneroisu/hbsbundle/internal/transform"
)

// Transformer is the template compiler transform.
type Transformer struct {
	opts Options
}

var _ transform.Transformer = (*Transformer)(nil)

// NewTransformer builds a transformer from opts, filling defaults.
func NewTransformer(opts Options) (*Transformer, error) {
	resolved, err := opts.resolve()
	if err != nil {
		return nil, err
	}

	return &Transformer{opts: resolved}, nil
}

// Name implements transform.Transformer.
func (t *Transformer) Name() string { return "handlebars" }

// Extensions implements transform.Transformer.
func (t *Transformer) Extensions() []string {
	return []string{t.opts.TemplateExtension}
}

// Options returns a copy of the resolved options.
func (t *Transformer) Options() Options { return t.opts }

// Transform compiles req when its id ends with the template extension and
// declines everything else.
func (t *Transformer) Transform(req transform.Request) (*transform.Result, error) {
	if !strings.HasSuffix(req.FileID, t.opts.TemplateExtension) {
		return nil, nil
	}

	return t.Compile(req)
}

// Compile compiles req without checking its extension.
func (t *Transformer) Compile(req transform.Request) (*transform.Result, error) {
	tree, err := Parse(req.Source)
	if err != nil {
		return nil, errors.NewTemplateSyntaxError(req.FileID, ErrorLine(err), err)
	}

	compileOpts := CompileOptions{SourceMap: !t.opts.DisableSourceMap}
	if compileOpts.SourceMap {
		compileOpts.SrcName = t.opts.SrcName
		if compileOpts.SrcName == "" {
			compileOpts.SrcName = transform.BaseName(req.FileID)
		}
	}

	compiled, err := Precompile(tree, req.Source, compileOpts)
	if err != nil {
		return nil, errors.NewTemplateSyntaxError(req.FileID, ErrorLine(err), err)
	}

	key := PartialName(req.FileID, t.opts.TemplateExtension)

	code, m := t.emit(compiled, key)

	return &transform.Result{Code: code, Map: m, Lang: "js"}, nil
}

// IsPartial reports whether the template at fileID registers itself.
func (t *Transformer) IsPartial(fileID string) bool {
	return t.opts.IsPartial(PartialName(fileID, t.opts.TemplateExtension))
}

func (t *Transformer) emit(compiled *Compiled, key string) (string, *sourcemap.Map) {
	var b jsmodule.Builder

	b.ImportDefault("Handlebars", t.opts.RuntimeModuleID)
	b.Write("var Template = Handlebars.template(")
	line, col := b.Position()
	b.Write(compiled.Code)
	b.Line(");")

	if t.opts.IsPartial(key) {
		b.Linef("Handlebars.registerPartial(%s, Template);", jsmodule.Quote(key, '\''))
	}

	b.Line("export default function(data, options) {")
	b.Line("  return Template(data, options);")
	b.Line("};")

	m := compiled.Map
	if m != nil {
		m.Shift(line, col)
	}

	return b.String(), m
}

// PartialName derives the partial registry key for fileID: its base name
// with ext removed, or the unmodified base name when fileID does not end
// with ext.
func PartialName(fileID, ext string) string {
	base := transform.BaseName(fileID)
	if ext != "" && strings.HasSuffix(fileID, ext) {
		return strings.TrimSuffix(base, ext)
	}

	return base
}
