// Package replace rewrites source text with ordered regular expression
// substitutions, typically to swap import paths between build flavours.
package replace

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/conneroisu/hbsbundle/internal/errors"
	"github.com/conneroisu/hbsbundle/internal/sourcemap"
	"github.com/conneroisu/hbsbundle/internal/transform"
)

// DefaultExtensions are the files rewritten when none are configured.
var DefaultExtensions = []string{".ts", ".js"}

// Pattern is one substitution. Test is a Go regular expression; Replace may
// reference capture groups with $1 or ${name}. Every match is replaced.
type Pattern struct {
	Test    string `mapstructure:"test" yaml:"test" json:"test" validate:"required"`
	Replace string `mapstructure:"replace" yaml:"replace" json:"replace"`
}

type rule struct {
	re      *regexp.Regexp
	replace string
}

// Transformer applies its patterns, in order, to matching files.
type Transformer struct {
	rules []rule
	exts  transform.ExtensionSet
}

var _ transform.Transformer = (*Transformer)(nil)

// NewTransformer compiles patterns. When exts is empty DefaultExtensions
// apply.
func NewTransformer(patterns []Pattern, exts ...string) (*Transformer, error) {
	rules := make([]rule, 0, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p.Test)
		if err != nil {
			return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("replace pattern %d: %v", i, err)).
				WithContext("pattern", p.Test)
		}
		rules = append(rules, rule{re: re, replace: p.Replace})
	}

	set := transform.NewExtensionSet(exts...)
	if set.Len() == 0 {
		set = transform.NewExtensionSet(DefaultExtensions...)
	}

	return &Transformer{rules: rules, exts: set}, nil
}

// Name implements transform.Transformer.
func (t *Transformer) Name() string { return "replace" }

// Extensions implements transform.Transformer.
func (t *Transformer) Extensions() []string { return t.exts.Slice() }

// Transform implements transform.Transformer. Files left unchanged pass
// through. Rewritten files carry a line-level source map.
func (t *Transformer) Transform(req transform.Request) (*transform.Result, error) {
	if len(t.rules) == 0 || !t.exts.Match(req.FileID) {
		return nil, nil
	}

	out := req.Source
	for _, r := range t.rules {
		out = r.re.ReplaceAllString(out, r.replace)
	}

	if out == req.Source {
		return nil, nil
	}

	return &transform.Result{
		Code: out,
		Map:  lineMap(req.FileID, req.Source, out),
		Lang: transform.LangFromExtension(req.FileID),
	}, nil
}

// lineMap maps every line of out to the start of its source line. When the
// rewrite changed the line count, lines shared with the source at the start
// and the end map exactly and the rewritten region maps to its first line.
func lineMap(fileID, source, out string) *sourcemap.Map {
	src := strings.Split(source, "\n")
	gen := strings.Split(out, "\n")

	m := sourcemap.New(transform.BaseName(fileID), source)

	if len(src) == len(gen) {
		for i := range gen {
			m.Add(i, 0, i, 0)
		}
		return m
	}

	prefix := 0
	for prefix < len(src) && prefix < len(gen) && src[prefix] == gen[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(src)-prefix && suffix < len(gen)-prefix &&
		src[len(src)-1-suffix] == gen[len(gen)-1-suffix] {
		suffix++
	}

	for i := range gen {
		switch {
		case i < prefix:
			m.Add(i, 0, i, 0)
		case i >= len(gen)-suffix:
			m.Add(i, 0, i-len(gen)+len(src), 0)
		default:
			m.Add(i, 0, prefix, 0)
		}
	}

	return m
}
