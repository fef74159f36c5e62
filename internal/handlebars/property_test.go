//go:build property
// +build property

package handlebars

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/hbsbundle/internal/transform"
)

// TestCompileProperties checks compiler invariants over generated templates.
func TestCompileProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.MaxSize = 40

	properties := gopter.NewProperties(parameters)

	tr, err := NewTransformer(DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	text := gen.AnyString().Map(func(s string) string {
		// Keep generated text free of mustache delimiters.
		s = strings.ReplaceAll(s, "{", "")
		return strings.ReplaceAll(s, "}", "")
	})

	properties.Property("plain text compiles deterministically", prop.ForAll(
		func(s string) bool {
			req := transform.Request{Source: s, FileID: "gen.hbs"}
			a, errA := tr.Transform(req)
			b, errB := tr.Transform(req)
			if errA != nil || errB != nil {
				return false
			}
			return a.Code == b.Code && a.Map.EncodeMappings() == b.Map.EncodeMappings()
		},
		text,
	))

	properties.Property("exactly one runtime import", prop.ForAll(
		func(s string) bool {
			res, err := tr.Transform(transform.Request{Source: s, FileID: "gen.hbs"})
			if err != nil {
				return false
			}
			return strings.Count(res.Code, "import Handlebars from ") == 1 &&
				strings.HasPrefix(res.Code, "import Handlebars from 'handlebars/runtime';\n")
		},
		text,
	))

	properties.Property("registration follows the predicate", prop.ForAll(
		func(name string, partial bool) bool {
			if partial {
				name = "_" + name
			}
			res, err := tr.Transform(transform.Request{Source: "x", FileID: "dir/" + name + ".hbs"})
			if err != nil {
				return false
			}
			return strings.Contains(res.Code, "Handlebars.registerPartial(") == strings.HasPrefix(name, "_")
		},
		gen.Identifier(),
		gen.Bool(),
	))

	properties.Property("mappings stay inside the module", prop.ForAll(
		func(s string) bool {
			res, err := tr.Transform(transform.Request{Source: s, FileID: "gen.hbs"})
			if err != nil {
				return false
			}
			lines := strings.Split(res.Code, "\n")
			for _, m := range res.Map.Mappings {
				if m.GenLine < 1 || m.GenLine >= len(lines) || m.GenCol > len(lines[m.GenLine]) {
					return false
				}
			}
			return true
		},
		text,
	))

	properties.TestingRun(t)
}
