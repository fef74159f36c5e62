// Package elide replaces the module body of matching files with an inert
// stand-in so the bundler drops their real content from the graph. It is
// used for assets such as stylesheets that a separate pipeline handles.
package elide

import (
	"github.com/conneroisu/hbsbundle/internal/errors"
	"github.com/conneroisu/hbsbundle/internal/sourcemap"
	"github.com/conneroisu/hbsbundle/internal/transform"
)

// StandIn is the module source emitted for every elided file. Importers of
// the file receive undefined as its default export.
const StandIn = "export default undefined;\n"

// Transformer elides files whose id ends with one of its extensions.
type Transformer struct {
	exts transform.ExtensionSet
}

var _ transform.Transformer = (*Transformer)(nil)

// NewTransformer captures exts into an immutable set. Entries are plain
// suffixes of the file ID, so "css" also matches a.scss. At least one
// extension is required.
func NewTransformer(exts ...string) (*Transformer, error) {
	set := transform.NewExtensionSet(exts...)
	if set.Len() == 0 {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
			"import elision needs at least one file extension")
	}

	return &Transformer{exts: set}, nil
}

// Name implements transform.Transformer.
func (t *Transformer) Name() string { return "elide" }

// Extensions implements transform.Transformer.
func (t *Transformer) Extensions() []string { return t.exts.Slice() }

// Transform implements transform.Transformer. The source is never read.
func (t *Transformer) Transform(req transform.Request) (*transform.Result, error) {
	if !t.exts.Match(req.FileID) {
		return nil, nil
	}

	return &transform.Result{
		Code: StandIn,
		Map:  sourcemap.Empty(),
		Lang: "js",
	}, nil
}
