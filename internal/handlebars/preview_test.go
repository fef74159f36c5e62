package handlebars

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/hbsbundle/internal/errors"
)

func TestPreview(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "views/_header.hbs", []byte("<h1>{{title}}</h1>"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "views/page.hbs", []byte("{{> _header}}<p>{{body}}</p>"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "views/other.hbs", []byte("not a partial"), 0o644))

	tr := newTestTransformer(t, DefaultOptions())

	out, err := tr.Preview(fs, "views/page.hbs", map[string]interface{}{
		"title": "Hello",
		"body":  "<world>",
	})
	require.NoError(t, err)
	assert.Equal(t, "<h1>Hello</h1><p>&lt;world&gt;</p>", out)
}

func TestPreviewErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "views/bad.hbs", []byte("{{#if a}}x"), 0o644))

	tr := newTestTransformer(t, DefaultOptions())

	t.Run("missing file", func(t *testing.T) {
		_, err := tr.Preview(fs, "views/missing.hbs", nil)
		require.Error(t, err)

		file, _, _, ok := errors.Location(err)
		assert.True(t, ok)
		assert.Equal(t, "views/missing.hbs", file)
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := tr.Preview(fs, "views/bad.hbs", nil)
		require.Error(t, err)
		assert.True(t, errors.IsTemplateSyntaxError(err))
	})
}
