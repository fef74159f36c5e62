package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewExtensionSetTrimsAndDeduplicates(t *testing.T) {
	set := NewExtensionSet(".scss", ".css", " .scss ", "")

	assert.Equal(t, []string{".css", ".scss"}, set.Slice())
	assert.Equal(t, 2, set.Len())
}

func TestExtensionSetMatchesPlainSuffixes(t *testing.T) {
	set := NewExtensionSet("css")

	assert.Equal(t, []string{"css"}, set.Slice())
	assert.True(t, set.Match("a.css"))
	assert.True(t, set.Match("a.scss"))
	assert.False(t, set.Match("a.css.map"))
}

func TestExtensionSetSliceIsACopy(t *testing.T) {
	set := NewExtensionSet(".css")
	exts := set.Slice()
	exts[0] = ".js"

	assert.True(t, set.Match("a.css"))
	assert.False(t, set.Match("a.js"))
}

func TestExtensionSetMatch(t *testing.T) {
	set := NewExtensionSet(".scss", ".css")

	tests := []struct {
		id   string
		want bool
	}{
		{"src/styles.scss", true},
		{"C:\\src\\theme.css", true},
		{"src/index.ts", false},
		{"src/scss", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, set.Match(tt.id))
		})
	}
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "card.hbs", BaseName("src/templates/card.hbs"))
	assert.Equal(t, "card.hbs", BaseName(`C:\src\card.hbs`))
	assert.Equal(t, "card.hbs", BaseName("card.hbs"))
	assert.Equal(t, "", BaseName("src/"))
}

func TestLangFromExtension(t *testing.T) {
	assert.Equal(t, "ts", LangFromExtension("a.ts"))
	assert.Equal(t, "tsx", LangFromExtension("a.tsx"))
	assert.Equal(t, "jsx", LangFromExtension("a.jsx"))
	assert.Equal(t, "js", LangFromExtension("a.js"))
	assert.Equal(t, "js", LangFromExtension("a.hbs"))
}
