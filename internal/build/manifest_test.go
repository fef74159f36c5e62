package build

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/hbsbundle/internal/config"
	"github.com/conneroisu/hbsbundle/internal/errors"
)

func TestPeerRange(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.2.3", "^1.2.3"},
		{"^1.2.3", "^1.2.3"},
		{"~1.0.0", "^1.0.0"},
		{">=1.2.0", "^=1.2.0"},
		{"<2", "^2"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PeerRange(tt.in), tt.in)
	}
}

func TestNewDistManifest(t *testing.T) {
	pkg := &Package{
		Name:         "my-lib",
		Version:      "1.4.0",
		Description:  "cards",
		Keywords:     []string{"ui"},
		Author:       json.RawMessage(`{"name":"Ada"}`),
		License:      "MIT",
		Homepage:     "https://example.test",
		Dependencies: map[string]string{"handlebars": "~4.7.0", "lodash": "4.17.21"},
	}

	m := NewDistManifest(pkg, config.DefaultBundles())

	assert.Equal(t, "my-lib", m.Name)
	assert.Equal(t, "1.4.0", m.Version)
	assert.Equal(t, "bundles/my-lib.umd.js", m.Main)
	assert.Equal(t, "fesm2015/my-lib.js", m.Module)
	assert.Equal(t, "fesm2015/my-lib.js", m.ES2015)
	assert.Equal(t, "fesm2015/my-lib.js", m.FESM2015)
	assert.Equal(t, map[string]string{"handlebars": "^4.7.0", "lodash": "^4.17.21"}, m.PeerDependencies)
	assert.JSONEq(t, `{"name":"Ada"}`, string(m.Author))
}

func TestNewDistManifestWithoutDependencies(t *testing.T) {
	m := NewDistManifest(&Package{Name: "bare"}, []config.BundleConfig{
		{Name: "min", Format: "iife", Target: "es2015", File: "{name}.min.js", Minify: true},
		{Name: "cjs", Format: "cjs", Target: "es2017", File: "./{name}.cjs"},
		{Name: "esm", Format: "esm", Target: "es2020", File: "{name}.mjs"},
	})

	assert.Equal(t, "bare.cjs", m.Main)
	assert.Equal(t, "bare.mjs", m.Module)
	assert.Empty(t, m.ES2015)
	assert.Empty(t, m.FESM2015)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"peerDependencies":{}`)
}

func TestReadPackage(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/p/package.json",
		[]byte(`{"name":"my-lib","version":"1.0.0","repository":"github:acme/my-lib","dependencies":{"a":"^1.0.0"}}`), 0o644))

	pkg, err := ReadPackage(fs, "/p/package.json")
	require.NoError(t, err)
	assert.Equal(t, "my-lib", pkg.Name)
	assert.Equal(t, `"github:acme/my-lib"`, string(pkg.Repository))
	assert.Equal(t, map[string]string{"a": "^1.0.0"}, pkg.Dependencies)
}

func TestReadPackageErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/p/broken.json", []byte(`{"name":`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/p/anon.json", []byte(`{"version":"1.0.0"}`), 0o644))

	_, err := ReadPackage(fs, "/p/missing.json")
	require.Error(t, err)
	file, _, _, ok := errors.Location(err)
	require.True(t, ok)
	assert.Equal(t, "/p/missing.json", file)

	_, err = ReadPackage(fs, "/p/broken.json")
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))

	_, err = ReadPackage(fs, "/p/anon.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name")
}

func TestWriteManifest(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := NewDistManifest(&Package{Name: "x", Version: "0.1.0"}, config.DefaultBundles())

	require.NoError(t, WriteManifest(fs, "/out/dist/package.json", m))

	data, err := afero.ReadFile(fs, "/out/dist/package.json")
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1])

	var back DistManifest
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, *m, back)
}

func TestGlobalName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"my-lib", "MyLib"},
		{"@acme/date-picker", "AcmeDatePicker"},
		{"cards", "Cards"},
		{"--", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, GlobalName(tt.in), tt.in)
	}
}
