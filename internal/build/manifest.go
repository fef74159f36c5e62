package build

import (
	"encoding/json"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/conneroisu/hbsbundle/internal/config"
	"github.com/conneroisu/hbsbundle/internal/errors"
)

// Package is the subset of the project package.json the build reads.
// Fields that may be strings or objects are kept verbatim.
type Package struct {
	Name         string            `json:"name"`
	Version      string            `json:"version,omitempty"`
	Description  string            `json:"description,omitempty"`
	Keywords     []string          `json:"keywords,omitempty"`
	Author       json.RawMessage   `json:"author,omitempty"`
	Repository   json.RawMessage   `json:"repository,omitempty"`
	License      string            `json:"license,omitempty"`
	Bugs         json.RawMessage   `json:"bugs,omitempty"`
	Homepage     string            `json:"homepage,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// DistManifest is the package.json written next to the bundles. Project
// dependencies become peer dependencies of the published package.
type DistManifest struct {
	Name             string            `json:"name"`
	Version          string            `json:"version,omitempty"`
	Description      string            `json:"description,omitempty"`
	Keywords         []string          `json:"keywords,omitempty"`
	Author           json.RawMessage   `json:"author,omitempty"`
	Repository       json.RawMessage   `json:"repository,omitempty"`
	License          string            `json:"license,omitempty"`
	Bugs             json.RawMessage   `json:"bugs,omitempty"`
	Homepage         string            `json:"homepage,omitempty"`
	Main             string            `json:"main,omitempty"`
	Module           string            `json:"module,omitempty"`
	ES2015           string            `json:"es2015,omitempty"`
	FESM2015         string            `json:"fesm2015,omitempty"`
	PeerDependencies map[string]string `json:"peerDependencies"`
}

// ReadPackage loads the project package.json at file.
func ReadPackage(fs afero.Fs, file string) (*Package, error) {
	data, err := afero.ReadFile(fs, file)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeManifestNotFound, "read package.json", err).
			WithLocation(file, 0, 0)
	}

	var pkg Package
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "parse package.json: "+err.Error()).
			WithLocation(file, 0, 0)
	}
	if pkg.Name == "" {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "package.json has no name").
			WithLocation(file, 0, 0)
	}

	return &pkg, nil
}

// NewDistManifest derives the distribution manifest from the project
// package and the bundle targets. main points at the first non-minified
// IIFE or CommonJS bundle, module at the first ES module bundle.
func NewDistManifest(pkg *Package, bundles []config.BundleConfig) *DistManifest {
	m := &DistManifest{
		Name:             pkg.Name,
		Version:          pkg.Version,
		Description:      pkg.Description,
		Keywords:         pkg.Keywords,
		Author:           pkg.Author,
		Repository:       pkg.Repository,
		License:          pkg.License,
		Bugs:             pkg.Bugs,
		Homepage:         pkg.Homepage,
		PeerDependencies: make(map[string]string, len(pkg.Dependencies)),
	}

	for _, b := range bundles {
		file := path.Clean(strings.ReplaceAll(b.File, "{name}", pkg.Name))

		switch b.Format {
		case "esm":
			if m.Module == "" {
				m.Module = file
			}
			if m.ES2015 == "" && strings.EqualFold(b.Target, "es2015") {
				m.ES2015 = file
			}
			if b.Name == "fesm2015" {
				m.FESM2015 = file
			}
		default:
			if m.Main == "" && !b.Minify {
				m.Main = file
			}
		}
	}

	for dep, version := range pkg.Dependencies {
		m.PeerDependencies[dep] = PeerRange(version)
	}

	return m
}

// PeerRange turns a dependency range into a caret range by dropping the
// first range operator character and prefixing ^.
func PeerRange(version string) string {
	if i := strings.IndexAny(version, `^~><=`); i >= 0 {
		version = version[:i] + version[i+1:]
	}

	return "^" + version
}

// WriteManifest writes m as indented JSON.
func WriteManifest(fs afero.Fs, file string, m *DistManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "encode package.json", err)
	}

	if err := fs.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return errors.NewIOError(errors.ErrCodeFileWrite, "create output directory", err).
			WithLocation(file, 0, 0)
	}
	if err := afero.WriteFile(fs, file, append(data, '\n'), 0o644); err != nil {
		return errors.NewIOError(errors.ErrCodeFileWrite, "write package.json", err).
			WithLocation(file, 0, 0)
	}

	return nil
}
