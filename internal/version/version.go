// Package version reports the build of the hbsbundle binary and the
// versions of the bundler and template parser linked into it.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at build time with -ldflags "-X".
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// Linked modules reported alongside the binary version.
const (
	esbuildModule = "github.com/evanw/esbuild"
	parserModule  = "github.com/aymerick/raymond"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"git_commit" yaml:"git_commit"`
	Dirty     bool   `json:"dirty" yaml:"dirty"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
	ESBuild   string `json:"esbuild,omitempty" yaml:"esbuild,omitempty"`
	Parser    string `json:"parser,omitempty" yaml:"parser,omitempty"`
}

// Get collects Info from the linker variables and the embedded build info.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	if info.Version == "" || info.Version == "dev" {
		if v := bi.Main.Version; v != "" && v != "(devel)" {
			info.Version = v
		}
	}

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "" || info.GitCommit == "unknown" {
				info.GitCommit = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}

	for _, dep := range bi.Deps {
		switch dep.Path {
		case esbuildModule:
			info.ESBuild = dep.Version
		case parserModule:
			info.Parser = dep.Version
		}
	}

	return info
}

// Short renders the version with an abbreviated commit, e.g. "v1.2.0 (3f2a9c1)".
func (i Info) Short() string {
	if i.GitCommit == "unknown" || len(i.GitCommit) < 7 {
		return i.Version
	}

	s := fmt.Sprintf("%s (%s)", i.Version, i.GitCommit[:7])
	if i.Dirty {
		s += " (dirty)"
	}

	return s
}

// String renders every known field, one per line.
func (i Info) String() string {
	lines := []string{
		"Version: " + i.Version,
		"Commit: " + i.GitCommit,
		"Go: " + i.GoVersion,
		"Platform: " + i.Platform,
	}
	if i.ESBuild != "" {
		lines = append(lines, "esbuild: "+i.ESBuild)
	}
	if i.Parser != "" {
		lines = append(lines, "raymond: "+i.Parser)
	}

	return strings.Join(lines, "\n")
}
