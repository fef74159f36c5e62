// Package transform defines the contract shared by every source transform
// the bundler adapters drive: a request carrying one file's source text, and
// either a replacement module or a pass-through signal.
package transform

import (
	"sort"
	"strings"

	"github.com/conneroisu/hbsbundle/internal/sourcemap"
)

// Request is the input to a single transform call.
type Request struct {
	// Source is the file's original text.
	Source string
	// FileID is an opaque, path-like identifier used for extension
	// matching and for deriving human-readable names.
	FileID string
}

// Result is a replacement module for the requested file.
//
// A nil *Result returned together with a nil error means the transform
// declined the file and the original source must be used unchanged. An
// empty Result is a real transformation to an empty module.
type Result struct {
	Code string
	// Map is nil only when source map generation is disabled.
	Map *sourcemap.Map
	// Lang is the language of Code ("js" when empty).
	Lang string
}

// Transformer converts one file at a time. Implementations must be safe for
// concurrent use across distinct files and must not mutate their
// configuration after construction.
type Transformer interface {
	// Name identifies the transform in logs, metrics and bundler messages.
	Name() string

	// Extensions returns the file suffixes the transform acts on.
	Extensions() []string

	// Transform returns nil, nil for files it does not handle.
	Transform(req Request) (*Result, error)
}

// ExtensionSet is an immutable set of file suffixes.
type ExtensionSet struct {
	exts []string
}

// NewExtensionSet trims, de-duplicates and freezes exts. Entries are plain
// suffixes: "css" matches both a.css and a.scss. Empty entries are dropped.
func NewExtensionSet(exts ...string) ExtensionSet {
	seen := make(map[string]struct{}, len(exts))
	out := make([]string, 0, len(exts))

	for _, ext := range exts {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}

	sort.Strings(out)

	return ExtensionSet{exts: out}
}

// Len returns the number of extensions in the set.
func (s ExtensionSet) Len() int { return len(s.exts) }

// Slice returns a copy of the extensions in sorted order.
func (s ExtensionSet) Slice() []string {
	out := make([]string, len(s.exts))
	copy(out, s.exts)

	return out
}

// Match reports whether fileID ends with any extension in the set.
func (s ExtensionSet) Match(fileID string) bool {
	for _, ext := range s.exts {
		if strings.HasSuffix(fileID, ext) {
			return true
		}
	}

	return false
}

// BaseName returns the last path element of fileID, accepting both forward
// and backward slashes as separators.
func BaseName(fileID string) string {
	if i := strings.LastIndexAny(fileID, `/\`); i >= 0 {
		return fileID[i+1:]
	}

	return fileID
}

// LangFromExtension maps a file suffix to the language name used in
// Result.Lang.
func LangFromExtension(fileID string) string {
	switch {
	case strings.HasSuffix(fileID, ".tsx"):
		return "tsx"
	case strings.HasSuffix(fileID, ".ts"), strings.HasSuffix(fileID, ".mts"), strings.HasSuffix(fileID, ".cts"):
		return "ts"
	case strings.HasSuffix(fileID, ".jsx"):
		return "jsx"
	default:
		return "js"
	}
}
