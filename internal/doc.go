// Package internal contains the implementation packages of the hbsbundle
// CLI.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - transform: the request/result contract every source transform shares
//   - handlebars: template precompiler emitting runtime-only ES modules
//   - elide: replaces stylesheet imports with an empty module
//   - replace: regular-expression rewrites of import paths
//   - jsmodule: JavaScript string quoting and module assembly helpers
//   - sourcemap: version 3 source maps built by the transforms
//   - plugins: transform registry, result cache and the esbuild plugin adapters
//   - build: per-target bundling, stylesheets, distribution manifest and metrics
//   - config: viper configuration with validation
//   - errors: structured errors with file locations
//   - logging: structured logging over log/slog
//   - version: build information of the binary
//
// # Design Principles
//
// Transforms are pure functions of their configuration and one file's
// source. They return nil, nil for files they do not handle, and never
// mutate configuration captured at construction, so esbuild may call them
// concurrently.
package internal
