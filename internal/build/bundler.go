// Package build runs the library build: it cleans the output directory,
// bundles the entry point once per configured target with esbuild, bundles
// the plain stylesheets, writes the distribution package.json and copies the
// essential files.
package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/hbsbundle/internal/config"
	"github.com/conneroisu/hbsbundle/internal/errors"
	"github.com/conneroisu/hbsbundle/internal/logging"
	"github.com/conneroisu/hbsbundle/internal/plugins"
	"github.com/conneroisu/hbsbundle/internal/transform"
)

// Options wire a Bundler to its collaborators.
type Options struct {
	// Root is the absolute project directory. Relative paths in the
	// configuration resolve against it.
	Root string

	// Fs receives every output. esbuild itself reads inputs from disk.
	Fs afero.Fs

	Plugins *plugins.PluginManager
	Logger  logging.Logger
	Metrics *Metrics
}

// Bundler builds every bundle target of a configuration.
type Bundler struct {
	cfg     *config.Config
	root    string
	fs      afero.Fs
	plugins *plugins.PluginManager
	logger  logging.Logger
	metrics *Metrics

	// writeMu serialises output writes from concurrent targets.
	writeMu sync.Mutex
}

// BundleResult describes one finished bundle target.
type BundleResult struct {
	Name     string        `json:"name" yaml:"name"`
	Files    []string      `json:"files" yaml:"files"`
	Warnings []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Result summarises a complete build.
type Result struct {
	Bundles  []BundleResult `json:"bundles" yaml:"bundles"`
	Styles   []string       `json:"styles,omitempty" yaml:"styles,omitempty"`
	Manifest string         `json:"manifest" yaml:"manifest"`
	Copied   []string       `json:"copied,omitempty" yaml:"copied,omitempty"`
}

// NewBundler validates opts and returns a bundler for cfg.
func NewBundler(cfg *config.Config, opts Options) (*Bundler, error) {
	if cfg == nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "missing configuration")
	}
	if !filepath.IsAbs(opts.Root) {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("project root must be absolute, got %q", opts.Root))
	}
	if opts.Plugins == nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "missing plugin manager")
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	return &Bundler{
		cfg:     cfg,
		root:    opts.Root,
		fs:      opts.Fs,
		plugins: opts.Plugins,
		logger:  opts.Logger.WithComponent("build"),
		metrics: opts.Metrics,
	}, nil
}

// OutDir returns the absolute output directory.
func (b *Bundler) OutDir() string {
	return filepath.Join(b.root, b.cfg.Project.Out)
}

// Clean removes the output directory.
func (b *Bundler) Clean(ctx context.Context) error {
	out := b.OutDir()
	b.logger.Info(ctx, "cleaning output directory", "dir", out)

	if err := b.fs.RemoveAll(out); err != nil {
		return errors.NewIOError(errors.ErrCodeFileWrite, "clean output directory", err).
			WithLocation(out, 0, 0)
	}

	return nil
}

// Build bundles every target concurrently, then writes the distribution
// manifest and copies the essential files.
func (b *Bundler) Build(ctx context.Context) (*Result, error) {
	pkg, err := ReadPackage(b.fs, filepath.Join(b.root, b.cfg.Project.PackageJSON))
	if err != nil {
		return nil, err
	}

	results := make([]BundleResult, len(b.cfg.Bundles))

	g, gctx := errgroup.WithContext(ctx)
	for i, target := range b.cfg.Bundles {
		i, target := i, target
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := b.buildTarget(gctx, target, pkg.Name)
			if err != nil {
				return err
			}
			results[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	styles, err := b.buildStyles(ctx)
	if err != nil {
		return nil, err
	}

	manifest := NewDistManifest(pkg, b.cfg.Bundles)
	manifestPath := filepath.Join(b.OutDir(), "package.json")
	if err := WriteManifest(b.fs, manifestPath, manifest); err != nil {
		return nil, err
	}

	copied, err := b.copyEssentials(ctx)
	if err != nil {
		return nil, err
	}

	return &Result{Bundles: results, Styles: styles, Manifest: manifestPath, Copied: copied}, nil
}

func (b *Bundler) buildTarget(ctx context.Context, target config.BundleConfig, pkgName string) (*BundleResult, error) {
	start := time.Now()
	opts := b.esbuildOptions(target, pkgName)

	b.logger.Debug(ctx, "bundling", "bundle", target.Name, "outfile", opts.Outfile)

	result := api.Build(opts)
	elapsed := time.Since(start)

	if len(result.Errors) > 0 {
		b.metrics.Observe(target.Name, false, elapsed)
		return nil, buildFailure(target.Name, result.Errors)
	}

	res := &BundleResult{Name: target.Name, Duration: elapsed}
	for _, w := range result.Warnings {
		res.Warnings = append(res.Warnings, w.Text)
		b.logger.Warn(ctx, nil, w.Text, "bundle", target.Name)
	}

	for _, file := range result.OutputFiles {
		if err := b.writeFile(file.Path, file.Contents); err != nil {
			return nil, err
		}
		res.Files = append(res.Files, b.relOut(file.Path))
	}
	sort.Strings(res.Files)

	b.metrics.Observe(target.Name, true, elapsed)
	b.logger.Info(ctx, "bundle written", "bundle", target.Name, "files", len(res.Files), "duration", elapsed)

	return res, nil
}

func (b *Bundler) esbuildOptions(target config.BundleConfig, pkgName string) api.BuildOptions {
	opts := api.BuildOptions{
		AbsWorkingDir:     b.root,
		EntryPoints:       []string{filepath.Join(b.root, b.cfg.Project.Source, b.cfg.Project.Entry)},
		Outfile:           filepath.Join(b.OutDir(), BundleFile(target.File, pkgName)),
		Bundle:            true,
		Write:             false,
		Format:            formatFor(target.Format),
		Target:            targetFor(target.Target),
		Platform:          api.PlatformBrowser,
		External:          b.externals(target),
		Loader:            b.loaders(),
		Plugins:           b.plugins.ESBuildPlugins(),
		MinifyWhitespace:  target.Minify,
		MinifyIdentifiers: target.Minify,
		MinifySyntax:      target.Minify,
		LogLevel:          api.LogLevelSilent,
	}

	if target.SourceMap {
		opts.Sourcemap = api.SourceMapLinked
	}
	if opts.Format == api.FormatIIFE {
		opts.GlobalName = target.GlobalName
	}

	return opts
}

// loaders maps the configured asset extensions to esbuild loaders.
func (b *Bundler) loaders() map[string]api.Loader {
	if len(b.cfg.Loaders) == 0 {
		return nil
	}

	out := make(map[string]api.Loader)
	for _, l := range b.cfg.Loaders {
		for _, ext := range l.Extensions {
			out[ext] = loaderFor(l.Loader)
		}
	}

	return out
}

// buildStyles bundles every plain stylesheet under the source directory into
// the styles directory. Stylesheets sharing a base name are concatenated in
// path order. It returns the written files relative to the output directory.
func (b *Bundler) buildStyles(ctx context.Context) ([]string, error) {
	styles := b.cfg.Styles
	if styles.Dir == "" || len(styles.Extensions) == 0 {
		return nil, nil
	}

	sources, err := b.findStyles(transform.NewExtensionSet(styles.Extensions...))
	if err != nil || len(sources) == 0 {
		return nil, err
	}

	start := time.Now()
	outDir := filepath.Join(b.OutDir(), styles.Dir)

	var (
		order  []string
		groups = make(map[string][]byte)
		assets = make(map[string][]byte)
	)
	for _, src := range sources {
		base := filepath.Base(src)
		name := strings.TrimSuffix(base, filepath.Ext(base)) + ".css"
		outfile := filepath.Join(outDir, name)

		result := api.Build(b.styleOptions(src, outfile))
		if len(result.Errors) > 0 {
			b.metrics.Observe(styleTarget, false, time.Since(start))
			return nil, buildFailure(styleTarget, result.Errors)
		}
		for _, w := range result.Warnings {
			b.logger.Warn(ctx, nil, w.Text, "stylesheet", src)
		}

		for _, file := range result.OutputFiles {
			if file.Path != outfile {
				assets[file.Path] = file.Contents
				continue
			}
			if _, seen := groups[outfile]; !seen {
				order = append(order, outfile)
			}
			groups[outfile] = append(groups[outfile], file.Contents...)
		}
	}

	var written []string
	for _, path := range order {
		if err := b.writeFile(path, groups[path]); err != nil {
			return nil, err
		}
		written = append(written, b.relOut(path))
	}
	for path, contents := range assets {
		if err := b.writeFile(path, contents); err != nil {
			return nil, err
		}
		written = append(written, b.relOut(path))
	}
	sort.Strings(written)

	elapsed := time.Since(start)
	b.metrics.Observe(styleTarget, true, elapsed)
	b.logger.Info(ctx, "stylesheets written", "files", len(written), "duration", elapsed)

	return written, nil
}

// styleTarget labels stylesheet builds in metrics and errors.
const styleTarget = "style"

func (b *Bundler) styleOptions(src, outfile string) api.BuildOptions {
	loaders := b.loaders()
	if loaders == nil {
		loaders = make(map[string]api.Loader)
	}
	for _, ext := range b.cfg.Styles.Extensions {
		loaders[ext] = api.LoaderCSS
	}

	return api.BuildOptions{
		AbsWorkingDir:    b.root,
		EntryPoints:      []string{src},
		Outfile:          outfile,
		Bundle:           true,
		Write:            false,
		Loader:           loaders,
		MinifyWhitespace: b.cfg.Styles.Minify,
		MinifySyntax:     b.cfg.Styles.Minify,
		LogLevel:         api.LogLevelSilent,
	}
}

// findStyles lists the stylesheets below the source directory, skipping
// node_modules and files whose base name starts with an underscore, which
// are only meant to be imported.
func (b *Bundler) findStyles(exts transform.ExtensionSet) ([]string, error) {
	srcDir := filepath.Join(b.root, b.cfg.Project.Source)

	var out []string
	err := afero.Walk(b.fs, srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if exts.Match(path) && !strings.HasPrefix(info.Name(), "_") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "scan stylesheets", err).
			WithLocation(srcDir, 0, 0)
	}

	sort.Strings(out)

	return out, nil
}

func (b *Bundler) relOut(path string) string {
	rel, err := filepath.Rel(b.OutDir(), path)
	if err != nil {
		return path
	}

	return filepath.ToSlash(rel)
}

// buildFailure converts esbuild errors into a build error located at the
// first message.
func buildFailure(name string, messages []api.Message) error {
	formatted := api.FormatMessages(messages, api.FormatMessagesOptions{Kind: api.ErrorMessage})

	buildErr := errors.NewBuildError(errors.ErrCodeBuildFailed,
		fmt.Sprintf("bundle %s failed", name),
		fmt.Errorf("%s", strings.TrimSpace(strings.Join(formatted, "\n"))))
	buildErr.WithContext("bundle", name)
	if loc := messages[0].Location; loc != nil {
		buildErr.WithLocation(loc.File, loc.Line, loc.Column)
	}

	return buildErr
}

// externals lists modules left as imports. ES module bundles never inline
// the template runtime.
func (b *Bundler) externals(target config.BundleConfig) []string {
	out := append([]string(nil), b.cfg.External...)
	if target.Format == "esm" {
		runtime := b.cfg.Templates.RuntimeModule
		found := false
		for _, ext := range out {
			if ext == runtime {
				found = true
				break
			}
		}
		if !found {
			out = append(out, runtime)
		}
	}

	return out
}

func (b *Bundler) writeFile(path string, contents []byte) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if err := b.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewIOError(errors.ErrCodeFileWrite, "create output directory", err).
			WithLocation(path, 0, 0)
	}
	if err := afero.WriteFile(b.fs, path, contents, 0o644); err != nil {
		return errors.NewIOError(errors.ErrCodeFileWrite, "write output", err).
			WithLocation(path, 0, 0)
	}

	return nil
}

// copyEssentials copies the configured files into the output directory.
// Missing files are skipped with a warning.
func (b *Bundler) copyEssentials(ctx context.Context) ([]string, error) {
	var copied []string

	for _, name := range b.cfg.Copy {
		src := filepath.Join(b.root, name)
		data, err := afero.ReadFile(b.fs, src)
		if err != nil {
			b.logger.Warn(ctx, err, "skipping missing essential file", "file", name)
			continue
		}
		if err := b.writeFile(filepath.Join(b.OutDir(), filepath.Base(name)), data); err != nil {
			return nil, err
		}
		copied = append(copied, filepath.Base(name))
	}

	return copied, nil
}

// BundleFile expands the {name} placeholder of a bundle file pattern.
func BundleFile(pattern, pkgName string) string {
	return filepath.FromSlash(strings.ReplaceAll(pattern, "{name}", pkgName))
}

func loaderFor(name string) api.Loader {
	switch name {
	case "base64":
		return api.LoaderBase64
	case "binary":
		return api.LoaderBinary
	case "text":
		return api.LoaderText
	case "file":
		return api.LoaderFile
	case "copy":
		return api.LoaderCopy
	case "empty":
		return api.LoaderEmpty
	default:
		return api.LoaderDataURL
	}
}

func formatFor(format string) api.Format {
	switch format {
	case "esm":
		return api.FormatESModule
	case "cjs":
		return api.FormatCommonJS
	default:
		return api.FormatIIFE
	}
}

func targetFor(target string) api.Target {
	switch strings.ToLower(target) {
	case "es2016":
		return api.ES2016
	case "es2017":
		return api.ES2017
	case "es2018":
		return api.ES2018
	case "es2019":
		return api.ES2019
	case "es2020":
		return api.ES2020
	case "es2021":
		return api.ES2021
	case "es2022":
		return api.ES2022
	case "es2023":
		return api.ES2023
	case "es2024":
		return api.ES2024
	case "esnext":
		return api.ESNext
	default:
		return api.ES2015
	}
}
