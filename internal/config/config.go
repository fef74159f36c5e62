// Package config provides configuration management for hbsbundle using
// Viper for loading from files, environment variables and command-line
// flags.
//
// The configuration file is .hbsbundle.yml. Environment variables with the
// HBSBUNDLE_ prefix override file values (templates.source_map becomes
// HBSBUNDLE_TEMPLATES_SOURCE_MAP). It describes the project layout, the
// template compiler, the import elision and path replace plugins, and the
// bundle targets written by the build command.
package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/conneroisu/hbsbundle/internal/errors"
	"github.com/conneroisu/hbsbundle/internal/handlebars"
	"github.com/conneroisu/hbsbundle/internal/plugins"
	"github.com/conneroisu/hbsbundle/internal/replace"
)

// FileName is the default configuration file name.
const FileName = ".hbsbundle.yml"

// EnvPrefix prefixes environment variable overrides.
const EnvPrefix = "HBSBUNDLE"

// Config is the complete hbsbundle configuration, decoded from
// .hbsbundle.yml and HBSBUNDLE_* overrides.
type Config struct {
	Project   ProjectConfig   `mapstructure:"project" yaml:"project"`
	Templates TemplatesConfig `mapstructure:"templates" yaml:"templates"`
	Elide     ElideConfig     `mapstructure:"elide" yaml:"elide"`
	Replace   ReplaceConfig   `mapstructure:"replace" yaml:"replace"`
	Bundles   []BundleConfig  `mapstructure:"bundles" yaml:"bundles" validate:"dive"`
	Loaders   []LoaderConfig  `mapstructure:"loaders" yaml:"loaders" validate:"dive"`
	Styles    StylesConfig    `mapstructure:"styles" yaml:"styles"`
	Copy      []string        `mapstructure:"copy" yaml:"copy"`
	External  []string        `mapstructure:"external" yaml:"external"`
}

// ProjectConfig locates the entry point, sources, output directory and
// package.json. Paths are relative to the project root.
type ProjectConfig struct {
	// Namespace is the global name of IIFE bundles.
	Namespace   string `mapstructure:"namespace" yaml:"namespace" validate:"required"`
	Entry       string `mapstructure:"entry" yaml:"entry" validate:"required"`
	Source      string `mapstructure:"source" yaml:"source" validate:"required"`
	Out         string `mapstructure:"out" yaml:"out" validate:"required"`
	PackageJSON string `mapstructure:"package_json" yaml:"package_json"`
}

// TemplatesConfig configures the template compiler.
type TemplatesConfig struct {
	Extension       string                 `mapstructure:"extension" yaml:"extension" validate:"required,startswith=."`
	RuntimeModule   string                 `mapstructure:"runtime_module" yaml:"runtime_module" validate:"required"`
	SourceMap       bool                   `mapstructure:"source_map" yaml:"source_map"`
	SrcName         string                 `mapstructure:"src_name" yaml:"src_name,omitempty"`
	PartialPattern  string                 `mapstructure:"partial_pattern" yaml:"partial_pattern"`
	DisablePartials bool                   `mapstructure:"disable_partials" yaml:"disable_partials"`
	Compiler        map[string]interface{} `mapstructure:"compiler" yaml:"compiler,omitempty"`
}

// ElideConfig configures import elision. When enabled, Extensions must
// name at least one suffix.
type ElideConfig struct {
	Enabled    bool     `mapstructure:"enabled" yaml:"enabled"`
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
}

// ReplaceConfig lists the path replace patterns. The plugin is registered
// only when Patterns is non-empty.
type ReplaceConfig struct {
	Patterns   []replace.Pattern `mapstructure:"patterns" yaml:"patterns" validate:"dive"`
	Extensions []string          `mapstructure:"extensions" yaml:"extensions,omitempty"`
}

// BundleConfig is one output of the build command. File is relative to
// the output directory; "{name}" expands to the package name.
type BundleConfig struct {
	Name       string `mapstructure:"name" yaml:"name" validate:"required"`
	Format     string `mapstructure:"format" yaml:"format" validate:"oneof=esm iife cjs"`
	Target     string `mapstructure:"target" yaml:"target" validate:"required"`
	File       string `mapstructure:"file" yaml:"file" validate:"required"`
	Minify     bool   `mapstructure:"minify" yaml:"minify,omitempty"`
	SourceMap  bool   `mapstructure:"source_map" yaml:"source_map"`
	GlobalName string `mapstructure:"global_name" yaml:"global_name,omitempty"`
}

// LoaderConfig assigns an esbuild loader to files imported by the sources
// or by stylesheets. "dataurl" inlines the file into the bundle.
type LoaderConfig struct {
	Extensions []string `mapstructure:"extensions" yaml:"extensions" validate:"min=1,dive,required,startswith=."`
	Loader     string   `mapstructure:"loader" yaml:"loader" validate:"oneof=dataurl base64 binary text file copy empty"`
}

// StylesConfig selects the plain CSS files under project.source that are
// bundled into Dir inside the output directory. An empty Dir disables it.
type StylesConfig struct {
	Dir        string   `mapstructure:"dir" yaml:"dir"`
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
	Minify     bool     `mapstructure:"minify" yaml:"minify,omitempty"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("project.namespace", "ts.lib")
	v.SetDefault("project.entry", "index.ts")
	v.SetDefault("project.source", "src")
	v.SetDefault("project.out", "dist")
	v.SetDefault("project.package_json", "package.json")

	v.SetDefault("templates.extension", handlebars.DefaultTemplateExtension)
	v.SetDefault("templates.runtime_module", handlebars.DefaultRuntimeModuleID)
	v.SetDefault("templates.source_map", true)
	v.SetDefault("templates.partial_pattern", "^_")
	v.SetDefault("templates.disable_partials", false)

	v.SetDefault("elide.enabled", true)
	v.SetDefault("elide.extensions", []string{".scss"})
	v.SetDefault("styles.dir", "style")
	v.SetDefault("styles.extensions", []string{".css"})
	v.SetDefault("copy", []string{"README.md", "LICENSE"})
}

// DefaultLoaders inline imported images as data URLs.
func DefaultLoaders() []LoaderConfig {
	return []LoaderConfig{
		{Extensions: []string{".png", ".jpg", ".jpeg", ".gif", ".svg"}, Loader: "dataurl"},
	}
}

// DefaultBundles mirrors the classic library layout: a UMD-style IIFE
// bundle, its minified twin and a flat ES2015 module.
func DefaultBundles() []BundleConfig {
	return []BundleConfig{
		{Name: "umd", Format: "iife", Target: "es2015", File: "bundles/{name}.umd.js", SourceMap: true},
		{Name: "umd.min", Format: "iife", Target: "es2015", File: "bundles/{name}.umd.min.js", Minify: true, SourceMap: true},
		{Name: "fesm2015", Format: "esm", Target: "es2015", File: "fesm2015/{name}.js", SourceMap: true},
	}
}

// Default returns the configuration used when no file or override exists.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadFrom(v)
	if err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}

	return cfg
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	SetDefaults(viper.GetViper())

	return LoadFrom(viper.GetViper())
}

// LoadFrom reads, completes and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		decodeErr := errors.NewConfigError(errors.ErrCodeConfigInvalid, "decode configuration")
		decodeErr.Cause = err

		return nil, decodeErr
	}

	// Viper returns slices set through env or flags as a single string.
	for _, key := range []string{"elide.extensions", "replace.extensions", "styles.extensions", "copy", "external"} {
		if v.IsSet(key) {
			if raw, ok := v.Get(key).(string); ok {
				setSlice(&config, key, splitList(raw))
			}
		}
	}

	if len(config.Bundles) == 0 {
		config.Bundles = DefaultBundles()
	}
	if !v.IsSet("loaders") {
		config.Loaders = DefaultLoaders()
	}
	for i := range config.Bundles {
		if config.Bundles[i].Format == "iife" && config.Bundles[i].GlobalName == "" {
			config.Bundles[i].GlobalName = config.Project.Namespace
		}
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setSlice(c *Config, key string, values []string) {
	switch key {
	case "elide.extensions":
		c.Elide.Extensions = values
	case "replace.extensions":
		c.Replace.Extensions = values
	case "styles.extensions":
		c.Styles.Extensions = values
	case "copy":
		c.Copy = values
	case "external":
		c.External = values
	}
}

func splitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })

	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}

	return out
}

// TemplateOptions converts the templates section into compiler options.
func (c *Config) TemplateOptions() (handlebars.Options, error) {
	opts := handlebars.Options{
		TemplateExtension: c.Templates.Extension,
		RuntimeModuleID:   c.Templates.RuntimeModule,
		DisableSourceMap:  !c.Templates.SourceMap,
		SrcName:           c.Templates.SrcName,
		Compiler:          compilerOptions(c.Templates.Compiler),
	}

	switch {
	case c.Templates.DisablePartials:
		opts.IsPartial = handlebars.NeverPartial
	case c.Templates.PartialPattern != "":
		re, err := regexp.Compile(c.Templates.PartialPattern)
		if err != nil {
			return handlebars.Options{}, errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("templates.partial_pattern: %v", err))
		}
		opts.IsPartial = handlebars.PatternPartial(re)
	}

	return opts, nil
}

// BuiltinOptions converts the plugin sections into plugin options.
func (c *Config) BuiltinOptions() (plugins.BuiltinOptions, error) {
	tpl, err := c.TemplateOptions()
	if err != nil {
		return plugins.BuiltinOptions{}, err
	}

	var elide []string
	if c.Elide.Enabled {
		elide = c.Elide.Extensions
	}

	return plugins.BuiltinOptions{
		Templates:         tpl,
		ElideExtensions:   elide,
		ReplacePatterns:   c.Replace.Patterns,
		ReplaceExtensions: c.Replace.Extensions,
	}, nil
}

// compilerOptions restores the camel-case spelling of the compiler keys
// the template compiler honours. Viper lower-cases every key it reads.
func compilerOptions(raw map[string]interface{}) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}

	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		switch strings.ToLower(k) {
		case "sourcemap":
			out["sourceMap"] = v
		case "srcname":
			out["srcName"] = v
		default:
			out[k] = v
		}
	}

	return out
}

// BindEnv makes v read HBSBUNDLE_* environment variables, mapping nested
// keys with underscores.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}
