package config

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/conneroisu/hbsbundle/internal/errors"
)

// ValidationError describes one invalid configuration value.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult collects every problem found in a configuration.
type ValidationResult struct {
	Errors []ValidationError
}

// HasErrors returns true if there are any validation errors.
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

func (vr *ValidationResult) add(field string, value interface{}, format string, args ...interface{}) {
	vr.Errors = append(vr.Errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf(format, args...),
	})
}

// String returns every issue on its own line.
func (vr *ValidationResult) String() string {
	var builder strings.Builder
	for _, err := range vr.Errors {
		builder.WriteString(fmt.Sprintf("  - %s: %s\n", err.Field, err.Message))
	}

	return builder.String()
}

// Targets accepted by bundle definitions.
var validTargets = map[string]struct{}{
	"es2015": {}, "es2016": {}, "es2017": {}, "es2018": {}, "es2019": {},
	"es2020": {}, "es2021": {}, "es2022": {}, "es2023": {}, "es2024": {},
	"esnext": {},
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	return v
}

// Validate runs struct tag validation and the semantic checks. The returned
// error is a configuration error carrying the full result in its context.
func Validate(config *Config) error {
	result := ValidateWithDetails(config)
	if !result.HasErrors() {
		return nil
	}

	return errors.NewConfigError(errors.ErrCodeConfigInvalid,
		"invalid configuration:\n"+strings.TrimRight(result.String(), "\n")).
		WithContext("errors", result.Errors)
}

// ValidateWithDetails returns every problem found in config.
func ValidateWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{}

	if err := validate.Struct(config); err != nil {
		var fieldErrs validator.ValidationErrors
		if stderrors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				result.add(fieldPath(fe.Namespace()), fe.Value(), "failed %q validation", fe.Tag())
			}
		} else {
			result.add("config", nil, "%v", err)
		}
	}

	validateProject(&config.Project, result)
	validateTemplates(&config.Templates, result)
	validateElide(&config.Elide, result)
	validateReplace(&config.Replace, result)
	validateBundles(config.Bundles, result)
	validateLoaders(config.Loaders, result)
	validateStyles(&config.Styles, result)

	return result
}

// Stylesheet languages esbuild cannot compile.
var preprocessed = map[string]struct{}{".scss": {}, ".sass": {}, ".less": {}, ".styl": {}}

func validateLoaders(loaders []LoaderConfig, result *ValidationResult) {
	seen := make(map[string]struct{})
	for i, l := range loaders {
		for j, ext := range l.Extensions {
			if _, dup := seen[ext]; dup {
				result.add(fmt.Sprintf("loaders[%d].extensions[%d]", i, j), ext, "extension already has a loader")
			}
			seen[ext] = struct{}{}
		}
	}
}

func validateStyles(s *StylesConfig, result *ValidationResult) {
	if s.Dir == "" {
		return
	}
	if err := validatePath(s.Dir); err != nil {
		result.add("styles.dir", s.Dir, "%v", err)
	}
	for i, ext := range s.Extensions {
		if _, ok := preprocessed[strings.ToLower(ext)]; ok {
			result.add(fmt.Sprintf("styles.extensions[%d]", i), ext, "only plain CSS can be bundled")
		}
		if strings.TrimSpace(ext) == "" {
			result.add(fmt.Sprintf("styles.extensions[%d]", i), ext, "empty extension")
		}
	}
}

func validateProject(p *ProjectConfig, result *ValidationResult) {
	if p.Out != "" {
		if err := validatePath(p.Out); err != nil {
			result.add("project.out", p.Out, "%v", err)
		}
	}
	if filepath.IsAbs(p.Entry) {
		result.add("project.entry", p.Entry, "entry must be relative to project.source")
	}
}

func validateTemplates(t *TemplatesConfig, result *ValidationResult) {
	if t.PartialPattern != "" {
		if _, err := regexp.Compile(t.PartialPattern); err != nil {
			result.add("templates.partial_pattern", t.PartialPattern, "%v", err)
		}
	}

	for key, value := range compilerOptions(t.Compiler) {
		switch key {
		case "sourceMap":
			if _, ok := value.(bool); !ok {
				result.add("templates.compiler.sourceMap", value, "must be a boolean")
			}
		case "srcName":
			if _, ok := value.(string); !ok {
				result.add("templates.compiler.srcName", value, "must be a string")
			}
		}
	}
}

func validateElide(e *ElideConfig, result *ValidationResult) {
	if e.Enabled && len(e.Extensions) == 0 {
		result.add("elide.extensions", e.Extensions,
			"at least one extension is required, set elide.enabled to false to disable elision")
	}
	for i, ext := range e.Extensions {
		if strings.TrimSpace(ext) == "" {
			result.add(fmt.Sprintf("elide.extensions[%d]", i), ext, "empty extension")
		}
	}
}

func validateReplace(r *ReplaceConfig, result *ValidationResult) {
	for i, p := range r.Patterns {
		if _, err := regexp.Compile(p.Test); err != nil {
			result.add(fmt.Sprintf("replace.patterns[%d].test", i), p.Test, "%v", err)
		}
	}
}

func validateBundles(bundles []BundleConfig, result *ValidationResult) {
	names := make(map[string]struct{}, len(bundles))
	files := make(map[string]string, len(bundles))

	for i, b := range bundles {
		field := fmt.Sprintf("bundles[%d]", i)

		if _, dup := names[b.Name]; dup && b.Name != "" {
			result.add(field+".name", b.Name, "duplicate bundle name")
		}
		names[b.Name] = struct{}{}

		if other, dup := files[b.File]; dup && b.File != "" {
			result.add(field+".file", b.File, "file already written by bundle %s", other)
		}
		files[b.File] = b.Name

		if _, ok := validTargets[strings.ToLower(b.Target)]; !ok && b.Target != "" {
			result.add(field+".target", b.Target, "unknown target")
		}

		if b.File != "" {
			if err := validatePath(b.File); err != nil {
				result.add(field+".file", b.File, "%v", err)
			}
		}
	}
}

// validatePath rejects paths that escape the project or point at its root.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if filepath.IsAbs(cleanPath) {
		return fmt.Errorf("path should be relative: %s", path)
	}
	if cleanPath == "." {
		return fmt.Errorf("path resolves to the project root: %s", path)
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	return nil
}

// fieldPath drops the root type from a validator namespace, turning
// Config.bundles[0].name into bundles[0].name.
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}

	return namespace
}
