// Package errors provides the structured error type shared by the transforms,
// the plugin adapters and the build pipeline.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeTemplate ErrorType = "template"
	ErrorTypeIO       ErrorType = "io"
	ErrorTypeBuild    ErrorType = "build"
	ErrorTypeInternal ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeTemplateSyntax   = "ERR_TEMPLATE_SYNTAX"
	ErrCodeTemplateCompile  = "ERR_TEMPLATE_UNSUPPORTED"
	ErrCodeFileNotFound     = "ERR_FILE_NOT_FOUND"
	ErrCodeFileWrite        = "ERR_FILE_WRITE"
	ErrCodeBuildFailed      = "ERR_BUILD_FAILED"
	ErrCodeInternalError    = "ERR_INTERNAL"
	ErrCodeManifestNotFound = "ERR_MANIFEST_NOT_FOUND"
)

// Error is a structured error with file location and cause.
type Error struct {
	Type     ErrorType
	Code     string
	Message  string
	Cause    error
	Context  map[string]interface{}
	FilePath string
	Line     int
	Column   int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors of the same type and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *Error) WithLocation(filePath string, line, column int) *Error {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// NewConfigError creates a configuration error. Configuration errors are
// raised while constructing plugins and abort pipeline startup.
func NewConfigError(code, message string) *Error {
	return &Error{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewTemplateSyntaxError creates an error for a template that failed to
// parse or compile. The file id is always attached.
func NewTemplateSyntaxError(fileID string, line int, cause error) *Error {
	return &Error{
		Type:     ErrorTypeTemplate,
		Code:     ErrCodeTemplateSyntax,
		Message:  "template syntax error",
		Cause:    cause,
		FilePath: fileID,
		Line:     line,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewBuildError creates a build error.
func NewBuildError(code, message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeBuild,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsConfigError checks if an error is a configuration error.
func IsConfigError(err error) bool {
	return hasType(err, ErrorTypeConfig)
}

// IsTemplateSyntaxError checks if an error came from a malformed template.
func IsTemplateSyntaxError(err error) bool {
	return hasType(err, ErrorTypeTemplate)
}

// IsBuildError checks if an error is build-related.
func IsBuildError(err error) bool {
	return hasType(err, ErrorTypeBuild)
}

func hasType(err error, typ ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == typ
	}

	return false
}

// Location extracts the file location of err, if it carries one.
func Location(err error) (file string, line, column int, ok bool) {
	var e *Error
	if errors.As(err, &e) && e.FilePath != "" {
		return e.FilePath, e.Line, e.Column, true
	}

	return "", 0, 0, false
}
