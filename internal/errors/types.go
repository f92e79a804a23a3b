// Package errors defines the error taxonomy of the asset pipeline:
// configuration errors that are fatal at startup, transform errors raised by
// a collaborator, and I/O errors raised while reading sources or writing the
// build tree.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfig    ErrorType = "config"
	ErrorTypeTransform ErrorType = "transform"
	ErrorTypeIO        ErrorType = "io"
	ErrorTypeInternal  ErrorType = "internal"
)

// ForgeError is a structured error type with context.
type ForgeError struct {
	Type     ErrorType
	Code     string
	Message  string
	Cause    error
	Context  map[string]interface{}
	Task     string
	FilePath string
	Line     int
	Column   int
}

// Error implements the error interface.
func (e *ForgeError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Task != "" {
		parts = append(parts, "task:"+e.Task)
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
func (e *ForgeError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *ForgeError) Is(target error) bool {
	var t *ForgeError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *ForgeError) WithContext(key string, value interface{}) *ForgeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *ForgeError) WithLocation(filePath string, line, column int) *ForgeError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithFile adds the file the error refers to.
func (e *ForgeError) WithFile(filePath string) *ForgeError {
	e.FilePath = filePath

	return e
}

// WithTask adds the task that raised the error.
func (e *ForgeError) WithTask(task string) *ForgeError {
	e.Task = task

	return e
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *ForgeError {
	return &ForgeError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewTransformError creates an error raised by a collaborator.
func NewTransformError(code, message string, cause error) *ForgeError {
	return &ForgeError{
		Type:    ErrorTypeTransform,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *ForgeError {
	return &ForgeError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *ForgeError {
	return &ForgeError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func hasType(err error, t ErrorType) bool {
	var fe *ForgeError
	if errors.As(err, &fe) {
		return fe.Type == t
	}

	return false
}

// IsConfigError checks if an error is a configuration error.
func IsConfigError(err error) bool {
	return hasType(err, ErrorTypeConfig)
}

// IsTransformError checks if an error was raised by a collaborator.
func IsTransformError(err error) bool {
	return hasType(err, ErrorTypeTransform)
}

// IsIOError checks if an error is an I/O error.
func IsIOError(err error) bool {
	return hasType(err, ErrorTypeIO)
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs an error at a level matching its type. Transform errors are
// warnings because the next change event may fix them.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var fe *ForgeError
	if !errors.As(err, &fe) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch fe.Type {
	case ErrorTypeTransform:
		h.logger.Warn(ctx, err, "Transform failed",
			"type", fe.Type,
			"code", fe.Code,
			"task", fe.Task,
			"file", fe.FilePath)
	default:
		h.logger.Error(ctx, err, "Error occurred",
			"type", fe.Type,
			"code", fe.Code,
			"task", fe.Task,
			"file", fe.FilePath)
	}
}

// Common error codes.
const (
	ErrCodeConfigInvalid   = "ERR_CONFIG_INVALID"
	ErrCodeInvalidPattern  = "ERR_INVALID_PATTERN"
	ErrCodeOutputEscape    = "ERR_OUTPUT_OUTSIDE_BUILD_ROOT"
	ErrCodeInvalidCommand  = "ERR_INVALID_COMMAND"
	ErrCodeIncludeNotFound = "ERR_INCLUDE_NOT_FOUND"
	ErrCodeIncludeCycle    = "ERR_INCLUDE_CYCLE"
	ErrCodeCompileFailed   = "ERR_COMPILE_FAILED"
	ErrCodeLintFailed      = "ERR_LINT_FAILED"
	ErrCodeImageFailed     = "ERR_IMAGE_FAILED"
	ErrCodeSpriteFailed    = "ERR_SPRITE_FAILED"
	ErrCodeCommandFailed   = "ERR_COMMAND_FAILED"
	ErrCodeReadFailed      = "ERR_READ_FAILED"
	ErrCodeWriteFailed     = "ERR_WRITE_FAILED"
	ErrCodeCleanFailed     = "ERR_CLEAN_FAILED"
	ErrCodeTaskPanic       = "ERR_TASK_PANIC"
)
