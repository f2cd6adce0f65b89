// Package errors provides structured error types for the Gametrics pipeline.
// All errors carry a category and code so callers can distinguish recoverable
// per-record failures from structural ones without string matching.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by pipeline stage.
type ErrorCategory string

const (
	ErrCategoryInput    ErrorCategory = "INPUT"
	ErrCategoryIngest   ErrorCategory = "INGEST"
	ErrCategoryQuality  ErrorCategory = "QUALITY"
	ErrCategorySink     ErrorCategory = "SINK"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Input codes
	CodeFileNotFound = "FILE_NOT_FOUND"
	CodeEmptyFile    = "EMPTY_FILE"

	// Ingest codes
	CodeParseFailed     = "PARSE_FAILED"
	CodeMissingField    = "MISSING_FIELD"
	CodeTooManyFailures = "TOO_MANY_FAILURES"

	// Quality codes
	CodeQualityGate = "QUALITY_GATE"

	// Sink codes
	CodeWriteFailed   = "WRITE_FAILED"
	CodePublishFailed = "PUBLISH_FAILED"
	CodeUploadFailed  = "UPLOAD_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// PipelineError is the structured error type used throughout the pipeline.
type PipelineError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Issues   []string
	Cause    error
}

// Error returns a formatted error string.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new PipelineError.
func New(category ErrorCategory, code, message string) *PipelineError {
	return &PipelineError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new PipelineError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *PipelineError {
	return &PipelineError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithIssues returns a copy of the error carrying the quality issue list.
func (e *PipelineError) WithIssues(issues []string) *PipelineError {
	cp := *e
	cp.Issues = issues
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a PipelineError.
func GetCategory(err error) ErrorCategory {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// GetIssues extracts the quality issue list from an error chain.
func GetIssues(err error) []string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Issues
	}
	return nil
}

// IsDataQuality reports whether the error chain contains a quality-gate breach.
func IsDataQuality(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category == ErrCategoryQuality ||
			(pe.Category == ErrCategoryIngest && pe.Code == CodeTooManyFailures)
	}
	return false
}

// Convenience constructors for common errors.

// NewInputError reports a missing or empty input file. Fatal, no partial run.
func NewInputError(code, message string, cause error) *PipelineError {
	return Wrap(ErrCategoryInput, code, message, cause)
}

// NewDataQualityError reports a quality-gate breach under strict mode.
func NewDataQualityError(message string, issues []string) *PipelineError {
	return New(ErrCategoryQuality, CodeQualityGate, message).WithIssues(issues)
}

// NewIngestError reports an ingest-stage structural failure.
func NewIngestError(code, message string) *PipelineError {
	return New(ErrCategoryIngest, code, message)
}

// NewSinkError reports a failure to persist an output table.
func NewSinkError(code, message string, cause error) *PipelineError {
	return Wrap(ErrCategorySink, code, message, cause)
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, cause error) *PipelineError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
