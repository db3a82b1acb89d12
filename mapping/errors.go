package mapping

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every typed error below matches exactly one of the first four
// through errors.Is.
var (
	// ErrConfiguration is returned for unresolvable fragments, unknown settings,
	// conflicting statements and malformed mapper files.
	ErrConfiguration = errors.New("configuration error")

	// ErrBinding is returned when a placeholder, predicate or iteration source
	// cannot be evaluated against the parameter value.
	ErrBinding = errors.New("binding error")

	// ErrExecution is returned when the database call fails.
	ErrExecution = errors.New("execution error")

	// ErrCacheConsistency is returned when a statement with output parameters
	// would be served from the shared cache.
	ErrCacheConsistency = errors.New("cache consistency error")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session is closed")

	// ErrStatementNotFound is returned when no statement has the given id.
	ErrStatementNotFound = errors.New("statement not found")

	// ErrTooManyResults is returned by SelectOne when more than one row matches.
	ErrTooManyResults = errors.New("expected one result but found more")

	// ErrFrozen is returned when the registry is modified after Freeze.
	ErrFrozen = errors.New("registry is frozen")
)

// ConfigurationError describes a problem found while loading mappers or
// settings.
type ConfigurationError struct {
	Resource string
	ID       string
	Message  string
	Cause    error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Resource != "" {
		b.WriteString(" in " + e.Resource)
	}
	if e.ID != "" {
		b.WriteString(" (" + e.ID + ")")
	}
	b.WriteString(": " + e.Message)
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Configf builds a ConfigurationError.
func Configf(resource, id, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Resource: resource, ID: id, Message: fmt.Sprintf(format, args...)}
}

// BindingError names the property path that failed to evaluate.
type BindingError struct {
	Statement string
	Path      string
	Cause     error
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("binding error in %s at %q: %v", e.Statement, e.Path, e.Cause)
}

func (e *BindingError) Unwrap() error { return e.Cause }

func (e *BindingError) Is(target error) bool { return target == ErrBinding }

// ExecutionError wraps a database failure with the statement that caused it.
type ExecutionError struct {
	Statement string
	SQL       string
	Args      []any
	Cause     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("executing %s: %v", e.Statement, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }

// CacheConsistencyError lists the output parameters that prevent caching.
type CacheConsistencyError struct {
	Statement  string
	Cache      string
	Properties []string
}

func (e *CacheConsistencyError) Error() string {
	return fmt.Sprintf("statement %s uses cache %s but declares output parameters %s",
		e.Statement, e.Cache, strings.Join(e.Properties, ", "))
}

func (e *CacheConsistencyError) Is(target error) bool { return target == ErrCacheConsistency }

// IsConfigurationError reports whether err is a configuration error.
func IsConfigurationError(err error) bool { return errors.Is(err, ErrConfiguration) }

// IsBindingError reports whether err is a binding error.
func IsBindingError(err error) bool { return errors.Is(err, ErrBinding) }

// IsExecutionError reports whether err is a database failure.
func IsExecutionError(err error) bool { return errors.Is(err, ErrExecution) }

// IsCacheConsistencyError reports whether err is a cache consistency error.
func IsCacheConsistencyError(err error) bool { return errors.Is(err, ErrCacheConsistency) }
