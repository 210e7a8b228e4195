package launcher

import (
	"fmt"
	"strings"
)

// LauncherError represents an error with additional context for troubleshooting.
type LauncherError struct {
	// Code identifies the error type
	Code ErrorCode

	// Message is the primary error message
	Message string

	// Context provides additional details
	Context map[string]interface{}

	// Cause is the underlying error (if any)
	Cause error

	// Suggestion provides actionable guidance for resolving the error
	Suggestion string
}

// ErrorCode identifies categories of errors
type ErrorCode string

const (
	// Process lifecycle errors
	ErrorCodeSpawnFailed        ErrorCode = "SPAWN_FAILED"
	ErrorCodeHealthCheckTimeout ErrorCode = "HEALTH_CHECK_TIMEOUT"
	ErrorCodeProcessDied        ErrorCode = "PROCESS_DIED"

	// Scan errors
	ErrorCodePortRangeExhausted ErrorCode = "PORT_RANGE_EXHAUSTED"

	// Configuration errors
	ErrorCodeInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"
	ErrorCodeBackendNotFound      ErrorCode = "BACKEND_NOT_FOUND"
)

// Error implements the error interface
func (e *LauncherError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		var contextParts []string
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.Cause))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "; ")
}

// Unwrap returns the underlying error for errors.Is/As compatibility
func (e *LauncherError) Unwrap() error {
	return e.Cause
}

// NewError creates a new LauncherError with the given code and message
func NewError(code ErrorCode, message string) *LauncherError {
	return &LauncherError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *LauncherError) WithContext(key string, value interface{}) *LauncherError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCause adds the underlying cause to the error
func (e *LauncherError) WithCause(cause error) *LauncherError {
	e.Cause = cause
	return e
}

// WithSuggestion adds an actionable suggestion to the error
func (e *LauncherError) WithSuggestion(suggestion string) *LauncherError {
	e.Suggestion = suggestion
	return e
}

// Common error constructors with helpful suggestions

// ErrSpawnFailed creates an error for OS-level process start failures
func ErrSpawnFailed(port int, cause error) *LauncherError {
	return NewError(ErrorCodeSpawnFailed,
		fmt.Sprintf("Failed to start backend process on port %d", port)).
		WithContext("port", port).
		WithCause(cause).
		WithSuggestion(
			"Common causes:\n" +
				"  1. Backend executable not found or not runnable\n" +
				"  2. Missing dependencies (Python runtime, bundled libraries)\n" +
				"  3. Insufficient permissions\n" +
				"Check the backend command path in the launcher config")
}

// ErrHealthCheckTimeout creates an error for ports that never answered the probe
func ErrHealthCheckTimeout(port, attempts int) *LauncherError {
	return NewError(ErrorCodeHealthCheckTimeout,
		fmt.Sprintf("Backend on port %d never became healthy", port)).
		WithContext("port", port).
		WithContext("attempts", attempts).
		WithSuggestion(fmt.Sprintf(
			"Verify the backend answers its health endpoint:\n"+
				"  curl http://127.0.0.1:%d/health\n"+
				"Model loading can be slow on first start; consider raising max_attempts",
			port))
}

// ErrProcessDied creates an error for backends that exited during health polling
func ErrProcessDied(port int, cause error) *LauncherError {
	return NewError(ErrorCodeProcessDied,
		fmt.Sprintf("Backend process on port %d exited during health polling", port)).
		WithContext("port", port).
		WithCause(cause).
		WithSuggestion(
			"The backend crashed before becoming ready. Check the forwarded\n" +
				"backend log lines for a stack trace; a port conflict or missing\n" +
				"model files are the usual causes")
}

// ErrPortRangeExhausted creates the terminal error for a fully failed scan
func ErrPortRangeExhausted(min, max int) *LauncherError {
	return NewError(ErrorCodePortRangeExhausted,
		fmt.Sprintf("No backend could be started on any port in [%d, %d]", min, max)).
		WithContext("port_min", min).
		WithContext("port_max", max).
		WithSuggestion(
			"All candidate ports failed. Either the backend executable is broken\n" +
				"or every port in the range is blocked. Check the launcher log for\n" +
				"the per-port failure reasons, then retry")
}

// ErrBackendNotFound creates an error for a missing backend executable
func ErrBackendNotFound(command string) *LauncherError {
	return NewError(ErrorCodeBackendNotFound,
		fmt.Sprintf("Backend executable not found: %s", command)).
		WithContext("command", command).
		WithSuggestion(fmt.Sprintf(
			"Verify the executable exists and is runnable:\n"+
				"  ls -la %s",
			command))
}

// ErrInvalidConfiguration creates an error for configuration validation failures
func ErrInvalidConfiguration(field string, value interface{}, reason string) *LauncherError {
	return NewError(ErrorCodeInvalidConfiguration,
		fmt.Sprintf("Invalid configuration: %s", reason)).
		WithContext("field", field).
		WithContext("value", value).
		WithSuggestion(
			"Review the launcher configuration file.\n" +
				"See the Config struct documentation for valid ranges.")
}

// IsErrorCode checks if an error has the specified error code
func IsErrorCode(err error, code ErrorCode) bool {
	if launcherErr, ok := err.(*LauncherError); ok {
		return launcherErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or empty string if not a LauncherError
func GetErrorCode(err error) ErrorCode {
	if launcherErr, ok := err.(*LauncherError); ok {
		return launcherErr.Code
	}
	return ""
}

// GetSuggestion returns the suggestion from an error, or empty string if not available
func GetSuggestion(err error) string {
	if launcherErr, ok := err.(*LauncherError); ok {
		return launcherErr.Suggestion
	}
	return ""
}
