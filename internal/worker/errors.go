package worker

import "fmt"

// ConfigurationError reports a missing or invalid node parameter.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// LookupError reports a worker type that is not registered.
type LookupError struct {
	Type string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("unknown worker type: %q", e.Type)
}

// UnavailableError reports a worker whose runtime prerequisites are not met.
type UnavailableError struct {
	Type   string
	Reason string
}

func (e *UnavailableError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("backend unavailable: %s", e.Type)
	}
	return fmt.Sprintf("backend unavailable: %s: %s", e.Type, e.Reason)
}

// BackendError wraps any failure that happened while a worker talked to its backend.
type BackendError struct {
	Type string
	Op   string
	Err  error
}

// NewBackendError wraps err for the given worker type and operation.
func NewBackendError(workerType, op string, err error) *BackendError {
	return &BackendError{Type: workerType, Op: op, Err: err}
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend: %s: %v", e.Type, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
