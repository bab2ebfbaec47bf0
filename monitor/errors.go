package monitor

import (
	"errors"
	"fmt"
	"time"
)

// ConfigurationError represents bad or missing credential configuration.
// It is fatal: surfaced immediately, never retried.
type ConfigurationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error in field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

// ValidationError represents query parameter validation errors
type ValidationError struct {
	Parameter string      `json:"parameter"`
	Value     interface{} `json:"value"`
	Message   string      `json:"message"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s (value: %v)", e.Parameter, e.Message, e.Value)
}

// NewValidationError creates a new ValidationError
func NewValidationError(parameter string, value interface{}, message string) *ValidationError {
	return &ValidationError{Parameter: parameter, Value: value, Message: message}
}

// AuthError represents a token acquisition or refresh failure
type AuthError struct {
	Mode    DeploymentMode `json:"mode"`
	Message string         `json:"message"`
	Cause   error          `json:"-"`
}

// Error implements the error interface
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed (%s): %s: %v", e.Mode, e.Message, e.Cause)
	}
	return fmt.Sprintf("authentication failed (%s): %s", e.Mode, e.Message)
}

// Unwrap returns the underlying error
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// NewAuthError creates a new AuthError
func NewAuthError(mode DeploymentMode, message string, cause error) *AuthError {
	return &AuthError{Mode: mode, Message: message, Cause: cause}
}

// RateLimitExceededError is returned when the 429 backoff budget is exhausted
type RateLimitExceededError struct {
	Attempts  int           `json:"attempts"`
	LastDelay time.Duration `json:"last_delay"`
}

// Error implements the error interface
func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limited by service: gave up after %d attempts (last delay %v)", e.Attempts, e.LastDelay)
}

// TimeoutError is returned when a request exceeds the service's 30s ceiling.
// It is never retried automatically: exceeding the ceiling means the query
// itself is too heavy, not that the service is transiently slow.
type TimeoutError struct {
	URL   string        `json:"url"`
	Limit time.Duration `json:"limit"`
	Cause error         `json:"-"`
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s exceeded the %v query ceiling", e.URL, e.Limit)
}

// Unwrap returns the underlying error
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// BusyError is returned when the RateGate wait policy is exceeded
type BusyError struct {
	Tenant string        `json:"tenant"`
	Waited time.Duration `json:"waited"`
}

// Error implements the error interface
func (e *BusyError) Error() string {
	if e.Waited > 0 {
		return fmt.Sprintf("another query is in flight for tenant %s (waited %v)", e.Tenant, e.Waited)
	}
	return fmt.Sprintf("another query is in flight for tenant %s", e.Tenant)
}

// RemoteError represents any other non-success status or OData error envelope
type RemoteError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	Body       string `json:"body,omitempty"`
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	if e.Code != "" || e.Message != "" {
		return fmt.Sprintf("service error (HTTP %d): %s %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("service error (HTTP %d)", e.StatusCode)
}

// IsNotFound reports whether the error is an HTTP 404
func (e *RemoteError) IsNotFound() bool {
	return e.StatusCode == 404
}

// NetworkError represents a transport-level failure (connection refused,
// DNS, reset) as opposed to a response the service actually produced.
type NetworkError struct {
	URL     string `json:"url"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error for %s: %s", e.URL, e.Message)
}

// Unwrap returns the underlying error
func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// Helper functions for safe error type checking with wrapped errors

// AsConfigurationError safely extracts a ConfigurationError from an error chain
func AsConfigurationError(err error) (*ConfigurationError, bool) {
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return cfgErr, true
	}
	return nil, false
}

// AsValidationError safely extracts a ValidationError from an error chain
func AsValidationError(err error) (*ValidationError, bool) {
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return valErr, true
	}
	return nil, false
}

// AsAuthError safely extracts an AuthError from an error chain
func AsAuthError(err error) (*AuthError, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}

// AsRateLimitExceededError safely extracts a RateLimitExceededError from an error chain
func AsRateLimitExceededError(err error) (*RateLimitExceededError, bool) {
	var rlErr *RateLimitExceededError
	if errors.As(err, &rlErr) {
		return rlErr, true
	}
	return nil, false
}

// AsTimeoutError safely extracts a TimeoutError from an error chain
func AsTimeoutError(err error) (*TimeoutError, bool) {
	var toErr *TimeoutError
	if errors.As(err, &toErr) {
		return toErr, true
	}
	return nil, false
}

// AsBusyError safely extracts a BusyError from an error chain
func AsBusyError(err error) (*BusyError, bool) {
	var busyErr *BusyError
	if errors.As(err, &busyErr) {
		return busyErr, true
	}
	return nil, false
}

// AsRemoteError safely extracts a RemoteError from an error chain
func AsRemoteError(err error) (*RemoteError, bool) {
	var remErr *RemoteError
	if errors.As(err, &remErr) {
		return remErr, true
	}
	return nil, false
}

// AsNetworkError safely extracts a NetworkError from an error chain
func AsNetworkError(err error) (*NetworkError, bool) {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr, true
	}
	return nil, false
}
