// Package errors provides a structured error system for AssetFlow with error codes, categories, and retry hints.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for asset loading operations.
type ErrorCode string

// Error code constants organized by category.
const (
	// Configuration errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingEndpoints ErrorCode = "MISSING_ENDPOINTS"

	// Network and transport errors
	ErrCodeNetworkError ErrorCode = "NETWORK_ERROR"
	ErrCodeHTTPError    ErrorCode = "HTTP_ERROR"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"

	// Manifest errors
	ErrCodeDependencyCycle   ErrorCode = "DEPENDENCY_CYCLE"
	ErrCodeDependencyMissing ErrorCode = "DEPENDENCY_MISSING"
	ErrCodeDependencyFailed  ErrorCode = "DEPENDENCY_FAILED"

	// Operation errors
	ErrCodeRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"
	ErrCodeAllSourcesFailed  ErrorCode = "ALL_SOURCES_FAILED"
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryNetwork       ErrorCategory = "network"
	CategoryManifest      ErrorCategory = "manifest"
	CategoryOperation     ErrorCategory = "operation"
	CategoryInternal      ErrorCategory = "internal"
)

// Codes returns the fixed set of error codes, used by the metrics
// aggregator to pre-register per-kind counters.
func Codes() []ErrorCode {
	return []ErrorCode{
		ErrCodeInvalidConfig,
		ErrCodeMissingEndpoints,
		ErrCodeNetworkError,
		ErrCodeHTTPError,
		ErrCodeTimeout,
		ErrCodeDependencyCycle,
		ErrCodeDependencyMissing,
		ErrCodeDependencyFailed,
		ErrCodeRetryExhausted,
		ErrCodeAllSourcesFailed,
		ErrCodeOperationCanceled,
		ErrCodeInternalError,
	}
}

// AssetError represents a structured error with context and retry metadata.
type AssetError struct {
	Code     ErrorCode     `json:"code"`
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`

	// Contextual information
	URL       string    `json:"url,omitempty"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Cause     error     `json:"-"` // Not serialized to avoid circular refs
	Timestamp time.Time `json:"timestamp"`

	// Transport metadata
	HTTPStatus int `json:"http_status,omitempty"`

	// Retry metadata
	Retryable bool `json:"retryable"`
	Attempts  int  `json:"attempts,omitempty"`
}

// Error implements the error interface.
func (e *AssetError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("[%s] %s: %s", e.URL, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *AssetError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *AssetError) Is(target error) bool {
	if assetErr, ok := target.(*AssetError); ok {
		return e.Code == assetErr.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *AssetError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.URL != "" {
		parts = append(parts, fmt.Sprintf("URL=%s", e.URL))
	}
	if e.Endpoint != "" {
		parts = append(parts, fmt.Sprintf("Endpoint=%s", e.Endpoint))
	}
	if e.HTTPStatus != 0 {
		parts = append(parts, fmt.Sprintf("HTTPStatus=%d", e.HTTPStatus))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if e.Attempts > 0 {
		parts = append(parts, fmt.Sprintf("Attempts=%d", e.Attempts))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("AssetError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *AssetError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new asset error with default values.
func NewError(code ErrorCode, message string) *AssetError {
	return &AssetError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Retryable: IsRetryableByDefault(code),
	}
}

// NewHTTPError creates an HTTP_ERROR carrying the response status.
// Server-side statuses (5xx) and 429 are retryable; other client errors
// fail fast.
func NewHTTPError(status int, message string) *AssetError {
	err := NewError(ErrCodeHTTPError, message)
	err.HTTPStatus = status
	err.Retryable = status >= 500 || status == 429
	return err
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeMissingEndpoints:
		return CategoryConfiguration
	case ErrCodeNetworkError, ErrCodeHTTPError, ErrCodeTimeout:
		return CategoryNetwork
	case ErrCodeDependencyCycle, ErrCodeDependencyMissing, ErrCodeDependencyFailed:
		return CategoryManifest
	case ErrCodeRetryExhausted, ErrCodeAllSourcesFailed, ErrCodeOperationCanceled:
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error code is retryable by default.
// HTTP errors are status-dependent and classified by NewHTTPError instead.
func IsRetryableByDefault(code ErrorCode) bool {
	retryableCodes := map[ErrorCode]bool{
		ErrCodeNetworkError: true,
		ErrCodeTimeout:      true,
	}
	return retryableCodes[code]
}

// IsRetryable reports whether err should be retried. Non-AssetError values
// are treated as transient network-level failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var assetErr *AssetError
	if stderrors.As(err, &assetErr) {
		return assetErr.Retryable
	}
	return true
}

// CodeOf extracts the error code from err, or INTERNAL_ERROR if err carries
// no structured code.
func CodeOf(err error) ErrorCode {
	var assetErr *AssetError
	if stderrors.As(err, &assetErr) {
		return assetErr.Code
	}
	return ErrCodeInternalError
}

// WithURL sets the asset URL the error relates to.
func (e *AssetError) WithURL(url string) *AssetError {
	e.URL = url
	return e
}

// WithEndpoint sets the endpoint name the error originated from.
func (e *AssetError) WithEndpoint(endpoint string) *AssetError {
	e.Endpoint = endpoint
	return e
}

// WithCause sets the underlying cause.
func (e *AssetError) WithCause(cause error) *AssetError {
	e.Cause = cause
	return e
}

// WithAttempts records how many fetch attempts were made before giving up.
func (e *AssetError) WithAttempts(attempts int) *AssetError {
	e.Attempts = attempts
	return e
}
