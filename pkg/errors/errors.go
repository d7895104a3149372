// Package errors provides a structured error system for cachewarden with error codes, categories, and context.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for cachewarden operations.
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigSave       ErrorCode = "CONFIG_SAVE"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Sampling errors
	ErrCodeSampleUnavailable ErrorCode = "SAMPLE_UNAVAILABLE"

	// Reclaim errors
	ErrCodeReclaimDegraded ErrorCode = "RECLAIM_DEGRADED"
	ErrCodeReclaimFailed   ErrorCode = "RECLAIM_FAILED"
	ErrCodeReclaimTimeout  ErrorCode = "RECLAIM_TIMEOUT"

	// State errors
	ErrCodeAlreadyStarted      ErrorCode = "ALREADY_STARTED"
	ErrCodeInvalidState        ErrorCode = "INVALID_STATE"
	ErrCodeUnsupportedPlatform ErrorCode = "UNSUPPORTED_PLATFORM"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategorySampling      ErrorCategory = "sampling"
	CategoryReclaim       ErrorCategory = "reclaim"
	CategoryState         ErrorCategory = "state"
	CategoryInternal      ErrorCategory = "internal"
)

// WardenError represents a structured error with context and metadata.
type WardenError struct {
	Code     ErrorCode         `json:"code"`
	Category ErrorCategory     `json:"category"`
	Message  string            `json:"message"`
	Context  map[string]string `json:"context,omitempty"`

	Cause     error     `json:"-"` // Not serialized to avoid circular refs
	Timestamp time.Time `json:"timestamp"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	// Error handling hints
	Retryable  bool `json:"retryable"`
	UserFacing bool `json:"user_facing"`
}

// Error implements the error interface.
func (e *WardenError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *WardenError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *WardenError) Is(target error) bool {
	if wardenErr, ok := target.(*WardenError); ok {
		return e.Code == wardenErr.Code
	}
	return false
}

// NewError creates a new cachewarden error with default values.
func NewError(code ErrorCode, message string) *WardenError {
	return &WardenError{
		Code:       code,
		Category:   GetCategory(code),
		Message:    message,
		Timestamp:  time.Now(),
		Context:    make(map[string]string),
		Retryable:  IsRetryableByDefault(code),
		UserFacing: IsUserFacingByDefault(code),
	}
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "SAMPLE_"):
		return CategorySampling
	case strings.HasPrefix(codeStr, "RECLAIM_"):
		return CategoryReclaim
	case strings.HasPrefix(codeStr, "ALREADY_") || strings.HasPrefix(codeStr, "INVALID_STATE") ||
		strings.HasPrefix(codeStr, "UNSUPPORTED_"):
		return CategoryState
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
func IsRetryableByDefault(code ErrorCode) bool {
	retryableCodes := map[ErrorCode]bool{
		ErrCodeSampleUnavailable: true,
		ErrCodeReclaimDegraded:   true,
		ErrCodeReclaimTimeout:    true,
	}
	return retryableCodes[code]
}

// IsUserFacingByDefault determines if an error should be shown to users.
func IsUserFacingByDefault(code ErrorCode) bool {
	userFacingCodes := map[ErrorCode]bool{
		ErrCodeInvalidConfig:       true,
		ErrCodeConfigValidation:    true,
		ErrCodeReclaimDegraded:     true,
		ErrCodeReclaimFailed:       true,
		ErrCodeUnsupportedPlatform: true,
	}
	return userFacingCodes[code]
}

// WithContext adds contextual information to an error
func (e *WardenError) WithContext(key, value string) *WardenError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *WardenError) WithComponent(component string) *WardenError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *WardenError) WithOperation(operation string) *WardenError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *WardenError) WithCause(cause error) *WardenError {
	e.Cause = cause
	return e
}

// UserFacingMessage returns a simplified message suitable for status display
func (e *WardenError) UserFacingMessage() string {
	if !e.UserFacing {
		return "An internal error occurred"
	}

	messages := map[ErrorCode]string{
		ErrCodeInvalidConfig:       "Invalid configuration",
		ErrCodeConfigValidation:    "Configuration validation failed",
		ErrCodeReclaimDegraded:     "Cleanup completed with reduced effect - check privileges",
		ErrCodeReclaimFailed:       "Cleanup failed",
		ErrCodeUnsupportedPlatform: "Cleanup not supported on this platform",
	}

	if msg, exists := messages[e.Code]; exists {
		return msg
	}
	return e.Message
}
