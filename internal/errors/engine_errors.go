package errors

import (
	"fmt"
	"strings"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	// Critical errors that should stop the engine
	ErrorCategoryFatal         ErrorCategory = "FATAL"
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"
	ErrorCategoryCredentials   ErrorCategory = "CREDENTIALS"

	// Recoverable errors handled within a cycle
	ErrorCategoryDataUnavailable ErrorCategory = "DATA_UNAVAILABLE"
	ErrorCategoryExecution       ErrorCategory = "EXECUTION"
	ErrorCategoryRiskLimit       ErrorCategory = "RISK_LIMIT"
	ErrorCategoryPresetSwitch    ErrorCategory = "PRESET_SWITCH"
	ErrorCategoryValidation      ErrorCategory = "VALIDATION"

	// Transport-level errors
	ErrorCategoryNetwork ErrorCategory = "NETWORK"
	ErrorCategoryTimeout ErrorCategory = "TIMEOUT"
)

// EngineError represents a categorized error with component context
type EngineError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Retryable  bool
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s in %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s in %s", e.Category, e.Component, e.Operation, e.Message)
}

// Unwrap returns the underlying error for error unwrapping
func (e *EngineError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether the failed condition may clear on a later cycle
func (e *EngineError) IsRetryable() bool {
	return e.Retryable
}

// IsFatal returns whether this error should stop the engine
func (e *EngineError) IsFatal() bool {
	return e.Category == ErrorCategoryFatal ||
		e.Category == ErrorCategoryCredentials ||
		e.Category == ErrorCategoryConfiguration
}

// New creates a new categorized engine error
func New(category ErrorCategory, component, operation, message string) *EngineError {
	return &EngineError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Retryable: isRetryableCategory(category),
	}
}

// Wrap wraps an existing error with engine error context
func Wrap(err error, category ErrorCategory, component, operation string) *EngineError {
	if err == nil {
		return nil
	}
	return &EngineError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Retryable:  isRetryableCategory(category),
	}
}

// WithRetryable overrides the retryable flag
func (e *EngineError) WithRetryable(retryable bool) *EngineError {
	e.Retryable = retryable
	return e
}

func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryFatal, ErrorCategoryCredentials, ErrorCategoryConfiguration, ErrorCategoryValidation:
		return false
	case ErrorCategoryRiskLimit, ErrorCategoryPresetSwitch:
		// Re-checked every cycle anyway; never retried eagerly
		return false
	default:
		return true
	}
}

// Categorize attempts to classify a generic error from a provider call
func Categorize(err error, component, operation string) *EngineError {
	if err == nil {
		return nil
	}

	if engErr, ok := err.(*EngineError); ok {
		return engErr
	}

	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "timeout") || strings.Contains(msg, "context deadline exceeded") {
		return Wrap(err, ErrorCategoryTimeout, component, operation)
	}
	if strings.Contains(msg, "connection") || strings.Contains(msg, "network") ||
		strings.Contains(msg, "dns") || strings.Contains(msg, "dial") {
		return Wrap(err, ErrorCategoryNetwork, component, operation)
	}
	if strings.Contains(msg, "api key") || strings.Contains(msg, "api secret") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "authentication") {
		return Wrap(err, ErrorCategoryCredentials, component, operation)
	}
	if strings.Contains(msg, "unavailable") || strings.Contains(msg, "not trained") {
		return Wrap(err, ErrorCategoryDataUnavailable, component, operation)
	}
	if strings.Contains(msg, "insufficient") || strings.Contains(msg, "rejected") ||
		strings.Contains(msg, "no fill") {
		return Wrap(err, ErrorCategoryExecution, component, operation)
	}

	// Unknown failures default to execution scope so the cycle skips, never crashes
	return Wrap(err, ErrorCategoryExecution, component, operation)
}

// Common constructors

func NewDataUnavailable(component, symbol string) *EngineError {
	return New(ErrorCategoryDataUnavailable, component, "snapshot", fmt.Sprintf("no data for %s", symbol))
}

func NewExecutionFailure(component, operation string, err error) *EngineError {
	return Wrap(err, ErrorCategoryExecution, component, operation)
}

func NewRiskLimitExceeded(component, reason string) *EngineError {
	return New(ErrorCategoryRiskLimit, component, "gate", reason)
}

func NewPresetSwitchRejected(reason string) *EngineError {
	return New(ErrorCategoryPresetSwitch, "preset", "switch", reason)
}

func NewConfigurationError(component, message string) *EngineError {
	return New(ErrorCategoryConfiguration, component, "load", message)
}
