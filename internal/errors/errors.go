package errors

import (
	"fmt"
)

// ErrorCode classifies engine failures
type ErrorCode string

const (
	// Caller misuse: bad handle state, malformed config, bad frame or box
	ErrorUsage ErrorCode = "USAGE_ERROR"

	// Model asset missing or corrupt, only from LoadModel
	ErrorAsset ErrorCode = "ASSET_ERROR"

	// A loaded model failed at run time
	ErrorInference ErrorCode = "INFERENCE_FAILED"

	// Internal corruption, never caused by bad input
	ErrorFatal ErrorCode = "FATAL"
)

// EngineError is the structured error returned by every engine entry point
type EngineError struct {
	Code    ErrorCode
	Op      string
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s (caused by: %v)", e.Code, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is matches any EngineError carrying the same code, so the package
// sentinels work with errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Op == "" && t.Message == ""
}

// Sentinels for errors.Is checks
var (
	ErrUsage     = &EngineError{Code: ErrorUsage}
	ErrAsset     = &EngineError{Code: ErrorAsset}
	ErrInference = &EngineError{Code: ErrorInference}
	ErrFatal     = &EngineError{Code: ErrorFatal}
)

// Factory functions for common errors

func NewUsageError(op, message string) *EngineError {
	return &EngineError{
		Code:    ErrorUsage,
		Op:      op,
		Message: message,
	}
}

func NewUsageErrorf(op, format string, args ...interface{}) *EngineError {
	return NewUsageError(op, fmt.Sprintf(format, args...))
}

func NewAssetError(op, asset string, cause error) *EngineError {
	return &EngineError{
		Code:    ErrorAsset,
		Op:      op,
		Message: fmt.Sprintf("model asset %q unavailable", asset),
		Details: map[string]interface{}{
			"asset": asset,
		},
		Cause: cause,
	}
}

func NewInferenceError(op, model string, cause error) *EngineError {
	return &EngineError{
		Code:    ErrorInference,
		Op:      op,
		Message: fmt.Sprintf("model %q failed", model),
		Details: map[string]interface{}{
			"model": model,
		},
		Cause: cause,
	}
}

func NewFatalError(op, message string) *EngineError {
	return &EngineError{
		Code:    ErrorFatal,
		Op:      op,
		Message: message,
	}
}

// ToMap converts the error to log fields
func (e *EngineError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"op":         e.Op,
		"message":    e.Message,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}

// CodeOf returns the code of the first EngineError in err's chain,
// or an empty code.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if e, ok := err.(*EngineError); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
