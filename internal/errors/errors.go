package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authorization flow
	ErrCodeMissingID      ErrorCode = "MISSING_ID"
	ErrCodeProviderDenied ErrorCode = "PROVIDER_DENIED"
	ErrCodeMissingData    ErrorCode = "MISSING_DATA"
	ErrCodeInvalidState   ErrorCode = "INVALID_STATE"

	// Token lifecycle
	ErrCodeNotLogged    ErrorCode = "NOT_LOGGED"
	ErrCodeRefreshError ErrorCode = "REFRESH_ERROR"

	// Playback
	ErrCodeProviderError    ErrorCode = "PROVIDER_ERROR"
	ErrCodeUnsupportedMedia ErrorCode = "UNSUPPORTED_MEDIA"

	// Controls
	ErrCodeControlFailed ErrorCode = "CONTROL_FAILED"
	ErrCodeInvalidAction ErrorCode = "INVALID_ACTION"

	// Validation
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func MissingCorrelationID() *AppError {
	return New(ErrCodeMissingID, "id is required")
}

func ProviderDenied(reason string) *AppError {
	return New(ErrCodeProviderDenied, fmt.Sprintf("Authorization denied by provider: %s", reason))
}

func MissingData(field string) *AppError {
	return New(ErrCodeMissingData, fmt.Sprintf("%s is required", field))
}

func InvalidState() *AppError {
	return New(ErrCodeInvalidState, "Invalid or expired authorization state")
}

func NotAuthenticated() *AppError {
	return New(ErrCodeNotLogged, "User not logged in")
}

func RefreshError(cause error) *AppError {
	return Wrap(ErrCodeRefreshError, "Session expired, please log in again", cause)
}

func ProviderError(message string, cause error) *AppError {
	return Wrap(ErrCodeProviderError, message, cause)
}

func UnsupportedMedia() *AppError {
	return New(ErrCodeUnsupportedMedia, "Currently playing media is not supported")
}

func ControlFailed(message string, cause error) *AppError {
	return Wrap(ErrCodeControlFailed, message, cause)
}

func InvalidAction(action string) *AppError {
	return New(ErrCodeInvalidAction, fmt.Sprintf("Invalid action: %q", action))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
