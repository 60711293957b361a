package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Authentication errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
	ErrCodeExpiredToken ErrorCode = "EXPIRED_TOKEN"

	// Authorization errors
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeAccessDenied ErrorCode = "ACCESS_DENIED"

	// Not found errors
	ErrCodeNotFound             ErrorCode = "NOT_FOUND"
	ErrCodeConversationNotFound ErrorCode = "CONVERSATION_NOT_FOUND"
	ErrCodeKeyNotFound          ErrorCode = "KEY_NOT_FOUND"

	// Key material validation errors. Machine-readable so callers can
	// tell "needs regeneration" from "unrecoverable".
	ErrCodeInvalidSessionKey ErrorCode = "INVALID_SESSION_KEY"
	ErrCodeKeyParse          ErrorCode = "KEY_PARSE_ERROR"
	ErrCodeInvalidKeyLength  ErrorCode = "INVALID_KEY_LENGTH"
	ErrCodeInvalidIV         ErrorCode = "INVALID_IV"
	ErrCodeDecryptionFailed  ErrorCode = "DECRYPTION_FAILED"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WrapWithStatus wraps an existing error with an AppError and specific status code
func WrapWithStatus(code ErrorCode, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Validation errors
func ValidationError(message string) *AppError {
	return NewWithStatus(ErrCodeValidation, message, http.StatusBadRequest)
}

func InvalidInputError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

// Authentication errors
func UnauthorizedError(message string) *AppError {
	return NewWithStatus(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func InvalidTokenError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidToken, message, http.StatusUnauthorized)
}

// Authorization errors
func ForbiddenError(message string) *AppError {
	return NewWithStatus(ErrCodeForbidden, message, http.StatusForbidden)
}

// Not found errors
func NotFoundError(resource string) *AppError {
	return NewWithStatus(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func ConversationNotFoundError() *AppError {
	return NewWithStatus(ErrCodeConversationNotFound, "Conversation not found", http.StatusNotFound)
}

func KeyNotFoundError() *AppError {
	return NewWithStatus(ErrCodeKeyNotFound, "No session key found for this conversation", http.StatusNotFound)
}

// Key material validation errors (all non-retryable 400s)
func InvalidSessionKeyError() *AppError {
	return NewWithStatus(ErrCodeInvalidSessionKey,
		"Invalid session key. Please send a new message to regenerate the encryption key.",
		http.StatusBadRequest)
}

func KeyParseError(err error) *AppError {
	return WrapWithStatus(ErrCodeKeyParse, "Failed to parse session key", http.StatusBadRequest, err)
}

func InvalidKeyLengthError(got int) *AppError {
	return NewWithStatus(ErrCodeInvalidKeyLength,
		fmt.Sprintf("Invalid key length: expected 32 bytes, got %d bytes", got),
		http.StatusBadRequest)
}

func InvalidIVError() *AppError {
	return NewWithStatus(ErrCodeInvalidIV, "Invalid IV format", http.StatusBadRequest)
}

func DecryptionFailedError(err error) *AppError {
	return WrapWithStatus(ErrCodeDecryptionFailed,
		"Failed to decrypt message. The message may be corrupted or encrypted with a different key.",
		http.StatusBadRequest, err)
}

// Internal errors
func InternalError(message string) *AppError {
	return NewWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

func DatabaseError(err error) *AppError {
	return WrapWithStatus(ErrCodeDatabase, "Database error", http.StatusInternalServerError, err)
}

// IsAppError checks if an error is an AppError type
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as InternalError
func GetAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return InternalError(err.Error())
}
