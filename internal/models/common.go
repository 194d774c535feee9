package models

import (
	"errors"
	"net/http"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// NewErrorResponse creates a new error response
func NewErrorResponse(code, message, details string) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Common error codes
const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeInternalError   = "INTERNAL_ERROR"
	ErrCodeDatabaseError   = "DATABASE_ERROR"
	ErrCodeValidationError = "VALIDATION_ERROR"
	ErrCodeConsentNotFound = "CONSENT_NOT_FOUND"
	ErrCodeFileNotFound    = "FILE_NOT_FOUND"
	ErrCodeInvalidStatus   = "INVALID_STATUS"
	ErrCodeIdempotency     = "IDEMPOTENCY_VIOLATION"
)

// HTTPStatusForErrorCode returns the appropriate HTTP status code for an error code
func HTTPStatusForErrorCode(code string) int {
	switch code {
	case ErrCodeBadRequest, ErrCodeValidationError, ErrCodeInvalidStatus:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotFound, ErrCodeConsentNotFound, ErrCodeFileNotFound:
		return http.StatusNotFound
	case ErrCodeConflict, ErrCodeIdempotency:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Sentinel errors shared between DAOs and services
var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when a store-level uniqueness constraint is
	// violated, e.g. two concurrent creations racing on one idempotency key
	ErrDuplicateKey = errors.New("duplicate key")
)

// Consent lifecycle statuses
const (
	StatusAwaitingAuthorisation        = "awaitingAuthorisation"
	StatusAuthorised                   = "authorised"
	StatusAwaitingFurtherAuthorisation = "awaitingFurtherAuthorisation"
	StatusRejected                     = "rejected"
	StatusRevoked                      = "revoked"
	StatusExpired                      = "expired"
)

// IsTerminalStatus reports whether a consent in the given status is logically
// immutable (audit/history appends excepted).
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusRejected, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

// IsValidStatus reports whether the status is one of the known lifecycle states
func IsValidStatus(status string) bool {
	switch status {
	case StatusAwaitingAuthorisation, StatusAuthorised,
		StatusAwaitingFurtherAuthorisation, StatusRejected,
		StatusRevoked, StatusExpired:
		return true
	}
	return false
}

// IsValidTransition reports whether a consent may move from one status to
// another. Any non-terminal state may move to revoked or expired.
func IsValidTransition(from, to string) bool {
	if IsTerminalStatus(from) {
		return false
	}
	if to == StatusRevoked || to == StatusExpired {
		return true
	}
	switch from {
	case StatusAwaitingAuthorisation:
		return to == StatusAuthorised || to == StatusRejected
	case StatusAuthorised:
		return to == StatusAwaitingFurtherAuthorisation
	case StatusAwaitingFurtherAuthorisation:
		return to == StatusAuthorised
	}
	return false
}

// Authorization statuses
const (
	AuthStatusCreated  = "created"
	AuthStatusApproved = "approved"
	AuthStatusRejected = "rejected"
)

// Consent attribute keys reserved for idempotency tracking. Ordinary consent
// creation and file-upload sub-resources use distinct namespaces because file
// uploads window their dedup check off a separately stored creation time.
const (
	AttrIdempotencyKey           = "IdempotencyKey"
	AttrFileUploadIdempotencyKey = "FileUploadIdempotencyKey"
	AttrFileUploadCreatedTime    = "FileUploadCreatedTime"
)

// IsIdempotencyKeyAttribute reports whether the attribute carries an
// idempotency key value. Only these attributes are covered by the store's
// cross-consent uniqueness guarantee; ordinary business attributes may share
// values across consents.
func IsIdempotencyKeyAttribute(key string) bool {
	return key == AttrIdempotencyKey || key == AttrFileUploadIdempotencyKey
}
