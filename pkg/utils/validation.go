package utils

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation marks an error as a request validation failure. Handlers match
// it with errors.Is to answer 400 instead of 500; anything not wrapping it is
// treated as an internal error.
var ErrValidation = errors.New("validation failed")

// ValidateConsentID validates consent ID format
func ValidateConsentID(consentID string) error {
	if consentID == "" {
		return fmt.Errorf("%w: consent ID cannot be empty", ErrValidation)
	}
	if len(consentID) > 255 {
		return fmt.Errorf("%w: consent ID too long (max 255 characters)", ErrValidation)
	}
	return nil
}

// ValidateClientID validates client ID format
func ValidateClientID(clientID string) error {
	if clientID == "" {
		return fmt.Errorf("%w: client ID cannot be empty", ErrValidation)
	}
	if len(clientID) > 255 {
		return fmt.Errorf("%w: client ID too long (max 255 characters)", ErrValidation)
	}
	return nil
}

// ValidateOrgID validates organization ID
func ValidateOrgID(orgID string) error {
	if orgID == "" {
		return fmt.Errorf("%w: organization ID cannot be empty", ErrValidation)
	}
	if len(orgID) > 255 {
		return fmt.Errorf("%w: organization ID too long (max 255 characters)", ErrValidation)
	}
	return nil
}

// ValidateConsentType validates consent type
func ValidateConsentType(consentType string) error {
	if consentType == "" {
		return fmt.Errorf("%w: consent type cannot be empty", ErrValidation)
	}
	if len(consentType) > 64 {
		return fmt.Errorf("%w: consent type too long (max 64 characters)", ErrValidation)
	}
	return nil
}

// SanitizeString removes dangerous characters from user input
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	input = strings.TrimSpace(input)
	return input
}

// SanitizeLogValue strips CR/LF from a value before it reaches a log line, so
// untrusted header values cannot inject forged log records
func SanitizeLogValue(value string) string {
	value = strings.ReplaceAll(value, "\r", "")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// ValidateOffset validates pagination offset
func ValidateOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// ValidateRequired validates that a field is not empty
func ValidateRequired(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrValidation, fieldName)
	}
	return nil
}

// ValidateMaxLength validates maximum string length
func ValidateMaxLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d characters", ErrValidation, fieldName, maxLength)
	}
	return nil
}
