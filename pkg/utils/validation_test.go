package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateIdentifiers(t *testing.T) {
	t.Run("ValidateConsentID", func(t *testing.T) {
		assert.NoError(t, ValidateConsentID("CONSENT-123"))
		assert.Error(t, ValidateConsentID(""))
	})

	t.Run("ValidateClientID", func(t *testing.T) {
		assert.NoError(t, ValidateClientID("client-001"))
		assert.Error(t, ValidateClientID(""))
	})

	t.Run("ValidateOrgID", func(t *testing.T) {
		assert.NoError(t, ValidateOrgID("ORG-001"))
		assert.Error(t, ValidateOrgID(""))
	})

	t.Run("ValidateConsentType", func(t *testing.T) {
		assert.NoError(t, ValidateConsentType("accounts"))
		assert.Error(t, ValidateConsentType(""))
	})
}

func TestSanitizeLogValue(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain value untouched", "ABC123", "ABC123"},
		{"CRLF stripped", "ABC\r\n123", "ABC123"},
		{"bare newline stripped", "key\ninjected=true", "keyinjected=true"},
		{"bare carriage return stripped", "key\rvalue", "keyvalue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeLogValue(tt.input))
		})
	}
}

func TestValidateLimitAndOffset(t *testing.T) {
	assert.Equal(t, 20, ValidateLimit(0))
	assert.Equal(t, 100, ValidateLimit(500))
	assert.Equal(t, 25, ValidateLimit(25))
	assert.Equal(t, 0, ValidateOffset(-5))
	assert.Equal(t, 10, ValidateOffset(10))
}
