package utils

import (
	"testing"
	"time"
)

func TestIsExpired_Milliseconds(t *testing.T) {
	tests := []struct {
		name        string
		expiryTime  int64
		expected    bool
		description string
	}{
		{
			name:        "Future time in milliseconds",
			expiryTime:  time.Now().Add(1 * time.Hour).UnixNano() / int64(time.Millisecond),
			expected:    false,
			description: "Should not be expired for future time in milliseconds",
		},
		{
			name:        "Past time in milliseconds",
			expiryTime:  time.Now().Add(-1 * time.Hour).UnixNano() / int64(time.Millisecond),
			expected:    true,
			description: "Should be expired for past time in milliseconds",
		},
		{
			name:        "Zero expiry time",
			expiryTime:  0,
			expected:    false,
			description: "Zero expiry time means no expiry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsExpired(tt.expiryTime)
			if result != tt.expected {
				t.Errorf("IsExpired(%d) = %v, want %v - %s", tt.expiryTime, result, tt.expected, tt.description)
			}
		})
	}
}

func TestIsExpired_MixedFormats(t *testing.T) {
	futureTimeSeconds := time.Now().Add(24 * time.Hour).Unix()
	futureTimeMillis := time.Now().Add(24 * time.Hour).UnixNano() / int64(time.Millisecond)

	pastTimeSeconds := time.Now().Add(-24 * time.Hour).Unix()
	pastTimeMillis := time.Now().Add(-24 * time.Hour).UnixNano() / int64(time.Millisecond)

	tests := []struct {
		name       string
		expiryTime int64
		expected   bool
	}{
		{"Future in seconds (10 digits)", futureTimeSeconds, false},
		{"Future in milliseconds (13 digits)", futureTimeMillis, false},
		{"Past in seconds (10 digits)", pastTimeSeconds, true},
		{"Past in milliseconds (13 digits)", pastTimeMillis, true},
		{"Future millisecond timestamp (2030-01-01)", 1893456000000, false},
		{"Future second timestamp (2030-01-01)", 1893456000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsExpired(tt.expiryTime)
			if result != tt.expected {
				t.Errorf("IsExpired(%d) = %v, want %v", tt.expiryTime, result, tt.expected)
			}
		})
	}
}

func TestGetCurrentTimeMillis(t *testing.T) {
	now := GetCurrentTimeMillis()

	// Should be a reasonable timestamp (after 2020 and before 2100)
	minTime := int64(1577836800000)
	maxTime := int64(4102444800000)

	if now < minTime || now > maxTime {
		t.Errorf("GetCurrentTimeMillis() = %d, expected between %d and %d", now, minTime, maxTime)
	}
}

func TestTimeConversionRoundTrip(t *testing.T) {
	millis := GetCurrentTimeMillis()
	converted := TimeToMillis(MillisToTime(millis))
	if converted != millis {
		t.Errorf("round trip changed value: got %d, want %d", converted, millis)
	}
}

func TestGetExpiryTime(t *testing.T) {
	before := GetCurrentTimeMillis()
	expiry := GetExpiryTime(60)
	after := GetCurrentTimeMillis()

	if expiry < before+60000 || expiry > after+60000 {
		t.Errorf("GetExpiryTime(60) = %d, expected ~%d", expiry, before+60000)
	}
}
