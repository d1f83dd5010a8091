package validators

import (
	"strings"
	"testing"
)

func TestValidatePostalCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		code        string
		expectValid bool
		expectError string
	}{
		// Valid cases
		{
			name:        "helsinki centre",
			code:        "00100",
			expectValid: true,
		},
		{
			name:        "tampere",
			code:        "33100",
			expectValid: true,
		},
		{
			name:        "leading whitespace trimmed",
			code:        "  00100",
			expectValid: true,
		},
		{
			name:        "trailing whitespace trimmed",
			code:        "00100  ",
			expectValid: true,
		},

		// Invalid cases
		{
			name:        "empty string",
			code:        "",
			expectValid: false,
			expectError: "cannot be empty",
		},
		{
			name:        "whitespace only",
			code:        "   ",
			expectValid: false,
			expectError: "cannot be empty",
		},
		{
			name:        "too short",
			code:        "0010",
			expectValid: false,
			expectError: "exactly 5 digits",
		},
		{
			name:        "too long",
			code:        "001000",
			expectValid: false,
			expectError: "exactly 5 digits",
		},
		{
			name:        "letters",
			code:        "0010a",
			expectValid: false,
			expectError: "digits only",
		},
		{
			name:        "separator",
			code:        "001-0",
			expectValid: false,
			expectError: "digits only",
		},
		{
			name:        "country prefix",
			code:        "FI-00100",
			expectValid: false,
			expectError: "exactly 5 digits",
		},
		{
			name:        "interior whitespace",
			code:        "00 10",
			expectValid: false,
			expectError: "exactly 5 digits",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result, err := ValidatePostalCode(tt.code)

			if tt.expectValid {
				if err != nil {
					t.Errorf("Expected valid, got error: %v", err)
				}
				if result != strings.TrimSpace(tt.code) {
					t.Errorf("Expected result to be trimmed: got %q, want %q", result, strings.TrimSpace(tt.code))
				}
			} else {
				if err == nil {
					t.Errorf("Expected error, got nil")
				}
				if tt.expectError != "" && !strings.Contains(err.Error(), tt.expectError) {
					t.Errorf("Expected error containing %q, got %q", tt.expectError, err.Error())
				}
			}
		})
	}
}

func TestIsValidPostalCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		code        string
		expectValid bool
	}{
		{
			name:        "valid code",
			code:        "00100",
			expectValid: true,
		},
		{
			name:        "invalid code",
			code:        "not-a-code",
			expectValid: false,
		},
		{
			name:        "empty",
			code:        "",
			expectValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsValidPostalCode(tt.code); got != tt.expectValid {
				t.Errorf("IsValidPostalCode(%q) = %v, want %v", tt.code, got, tt.expectValid)
			}
		})
	}
}
