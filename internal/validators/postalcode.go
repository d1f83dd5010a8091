// Package validators provides validation functions for delivery-schedule entities.
package validators

import (
	"fmt"
	"regexp"
	"strings"
)

const postalCodeLength = 5

// Postal code pattern: exactly five ASCII digits, the Finnish format the
// schedule source keys on.
var postalCodePattern = regexp.MustCompile(`^\d{5}$`)

// ValidatePostalCode validates a postal code for use as a schedule key.
// Returns the validated code (trimmed) and an error if validation fails.
//
// Format requirements:
// - Exactly 5 digits after trimming surrounding whitespace
// - No separators, letters, or country prefixes
//
// Examples of valid codes:
//   - 00100
//   - 33100
//
// Examples of invalid codes:
//   - 0010 (too short)
//   - 00100-1 (separator)
//   - FI-00100 (country prefix)
func ValidatePostalCode(code string) (string, error) {
	code = strings.TrimSpace(code)

	if code == "" {
		return "", fmt.Errorf("postal code cannot be empty")
	}

	if len(code) != postalCodeLength {
		return "", fmt.Errorf("postal code must be exactly %d digits long", postalCodeLength)
	}

	if !postalCodePattern.MatchString(code) {
		return "", fmt.Errorf("postal code '%s' is invalid. Postal codes contain digits only", code)
	}

	return code, nil
}

// IsValidPostalCode checks if a postal code is valid.
// This is a convenience wrapper around ValidatePostalCode for boolean checks.
func IsValidPostalCode(code string) bool {
	_, err := ValidatePostalCode(code)
	return err == nil
}
