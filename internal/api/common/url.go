package common

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/geekuality/posti-delivery-dates/internal/validators"
)

// PostalCodeParam extracts the named URL parameter and normalizes it as a
// postal code. The value is path-unescaped and validated against the
// five-digit shape before any handler sees it.
func PostalCodeParam(r *http.Request, paramName string) (string, error) {
	encoded := chi.URLParam(r, paramName)

	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", paramName)
	}

	code, err := validators.ValidatePostalCode(decoded)
	if err != nil {
		return "", fmt.Errorf("invalid %s: %w", paramName, err)
	}
	return code, nil
}
