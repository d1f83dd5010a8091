// Package posti fetches delivery schedules from the remote maildelivery
// endpoint. One fetch is one request/response cycle returning either a
// validated date list or a typed *FetchError.
package posti

import (
	"context"
	"fmt"
)

// FetchErrorKind classifies fetch failures.
type FetchErrorKind string

const (
	// KindUnreachable means a network or transport level failure
	KindUnreachable FetchErrorKind = "unreachable"

	// KindTimeout means the request exceeded the configured timeout
	KindTimeout FetchErrorKind = "timeout"

	// KindBadStatus means the endpoint answered with a non-success status
	KindBadStatus FetchErrorKind = "bad-status"

	// KindEmptyOrMalformed means the body decoded but was structurally
	// invalid or carried no delivery dates
	KindEmptyOrMalformed FetchErrorKind = "empty-or-malformed"
)

// FetchError is the typed failure returned by a Fetcher.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch failed (%s, HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("fetch failed (%s): %s", e.Kind, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the next scheduled cycle should retry.
// All fetch failures are retryable; the distinction only matters for
// logging and diagnosis.
func (e *FetchError) IsRetryable() bool {
	return true
}

// scheduleEntry is one element of the remote response body.
type scheduleEntry struct {
	PostalCode    string   `json:"postalCode"`
	DeliveryDates []string `json:"deliveryDates"`
}

// Fetcher performs one request/response cycle against the schedule source.
//
//go:generate mockgen -destination=mocks/mock_fetcher.go -package=mocks github.com/geekuality/posti-delivery-dates/internal/posti Fetcher
type Fetcher interface {
	// Fetch returns the announced delivery dates for a postal code.
	// Failures are *FetchError values.
	Fetch(ctx context.Context, postalCode string) ([]string, error)
}
