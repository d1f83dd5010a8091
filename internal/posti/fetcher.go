package posti

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultURLTemplate is the schedule endpoint with a {postalCode} placeholder
	DefaultURLTemplate = "https://www.posti.fi/maildelivery-api-proxy/?q={postalCode}"

	// DefaultTimeout bounds a single fetch
	DefaultTimeout = 10 * time.Second

	// userAgent identifies the service to the remote endpoint
	userAgent = "postid/1.0"

	// placeholder is substituted with the query-escaped postal code
	placeholder = "{postalCode}"
)

// Option configures the HTTP fetcher.
type Option func(*httpFetcher)

// WithURLTemplate overrides the endpoint URL template.
func WithURLTemplate(template string) Option {
	return func(f *httpFetcher) {
		f.urlTemplate = template
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(f *httpFetcher) {
		f.client.SetTimeout(timeout)
	}
}

// httpFetcher implements Fetcher on top of resty.
type httpFetcher struct {
	client      *resty.Client
	urlTemplate string
}

// NewFetcher creates the HTTP implementation of Fetcher.
func NewFetcher(opts ...Option) Fetcher {
	client := resty.New()
	client.SetTimeout(DefaultTimeout)
	client.SetHeaders(map[string]string{
		"User-Agent": userAgent,
		"Accept":     "application/json",
	})

	f := &httpFetcher{
		client:      client,
		urlTemplate: DefaultURLTemplate,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs one GET against the schedule endpoint and validates the body.
func (f *httpFetcher) Fetch(ctx context.Context, postalCode string) ([]string, error) {
	endpoint := strings.ReplaceAll(f.urlTemplate, placeholder, url.QueryEscape(postalCode))

	resp, err := f.client.R().SetContext(ctx).Get(endpoint)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if resp.StatusCode() != 200 {
		return nil, &FetchError{
			Kind:       KindBadStatus,
			StatusCode: resp.StatusCode(),
			Message:    resp.Status(),
		}
	}

	return parseScheduleBody(resp.Body())
}

// classifyTransportError folds request errors into the timeout/unreachable kinds.
func classifyTransportError(err error) *FetchError {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return &FetchError{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	return &FetchError{Kind: KindUnreachable, Message: err.Error(), Err: err}
}

// parseScheduleBody decodes the response body and extracts the delivery-date
// list. The body must be a non-empty JSON array whose first element carries a
// non-empty deliveryDates list.
func parseScheduleBody(body []byte) ([]string, error) {
	var entries []scheduleEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, &FetchError{
			Kind:    KindEmptyOrMalformed,
			Message: fmt.Sprintf("failed to decode response body: %v", err),
			Err:     err,
		}
	}

	if len(entries) == 0 {
		return nil, &FetchError{
			Kind:    KindEmptyOrMalformed,
			Message: "response contained no schedule entries",
		}
	}

	if len(entries[0].DeliveryDates) == 0 {
		return nil, &FetchError{
			Kind:    KindEmptyOrMalformed,
			Message: "first schedule entry contained no delivery dates",
		}
	}

	return entries[0].DeliveryDates, nil
}
