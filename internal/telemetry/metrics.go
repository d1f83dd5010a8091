package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// PollMetricsMeterName is the name used for the poll metrics meter
	PollMetricsMeterName = "github.com/geekuality/posti-delivery-dates/poll"

	// CodeMetricsMeterName is the name used for the postal-code metrics meter
	CodeMetricsMeterName = "github.com/geekuality/posti-delivery-dates/codes"
)

// PollMetrics holds the OpenTelemetry instruments for poll cycle metrics
type PollMetrics struct {
	cycleDuration metric.Float64Histogram
}

// NewPollMetrics creates a new PollMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewPollMetrics(provider metric.MeterProvider) (*PollMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(PollMetricsMeterName)

	cycleDuration, err := meter.Float64Histogram(
		"postid_poll_cycle_duration_seconds",
		metric.WithDescription("Duration of poll cycles in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	return &PollMetrics{
		cycleDuration: cycleDuration,
	}, nil
}

// RecordCycleDuration records the duration of one poll cycle for a postal code
func (m *PollMetrics) RecordCycleDuration(
	ctx context.Context, postalCode string, duration time.Duration, success bool, reason string,
) {
	if m == nil || m.cycleDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("postal_code", postalCode),
		attribute.Bool("success", success),
		attribute.String("reason", reason),
	}

	m.cycleDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// CodeMetrics holds the OpenTelemetry instruments for per-code gauges
type CodeMetrics struct {
	codesRegistered metric.Int64UpDownCounter
	deliveryCount   metric.Int64Gauge
}

// NewCodeMetrics creates a new CodeMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewCodeMetrics(provider metric.MeterProvider) (*CodeMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(CodeMetricsMeterName)

	codesRegistered, err := meter.Int64UpDownCounter(
		"postid_codes_registered",
		metric.WithDescription("Number of registered postal codes"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, err
	}

	deliveryCount, err := meter.Int64Gauge(
		"postid_delivery_dates",
		metric.WithDescription("Number of announced delivery dates per postal code"),
		metric.WithUnit("{date}"),
	)
	if err != nil {
		return nil, err
	}

	return &CodeMetrics{
		codesRegistered: codesRegistered,
		deliveryCount:   deliveryCount,
	}, nil
}

// RecordCodeRegistered adjusts the registered-codes counter by delta
func (m *CodeMetrics) RecordCodeRegistered(ctx context.Context, delta int64) {
	if m == nil || m.codesRegistered == nil {
		return
	}
	m.codesRegistered.Add(ctx, delta)
}

// RecordDeliveryCount records the current number of announced dates for a code
func (m *CodeMetrics) RecordDeliveryCount(ctx context.Context, postalCode string, count int64) {
	if m == nil || m.deliveryCount == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("postal_code", postalCode),
	}

	m.deliveryCount.Record(ctx, count, metric.WithAttributes(attrs...))
}
