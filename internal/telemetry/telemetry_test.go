package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		opts             []Option
		expectNoOpTracer bool
		expectNoOpMeter  bool
		expectError      bool
		errorContains    string
	}{
		{
			name:             "returns no-op telemetry when no config provided",
			opts:             []Option{},
			expectNoOpTracer: true,
			expectNoOpMeter:  true,
		},
		{
			name: "returns no-op telemetry when disabled",
			opts: []Option{
				WithTelemetryConfig(&Config{
					Enabled: false,
				}),
			},
			expectNoOpTracer: true,
			expectNoOpMeter:  true,
		},
		{
			name: "returns no-op providers when both tracing and metrics disabled",
			opts: []Option{
				WithTelemetryConfig(&Config{
					Enabled: true,
					Tracing: &TracingConfig{
						Enabled: false,
					},
					Metrics: &MetricsConfig{
						Enabled: false,
					},
				}),
			},
			expectNoOpTracer: true,
			expectNoOpMeter:  true,
		},
		{
			name: "returns error for invalid sampling",
			opts: []Option{
				WithTelemetryConfig(&Config{
					Enabled: true,
					Tracing: &TracingConfig{
						Enabled:  true,
						Sampling: 1.5,
					},
				}),
			},
			expectError:   true,
			errorContains: "invalid telemetry configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			tel, err := New(ctx, tt.opts...)

			if tt.expectError {
				require.Error(t, err)
				if tt.errorContains != "" {
					assert.Contains(t, err.Error(), tt.errorContains)
				}
				return
			}

			require.NoError(t, err)
			require.NotNil(t, tel)

			if tt.expectNoOpTracer {
				_, ok := tel.TracerProvider().(tracenoop.TracerProvider)
				assert.True(t, ok, "expected no-op tracer provider")
			}
			if tt.expectNoOpMeter {
				_, ok := tel.MeterProvider().(noop.MeterProvider)
				assert.True(t, ok, "expected no-op meter provider")
			}

			require.NoError(t, tel.Shutdown(ctx))
		})
	}
}

func TestNewWithPrometheus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tel, err := New(ctx, WithTelemetryConfig(&Config{
		Enabled: true,
		Metrics: &MetricsConfig{
			Enabled:    true,
			Prometheus: true,
		},
	}))
	require.NoError(t, err)
	defer func() {
		// Shutdown flushes to the OTLP endpoint; no collector runs here.
		_ = tel.Shutdown(ctx)
	}()

	_, ok := tel.MeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, ok, "expected SDK meter provider")
	assert.NotNil(t, tel.PrometheusHandler())
}

func TestPrometheusHandlerNilWithoutReader(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tel, err := New(ctx)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, tel.Shutdown(ctx))
	}()

	assert.Nil(t, tel.PrometheusHandler())
}
