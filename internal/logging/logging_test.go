package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSetupTextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger, closer, err := Setup(WithWriter(&buf))
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer() })

	logger.Info("service starting", "address", ":8080")

	out := buf.String()
	assert.Contains(t, out, "service starting")
	assert.Contains(t, out, "address=:8080")
}

func TestSetupJSONFormat(t *testing.T) {
	var buf bytes.Buffer

	logger, closer, err := Setup(WithWriter(&buf), WithFormat("json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer() })

	logger.Info("service starting", "address", ":8080")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "service starting", entry["msg"])
	assert.Equal(t, ":8080", entry["address"])
}

func TestSetupDebugLevel(t *testing.T) {
	var buf bytes.Buffer

	logger, closer, err := Setup(WithWriter(&buf))
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer() })

	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	buf.Reset()
	logger, closer, err = Setup(WithWriter(&buf), WithDebug())
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer() })

	logger.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestSetupInjectsTraceIDs(t *testing.T) {
	var buf bytes.Buffer

	logger, closer, err := Setup(WithWriter(&buf), WithFormat("json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer() })

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.InfoContext(ctx, "inside span")
	span.End()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
	assert.NotEmpty(t, entry["span_id"])

	buf.Reset()
	logger.Info("outside span")
	var plain map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &plain))
	assert.NotContains(t, plain, "trace_id")
}

func TestSetupLogFile(t *testing.T) {
	var buf bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "logs", "postid.log")

	logger, closer, err := Setup(WithWriter(&buf), WithLogFile(logPath))
	require.NoError(t, err)

	logger.Info("written to both")
	require.NoError(t, closer())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to both")
	assert.Contains(t, buf.String(), "written to both")
}
