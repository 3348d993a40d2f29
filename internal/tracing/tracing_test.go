package tracing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_RecordsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, span := Start(context.Background(), "consensus.symbol", attribute.String("symbol", "BTCUSDT"))
	assert.NotEmpty(t, TraceID(ctx))
	Fail(span, errors.New("boom"))
	Fail(span, nil)
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "consensus.symbol", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Contains(t, ended[0].Attributes(), attribute.String("symbol", "BTCUSDT"))
}

func TestTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
}

func TestInit(t *testing.T) {
	shutdown, err := Init(Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	path := filepath.Join(t.TempDir(), "traces", "spans.jsonl")
	shutdown, err = Init(Config{Enabled: true, ServiceName: "quorum-test", Output: path})
	require.NoError(t, err)
	_, span := Start(context.Background(), "consensus.decide")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "consensus.decide")
}
