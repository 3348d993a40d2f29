// Package tracing wires OpenTelemetry spans around consensus rounds and provider calls.
// Until Init installs a provider every span is a no-op.
package tracing

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "quorum"

// Config 控制 span 导出；Output 为空时写 stdout。
type Config struct {
	Enabled     bool
	ServiceName string
	Output      string
	Version     string
}

// ShutdownFunc flushes pending spans.
type ShutdownFunc func(context.Context) error

// Init installs a batching stdout exporter as the global tracer provider.
func Init(cfg Config) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop, nil
	}
	var (
		w    io.Writer = os.Stdout
		file *os.File
	)
	if path := strings.TrimSpace(cfg.Output); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		w, file = f, f
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	name := cfg.ServiceName
	if name == "" {
		name = instrumentation
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(name),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if file != nil {
			_ = file.Close()
		}
		return err
	}, nil
}

// Start opens a span on the global tracer.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentation).Start(ctx, name, trace.WithAttributes(attrs...))
}

// Fail records err on span and marks it failed.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceID returns the active trace id, or "" when ctx carries no valid span context.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
