package main

import (
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/mrhavens/becomingone/node/internal/config"
)

// traceOutput opens the destination for stdout-exporter spans.
func traceOutput(cfg config.TracingConfig) (io.WriteCloser, error) {
	if cfg.Path == "" {
		return nopCloser{os.Stderr}, nil
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("tracing: open %s: %w", cfg.Path, err)
	}
	return f, nil
}

// newTracerProvider builds a provider exporting to w and installs it as the
// global provider. It returns nil when the exporter is none.
func newTracerProvider(cfg config.TracingConfig, nodeID string, w io.Writer) (*sdktrace.TracerProvider, error) {
	switch cfg.Exporter {
	case "", "none":
		return nil, nil
	case "stdout":
	default:
		return nil, fmt.Errorf("tracing: unknown exporter %q", cfg.Exporter)
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("tracing: stdout exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "coherenced"),
			attribute.String("node.id", nodeID),
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
