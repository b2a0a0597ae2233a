// Package otelexport exports collected steps over OTLP. It is the only
// package that imports the OpenTelemetry SDK.
package otelexport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/holdfast/internal/tracing"
)

// Config configures the OpenTelemetry OTLP exporter.
type Config struct {
	Endpoint    string            // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            // "grpc" (default) or "http"
	Insecure    bool              // skip TLS for local dev
	ServiceName string            // OTEL service name (default "holdfast")
	Headers     map[string]string // extra headers (auth tokens, etc.)
}

// Exporter converts collected steps to OTel spans and exports via
// OTLP. It implements the tracing.SpanExporter interface.
type Exporter struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New creates an OTLP exporter with the given config.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTLP endpoint is required")
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "holdfast"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Protocol {
	case "http":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default: // "grpc"
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(100),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)

	return &Exporter{
		provider: tp,
		tracer:   tp.Tracer("holdfast"),
	}, nil
}

// ExportSteps converts collected steps to OTel spans and exports them.
// Called by the Collector during flush.
func (e *Exporter) ExportSteps(ctx context.Context, steps []tracing.Step) {
	if e == nil || len(steps) == 0 {
		return
	}

	for _, s := range steps {
		e.exportStep(ctx, s)
	}
}

func (e *Exporter) exportStep(ctx context.Context, s tracing.Step) {
	attrs := []attribute.KeyValue{
		attribute.String("holdfast.run_id", s.RunID.String()),
		attribute.String("holdfast.step_id", s.ID.String()),
	}
	if s.Scenario != "" {
		attrs = append(attrs, attribute.String("holdfast.scenario", s.Scenario))
	}
	for k, v := range s.Attrs {
		attrs = append(attrs, attribute.String("holdfast."+k, v))
	}
	if !s.End.IsZero() {
		attrs = append(attrs,
			attribute.Int64("holdfast.duration_ms", s.End.Sub(s.Start).Milliseconds()))
	}

	// Steps that talk to the remote browser are client spans.
	_, span := e.tracer.Start(ctx, s.Name,
		trace.WithTimestamp(s.Start),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	if s.Error != "" {
		span.SetStatus(codes.Error, s.Error)
		span.RecordError(fmt.Errorf("%s", s.Error))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	endTime := s.End
	if endTime.IsZero() {
		endTime = s.Start
	}
	span.End(trace.WithTimestamp(endTime))
}

// Shutdown flushes remaining spans and stops the provider.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	slog.Info("otel exporter shutting down")
	return e.provider.Shutdown(ctx)
}
