package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerConfig configures the spans wrapped around SyncController workflows
// (A/B/C). StartStoreOp exists for VectorStore RPC spans, but the adapters
// do not call it.
type TracerConfig struct {
	ServiceName  string
	OTLPEndpoint string
	Enabled      bool
}

// DefaultTracerConfig disables tracing, matching the donor's
// DefaultTracerConfig.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		ServiceName:  "syncore",
		OTLPEndpoint: "localhost:4317",
		Enabled:      false,
	}
}

// Tracer wraps an OpenTelemetry tracer; when disabled it still returns a
// usable no-op tracer so call sites don't branch on configuration.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds a Tracer from cfg. When cfg.Enabled is false, spans are
// created against the global no-op provider.
func NewTracer(ctx context.Context, cfg TracerConfig) (*Tracer, error) {
	if !cfg.Enabled {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, nil
	}

	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	return &Tracer{provider: provider, tracer: provider.Tracer(cfg.ServiceName)}, nil
}

// StartWorkflow starts a span for one SyncController workflow invocation
// (full-index, incremental, single-file, reconcile-ignore).
func (t *Tracer) StartWorkflow(ctx context.Context, workflow, codebase string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "syncctl.workflow."+workflow,
		trace.WithAttributes(attribute.String("codebase", codebase)))
}

// StartStoreOp starts a span for one VectorStore RPC.
func (t *Tracer) StartStoreOp(ctx context.Context, op, collection string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "vectorstore."+op,
		trace.WithAttributes(attribute.String("collection", collection)))
}

// EndWithError records err on span (if non-nil) and ends it.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Shutdown flushes and stops the exporter, if one was started.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return t.provider.Shutdown(shutdownCtx)
}
