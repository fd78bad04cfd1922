package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer with search-cache-specific span
// creation methods.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

// NewTracer creates a new Tracer using the given TracerProvider.
func NewTracer(tp trace.TracerProvider, serviceName string) *Tracer {
	return &Tracer{
		tracer:      tp.Tracer(TracerName),
		serviceName: serviceName,
	}
}

// StartSpan starts a new span with the given name and attributes.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, span
}

// StartFindOrCreate starts a span for a candidate match / record creation.
func (t *Tracer) StartFindOrCreate(ctx context.Context, resourceType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "searchcache.find_or_create", trace.WithAttributes(
		OperationAttr(OpFindOrCreate),
		ResourceTypeAttr(resourceType),
	))
}

// StartClaim starts a span for an execution-claim attempt.
func (t *Tracer) StartClaim(ctx context.Context, searchID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "searchcache.claim", trace.WithAttributes(
		OperationAttr(OpClaim),
		SearchIDAttr(searchID),
	))
}

// StartAppend starts a span for an owner's result append.
func (t *Tracer) StartAppend(ctx context.Context, searchID string, batchSize int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "searchcache.append", trace.WithAttributes(
		OperationAttr(OpAppend),
		SearchIDAttr(searchID),
		BatchSizeAttr(batchSize),
	))
}

// StartFetchPage starts a span for serving a page of results.
func (t *Tracer) StartFetchPage(ctx context.Context, searchID string, offset, count int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "searchcache.fetch_page", trace.WithAttributes(
		OperationAttr(OpFetchPage),
		SearchIDAttr(searchID),
		attribute.Int(AttrPageOffset, offset),
		attribute.Int(AttrPageCount, count),
	))
}

// StartEvictionPass starts a span for one sweeper pass.
func (t *Tracer) StartEvictionPass(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "searchcache.eviction_pass", trace.WithAttributes(
		OperationAttr(OpEvictionPass),
	))
}

// StartDBQuery starts a span for a database query.
func (t *Tracer) StartDBQuery(ctx context.Context, operation string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "db.query", trace.WithAttributes(
		attribute.String("db.operation", operation),
	))
}

// RecordError records an error on the span.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// LoggerWithTrace returns a logger enriched with trace context.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return logger
	}
	return logger.With(
		slog.String(LogFieldTraceID, span.SpanContext().TraceID().String()),
		slog.String(LogFieldSpanID, span.SpanContext().SpanID().String()),
	)
}
