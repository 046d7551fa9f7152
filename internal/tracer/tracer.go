// Package tracer wraps OpenTelemetry so terminal query operations can emit
// one span per round trip without the builder depending on otel directly.
package tracer

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies spans produced by this module.
const InstrumentationName = "github.com/coregx/pgquery"

// DBSystem is the db.system attribute value for every span.
const DBSystem = "postgresql"

// Tracer starts spans.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span is the subset of trace.Span used by the execution adapter.
type Span interface {
	SetAttributes(attrs ...attribute.KeyValue)
	RecordError(err error)
	SetStatus(code codes.Code, description string)
	End()
}

// NoopTracer is used when tracing is not configured.
type NoopTracer struct{}

// StartSpan returns ctx unchanged and a span that records nothing.
func (n *NoopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, &NoopSpan{}
}

// NoopSpan records nothing.
type NoopSpan struct{}

// SetAttributes does nothing.
func (n *NoopSpan) SetAttributes(_ ...attribute.KeyValue) {}

// RecordError does nothing.
func (n *NoopSpan) RecordError(_ error) {}

// SetStatus does nothing.
func (n *NoopSpan) SetStatus(_ codes.Code, _ string) {}

// End does nothing.
func (n *NoopSpan) End() {}

// OtelTracer adapts an OpenTelemetry tracer.
type OtelTracer struct {
	tracer trace.Tracer
}

// NewOtelTracer wraps tracer, which must not be nil.
func NewOtelTracer(tracer trace.Tracer) *OtelTracer {
	return &OtelTracer{tracer: tracer}
}

// NewProviderTracer obtains a tracer named after this module from tp.
func NewProviderTracer(tp trace.TracerProvider) *OtelTracer {
	return NewOtelTracer(tp.Tracer(InstrumentationName))
}

// StartSpan starts a client span.
func (t *OtelTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	return ctx, &OtelSpan{span: span}
}

// OtelSpan adapts an OpenTelemetry span.
type OtelSpan struct {
	span trace.Span
}

// SetAttributes forwards to the underlying span.
func (s *OtelSpan) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

// RecordError forwards to the underlying span.
func (s *OtelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

// SetStatus forwards to the underlying span.
func (s *OtelSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

// End forwards to the underlying span.
func (s *OtelSpan) End() {
	s.span.End()
}

// QueryMetadata describes one executed statement. Parameter values are never
// attached to spans; only their count is.
type QueryMetadata struct {
	SQL        string
	ParamCount int
	Duration   time.Duration
	Rows       int64
	Attempts   int
	Error      error
	Operation  string
	Table      string
}

// SpanName returns the span name for an operation, e.g. "pgquery.SELECT".
func SpanName(operation string) string {
	return "pgquery." + operation
}

// AddQueryAttributes sets database semantic-convention attributes and the
// span status.
func AddQueryAttributes(span Span, meta *QueryMetadata) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", DBSystem),
		attribute.String("db.statement", meta.SQL),
		attribute.String("db.operation", meta.Operation),
		attribute.Int("db.params.count", meta.ParamCount),
		attribute.Float64("db.duration_ms", float64(meta.Duration.Microseconds())/1000.0),
	}
	if meta.Table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", meta.Table))
	}
	if meta.Rows > 0 {
		attrs = append(attrs, attribute.Int64("db.rows", meta.Rows))
	}
	if meta.Attempts > 1 {
		attrs = append(attrs, attribute.Int("db.attempts", meta.Attempts))
	}
	span.SetAttributes(attrs...)

	if meta.Error != nil {
		span.RecordError(meta.Error)
		span.SetStatus(codes.Error, meta.Error.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

var (
	// afterCTE finds the statement verb that follows a WITH list.
	afterCTE   = regexp.MustCompile(`(?is)^WITH\b.*\)\s*(SELECT|INSERT|UPDATE|DELETE)\b`)
	onConflict = regexp.MustCompile(`(?i)\bON\s+CONFLICT\b`)
)

// DetectOperation classifies a statement as SELECT, INSERT, UPSERT, UPDATE,
// DELETE, EXPLAIN or OTHER.
func DetectOperation(sql string) string {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	if m := afterCTE.FindStringSubmatch(upper); m != nil {
		return m[1]
	}
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE", "EXPLAIN"} {
		if strings.HasPrefix(upper, verb) {
			if verb == "INSERT" && onConflict.MatchString(upper) {
				return "UPSERT"
			}
			return verb
		}
	}
	if strings.HasPrefix(upper, "WITH") {
		return "SELECT"
	}
	return "OTHER"
}
