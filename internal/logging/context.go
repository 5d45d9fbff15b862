package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context: the active span, the
// run id and the sample and gene being processed.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := RunIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("run.id", id))
	}
	if s := SampleFromContext(ctx); s != "" {
		fields = append(fields, zap.String("sample", s))
	}
	if g := GeneFromContext(ctx); g != "" {
		fields = append(fields, zap.String("gene", g))
	}
	return fields
}

type runIDCtxKey struct{}
type sampleCtxKey struct{}
type geneCtxKey struct{}

// WithRunID tags ctx with the run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDCtxKey{}, id)
}

// RunIDFromContext returns the run identifier, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDCtxKey{}).(string)
	return id
}

// WithSample tags ctx with the sample short name.
func WithSample(ctx context.Context, sample string) context.Context {
	return context.WithValue(ctx, sampleCtxKey{}, sample)
}

// SampleFromContext returns the sample short name, or "".
func SampleFromContext(ctx context.Context) string {
	s, _ := ctx.Value(sampleCtxKey{}).(string)
	return s
}

// WithGene tags ctx with the gene label.
func WithGene(ctx context.Context, gene string) context.Context {
	return context.WithValue(ctx, geneCtxKey{}, gene)
}

// GeneFromContext returns the gene label, or "".
func GeneFromContext(ctx context.Context) string {
	g, _ := ctx.Value(geneCtxKey{}).(string)
	return g
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
