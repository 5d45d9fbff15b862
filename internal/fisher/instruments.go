package fisher

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orthofisher/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/orthofisher/internal/fisher"

// Instruments bundles the observability handles shared by every stage. Any
// field may be nil.
type Instruments struct {
	Logger      *logging.Logger
	Metrics     *Metrics
	Diagnostics *Diagnostics
	Tracer      trace.Tracer
}

func (in Instruments) logger(ctx context.Context) *logging.Logger {
	if in.Logger != nil {
		return in.Logger
	}
	return logging.FromContext(ctx)
}

func (in Instruments) tracer() trace.Tracer {
	if in.Tracer != nil {
		return in.Tracer
	}
	return otel.Tracer(instrumentationName)
}

// empty records a (sample, gene) pair that yielded nothing.
func (in Instruments) empty(ctx context.Context, sample, gene, reason, detail string) {
	in.Metrics.RecordEmpty(reason)
	fields := []zap.Field{zap.String("reason", reason)}
	msg := reason
	if detail != "" {
		fields = append(fields, zap.String("detail", detail))
		msg += ": " + detail
	}
	in.Diagnostics.Report(Event{Kind: KindEmptyGene, Sample: sample, Gene: gene, Detail: msg})
	in.logger(ctx).Info(ctx, "no candidates", fields...)
}

// scoped tags ctx with the sample and gene being processed.
func scoped(ctx context.Context, sample, gene string) context.Context {
	if logging.SampleFromContext(ctx) != sample {
		ctx = logging.WithSample(ctx, sample)
	}
	if logging.GeneFromContext(ctx) != gene {
		ctx = logging.WithGene(ctx, gene)
	}
	return ctx
}

// toolFailure records an external search that failed and was absorbed as an
// empty result.
func (in Instruments) toolFailure(ctx context.Context, sample, gene string, err error) {
	in.logger(ctx).Warn(ctx, "external tool failed, continuing with empty result", zap.Error(err))
	in.Diagnostics.Report(Event{Kind: KindToolFailure, Sample: sample, Gene: gene, Detail: err.Error()})
	if gene != "" {
		in.Metrics.RecordEmpty(ReasonToolFailure)
	}
}
