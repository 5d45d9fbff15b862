// Package telemetry provides OpenTelemetry tracing for fisher runs.
//
// Pipeline stages open spans on the tracer returned by Tracer; spans are
// exported over OTLP (gRPC or HTTP) when telemetry is enabled and are no-ops
// otherwise. Initialisation failures degrade the instance instead of failing
// the run.
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
//	defer tel.Shutdown(context.Background())
//
//	ctx, span := tel.Tracer("fisher").Start(ctx, "fisher.validate")
//	defer span.End()
//
// Tests use TestTelemetry, which records ended spans in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	// ... run code using tt.Tracer(...)
//	tt.AssertSpanExists(t, "fisher.validate")
package telemetry
