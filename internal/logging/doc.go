// Package logging provides structured logging with OpenTelemetry integration.
//
// Logger wraps Zap with:
//   - a custom Trace level (-2, below Debug)
//   - stderr and optional OpenTelemetry output
//   - automatic injection of trace_id, run.id, sample and gene from context
//   - level-aware sampling where errors are never sampled
//
// # Usage
//
//	cfg, err := logging.FromSettings(appCfg.Logging)
//	logger, err := logging.NewLogger(cfg, tel.LoggerProvider())
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithSample(ctx, "NewA")
//	logger.Info(ctx, "selected candidates", zap.Int("count", n))
//
// # Testing
//
// TestLogger records every entry for assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "gene empty", zap.String("reason", "no_profile_hits"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "gene empty")
//	tl.AssertField(t, "gene empty", "reason", "no_profile_hits")
//
// Logger is safe for concurrent use.
package logging
