package logging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/orthofisher/internal/config"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad format", func(c *Config) { c.Format = "xml" }},
		{"no outputs", func(c *Config) { c.Stderr = false }},
		{"zero tick", func(c *Config) { c.Sampling.Enabled = true; c.Sampling.Tick = 0 }},
		{"zero initial", func(c *Config) { c.Sampling.Enabled = true; c.Sampling.Initial = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			_, err := NewLogger(cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(config.LoggingConfig{Level: "trace", Format: "json", Sampling: true, OTEL: true})
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.True(t, cfg.Sampling.Enabled)
	assert.True(t, cfg.OTEL)

	_, err = FromSettings(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"trace", TraceLevel},
		{"TRACE", TraceLevel},
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := LevelFromString(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_ContextFields(t *testing.T) {
	tl := NewTestLogger()

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	ctx = WithRunID(ctx, "run-1")
	ctx = WithSample(ctx, "NewA")
	ctx = WithGene(ctx, "ADK2")
	tl.Info(ctx, "selected", zap.Int("count", 2))

	tl.AssertField(t, "selected", "run.id", "run-1")
	tl.AssertField(t, "selected", "sample", "NewA")
	tl.AssertField(t, "selected", "gene", "ADK2")
	tl.AssertField(t, "selected", "count", int64(2))
	tl.AssertField(t, "selected", "trace_id", span.SpanContext().TraceID().String())
	tl.AssertField(t, "selected", "span_id", span.SpanContext().SpanID().String())
}

func TestLogger_NoContextFields(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestLogger_Levels(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithGene(context.Background(), "RPL3")

	tl.Trace(ctx, "hmmsearch --tblout x")
	tl.Debug(ctx, "placement")
	tl.Info(ctx, "no candidates")
	tl.Warn(ctx, "hit not in proteome")
	tl.Error(ctx, "run failed")

	var levels []zapcore.Level
	for _, e := range tl.Entries() {
		levels = append(levels, e.Level)
		assert.Equal(t, "RPL3", e.ContextMap()["gene"])
		assert.Equal(t, "fisher", e.ContextMap()["service"])
	}
	assert.Equal(t, []zapcore.Level{TraceLevel, zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}, levels)
	assert.Contains(t, tl.Entries()[0].Caller.File, "logger_test.go")
}

func TestLogger_DisabledLevelSkipsContext(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := newLogger(core)
	logger.Debug(WithSample(context.Background(), "NewA"), "dropped")
	assert.Zero(t, observed.Len())
	assert.False(t, logger.Enabled(TraceLevel))
}

func TestFromContext(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Info(ctx, "via context")
	tl.AssertLogged(t, zapcore.InfoLevel, "via context")

	// Missing logger falls back to a nop logger.
	assert.NotPanics(t, func() { FromContext(context.Background()).Info(context.Background(), "dropped") })
}

func TestSampling_ErrorsNeverSampled(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := newLogger(newSampledCore(core, SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(time.Minute),
		Initial:    5,
		Thereafter: 0,
	}))
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		logger.Info(ctx, "candidate written")
		logger.Error(ctx, "writing collection failed")
	}

	assert.Len(t, observed.FilterMessage("writing collection failed").All(), 50)
	assert.Len(t, observed.FilterMessage("candidate written").All(), 5)
}

func TestSampling_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	assert.Equal(t, core, newSampledCore(core, SamplingConfig{}))
}

// recordSink collects the bodies of exported OTEL log records.
type recordSink struct {
	mu     sync.Mutex
	bodies []string
}

func (s *recordSink) Export(_ context.Context, records []sdklog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.bodies = append(s.bodies, r.Body().AsString())
	}
	return nil
}

func (s *recordSink) Shutdown(context.Context) error   { return nil }
func (s *recordSink) ForceFlush(context.Context) error { return nil }

func TestNewLogger_OTELOutput(t *testing.T) {
	sink := &recordSink{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(sink)))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	cfg := NewDefaultConfig()
	cfg.Stderr = false
	cfg.OTEL = true
	logger, err := NewLogger(cfg, provider)
	require.NoError(t, err)

	ctx := WithSample(context.Background(), "NewA")
	logger.Debug(ctx, "below level")
	logger.Info(ctx, "sample prepared")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []string{"sample prepared"}, sink.bodies)
}

func TestNewCore_OTELWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Stderr = false
	cfg.OTEL = true

	// OTEL requested but no provider: nothing to write to.
	_, err := newCore(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one output")
}
