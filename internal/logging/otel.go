package logging

import (
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// scopeName is the instrumentation scope of records sent to the OTEL
// log pipeline.
const scopeName = "github.com/fyrsmithlabs/orthofisher"

// newCore tees the configured outputs. The OTEL output is skipped when no
// provider is available, which is an error only if it was the sole output.
func newCore(cfg *Config, provider log.LoggerProvider) (zapcore.Core, error) {
	var cores []zapcore.Core
	if cfg.Stderr {
		cores = append(cores, zapcore.NewCore(newEncoder(cfg.Format), zapcore.Lock(os.Stderr), cfg.Level))
	}
	if cfg.OTEL && provider != nil {
		otelCore := otelzap.NewCore(scopeName, otelzap.WithLoggerProvider(provider))
		cores = append(cores, levelGate{Core: otelCore, min: cfg.Level})
	}
	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one output must be enabled and available")
	}
	return newSampledCore(zapcore.NewTee(cores...), cfg.Sampling), nil
}

// levelGate applies the configured level to a core that has none of its
// own.
type levelGate struct {
	zapcore.Core
	min zapcore.Level
}

func (g levelGate) Enabled(l zapcore.Level) bool { return l >= g.min && g.Core.Enabled(l) }

func (g levelGate) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if e.Level < g.min {
		return ce
	}
	return g.Core.Check(e, ce)
}

func (g levelGate) With(fields []zapcore.Field) zapcore.Core {
	return levelGate{Core: g.Core.With(fields), min: g.min}
}
