package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore samples entries below Error. Errors always pass, so a tool
// failure is never lost among a burst of per-candidate lines.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}
	return errorBypassCore{
		Core: zapcore.NewSamplerWithOptions(core, cfg.Tick.Duration(), cfg.Initial, cfg.Thereafter),
		raw:  core,
	}
}

// errorBypassCore routes Error and above to raw and the rest to the
// embedded sampler.
type errorBypassCore struct {
	zapcore.Core
	raw zapcore.Core
}

func (c errorBypassCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if e.Level >= zapcore.ErrorLevel {
		return c.raw.Check(e, ce)
	}
	return c.Core.Check(e, ce)
}

func (c errorBypassCore) With(fields []zapcore.Field) zapcore.Core {
	return errorBypassCore{Core: c.Core.With(fields), raw: c.raw.With(fields)}
}
