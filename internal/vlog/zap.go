package vlog

import "go.uber.org/zap"

// zapLogger adapts a *zap.Logger to the Logger interface, for hosts that
// already run zap and want VelesDB's diagnostics folded into the same
// sink instead of a second stream.
type zapLogger struct {
	z *zap.SugaredLogger
}

// NewZapLogger wraps z as a Logger.
func NewZapLogger(z *zap.Logger) Logger {
	return &zapLogger{z: z.Sugar()}
}

func (l *zapLogger) Debug(msg string, keyvals ...any) { l.z.Debugw(msg, keyvals...) }
func (l *zapLogger) Info(msg string, keyvals ...any)  { l.z.Infow(msg, keyvals...) }
func (l *zapLogger) Warn(msg string, keyvals ...any)  { l.z.Warnw(msg, keyvals...) }
func (l *zapLogger) Error(msg string, keyvals ...any) { l.z.Errorw(msg, keyvals...) }

func (l *zapLogger) With(keyvals ...any) Logger {
	return &zapLogger{z: l.z.With(keyvals...)}
}
