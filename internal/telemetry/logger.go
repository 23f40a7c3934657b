// Package telemetry carries the ambient logging, tracing, and metrics stack,
// grounded on the teacher's mlog/mzap packages: a narrow Logger interface so
// call sites never import zap directly, backed by otelzap for span-aware
// structured logging.
package telemetry

import (
	"context"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Logger is the common logging interface every domain/adapter package
// depends on, mirroring the teacher's mlog.Logger shape.
type Logger interface {
	Info(args ...any)
	Infof(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Debug(args ...any)
	Debugf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	WithFields(fields ...any) Logger
	Sync() error
}

// ZapLogger wraps an otelzap.SugaredLogger so every log line that happens
// inside a traced context carries trace/span ids automatically.
type ZapLogger struct {
	logger *otelzap.SugaredLogger
	fields []any
}

// NewZapLogger builds a ZapLogger at the given level ("debug", "info",
// "warn", "error"), JSON-encoded, writing to stderr — the teacher's
// production posture.
func NewZapLogger(level string) (*ZapLogger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl

	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &ZapLogger{logger: otelzap.New(base).Sugar()}, nil
}

func (l *ZapLogger) with() *otelzap.SugaredLogger {
	if len(l.fields) == 0 {
		return l.logger
	}

	return l.logger.With(l.fields...)
}

func (l *ZapLogger) Info(args ...any)                  { l.with().Info(args...) }
func (l *ZapLogger) Infof(format string, args ...any)  { l.with().Infof(format, args...) }
func (l *ZapLogger) Error(args ...any)                 { l.with().Error(args...) }
func (l *ZapLogger) Errorf(format string, args ...any) { l.with().Errorf(format, args...) }
func (l *ZapLogger) Warn(args ...any)                  { l.with().Warn(args...) }
func (l *ZapLogger) Warnf(format string, args ...any)  { l.with().Warnf(format, args...) }
func (l *ZapLogger) Debug(args ...any)                 { l.with().Debug(args...) }
func (l *ZapLogger) Debugf(format string, args ...any) { l.with().Debugf(format, args...) }
func (l *ZapLogger) Fatal(args ...any)                 { l.with().Fatal(args...) }
func (l *ZapLogger) Fatalf(format string, args ...any) { l.with().Fatalf(format, args...) }

// WithFields returns a derived Logger carrying the given key/value pairs on
// every subsequent line.
func (l *ZapLogger) WithFields(fields ...any) Logger {
	return &ZapLogger{logger: l.logger, fields: append(append([]any{}, l.fields...), fields...)}
}

// Sync flushes any buffered log entries.
func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}

type loggerContextKey struct{}

// ContextWithLogger attaches logger to ctx, mirroring mlog's context-carried
// logger pattern so handlers can retrieve a request/command-scoped logger
// without threading it through every call.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// FromContext extracts the Logger attached to ctx, falling back to a noop
// implementation so call sites never need a nil check.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(Logger); ok {
		return l
	}

	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Info(args ...any)                  {}
func (noopLogger) Infof(format string, args ...any)  {}
func (noopLogger) Error(args ...any)                 {}
func (noopLogger) Errorf(format string, args ...any) {}
func (noopLogger) Warn(args ...any)                  {}
func (noopLogger) Warnf(format string, args ...any)  {}
func (noopLogger) Debug(args ...any)                 {}
func (noopLogger) Debugf(format string, args ...any) {}
func (noopLogger) Fatal(args ...any)                 {}
func (noopLogger) Fatalf(format string, args ...any) {}
func (noopLogger) WithFields(fields ...any) Logger   { return noopLogger{} }
func (noopLogger) Sync() error                       { return nil }
