// Package obslog provides the repository's structured logging conventions:
// a fluent Fields builder that converts to zap.Field at the log call site,
// so every package logs the same vocabulary (component, operation,
// resource, duration, error) without repeating zap boilerplate.
package obslog

import (
	"time"

	"go.uber.org/zap"
)

// Fields is a set of structured log attributes keyed by name; as a map it
// keeps no insertion order.
type Fields map[string]interface{}

// NewFields starts an empty field set.
func NewFields() Fields {
	return Fields{}
}

func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

func (f Fields) Operation(name string) Fields {
	f["operation"] = name
	return f
}

func (f Fields) Resource(resourceType, name string) Fields {
	f["resource_type"] = resourceType
	if name != "" {
		f["resource_name"] = name
	}
	return f
}

func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

func (f Fields) With(key string, value interface{}) Fields {
	f[key] = value
	return f
}

// Zap converts Fields to zap.Field slice, preserving insertion is not
// guaranteed (maps are unordered) but key names are stable.
func (f Fields) Zap() []zap.Field {
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}

// Logger wraps *zap.Logger with helpers that accept Fields directly.
type Logger struct {
	z *zap.Logger
}

// New builds a production zap.Logger wrapped as a Logger. Callers that need
// a development logger (human-readable, for local runs) should construct
// one with zap.NewDevelopment and wrap it with Wrap.
func New() (*Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &Logger{z: z}, nil
}

// Wrap adapts an existing *zap.Logger.
func Wrap(z *zap.Logger) *Logger {
	return &Logger{z: z}
}

func (l *Logger) Info(msg string, f Fields) {
	l.z.Info(msg, f.Zap()...)
}

func (l *Logger) Warn(msg string, f Fields) {
	l.z.Warn(msg, f.Zap()...)
}

func (l *Logger) Error(msg string, f Fields) {
	l.z.Error(msg, f.Zap()...)
}

func (l *Logger) Debug(msg string, f Fields) {
	l.z.Debug(msg, f.Zap()...)
}

// Sync flushes buffered log entries; callers defer this at process exit.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

// With returns a child logger carrying the given persistent fields.
func (l *Logger) With(f Fields) *Logger {
	return &Logger{z: l.z.With(f.Zap()...)}
}
