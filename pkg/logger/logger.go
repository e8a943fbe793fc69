// Package logger provides the structured logger shared by all packages.
package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config configures a Logger.
type Config struct {
	// Name is attached to every entry as the "component" field.
	Name string
	// Level is a logrus level name (debug, info, warn, error). Defaults to info.
	Level string
	// Format is "text" or "json". Defaults to text.
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// Logger wraps logrus with a fixed component name.
type Logger struct {
	*logrus.Logger
	name string
}

// New creates a logger from cfg.
func New(cfg Config) *Logger {
	l := logrus.New()

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	l.SetOutput(out)

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &Logger{Logger: l, name: cfg.Name}
}

// NewDefault creates an info-level text logger for the named component.
func NewDefault(name string) *Logger {
	return New(Config{Name: name})
}

// NewNop returns a logger that discards everything. Useful in tests.
func NewNop() *Logger {
	return New(Config{Name: "nop", Output: io.Discard})
}

// Name returns the component name.
func (l *Logger) Name() string {
	return l.name
}

// Named returns a logger sharing the same output with a different component name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger, name: name}
}

// WithField returns an entry carrying the component plus one field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.base().WithField(key, value)
}

// WithFields returns an entry carrying the component plus fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.base().WithFields(fields)
}

// WithError returns an entry carrying the component and err.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.base().WithError(err)
}

// WithContext returns an entry carrying the component and the request ID from ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.base().WithContext(ctx)
	if id := RequestIDFromContext(ctx); id != "" {
		entry = entry.WithField("request_id", id)
	}
	return entry
}

func (l *Logger) base() *logrus.Entry {
	if l.name == "" {
		return logrus.NewEntry(l.Logger)
	}
	return l.Logger.WithField("component", l.name)
}

// =============================================================================
// Request ID propagation
// =============================================================================

type requestIDKey struct{}

// WithRequestID stores a request ID in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID stored in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
