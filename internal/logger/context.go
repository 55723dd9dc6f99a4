package logger

import "context"

type contextKeyType struct{}

var contextKey = contextKeyType{}

// WithContext returns a copy of ctx carrying logger.
func WithContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, contextKey, logger)
}

// FromContext returns the logger stored in ctx, or a null logger.
func FromContext(ctx context.Context) Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(contextKey).(Logger); ok {
			return logger
		}
	}
	return nullLogger
}
