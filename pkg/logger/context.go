package logger

import "context"

type contextKey string

const loggerKey contextKey = "logger"

// FromContext returns the request scoped logger, or fallback when none was attached.
func FromContext(ctx context.Context, fallback ZapLogger) ZapLogger {
	if l, ok := ctx.Value(loggerKey).(ZapLogger); ok {
		return l
	}
	return fallback
}

func WithContext(ctx context.Context, l ZapLogger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}
