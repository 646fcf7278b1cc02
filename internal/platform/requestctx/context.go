package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerContextKey contextKey = "github.com/zark-commerce/api/internal/platform/requestctx/logger"
	clientContextKey contextKey = "github.com/zark-commerce/api/internal/platform/requestctx/client"
)

var noopLogger = zap.NewNop()

// ClientInfo captures request metadata propagated through the request context.
type ClientInfo struct {
	RequestID string
	RemoteIP  string
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared noop logger instance used across the package.
func NoopLogger() *zap.Logger { return noopLogger }

// WithClient stores request metadata on the context for downstream usage.
func WithClient(ctx context.Context, info ClientInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, clientContextKey, info)
}

// Client retrieves the request metadata from context when available.
func Client(ctx context.Context) (ClientInfo, bool) {
	if ctx == nil {
		return ClientInfo{}, false
	}
	info, ok := ctx.Value(clientContextKey).(ClientInfo)
	if !ok {
		return ClientInfo{}, false
	}
	return info, true
}
