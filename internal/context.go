package internal

import (
	"context"
	"time"
)

type ctxKey string

const ContextRemoteIPKey ctxKey = "remoteIP"

const defaultRemoteIP = "127.0.0.1"

// RemoteIPFromContext returns the client address recorded by the HTTP layer, or the loopback address.
func RemoteIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return defaultRemoteIP
	}
	if ip, ok := ctx.Value(ContextRemoteIPKey).(string); ok && ip != "" {
		return ip
	}
	return defaultRemoteIP
}

func ContextWithRemoteIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ContextRemoteIPKey, ip)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
