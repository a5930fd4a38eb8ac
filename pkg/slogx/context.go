package slogx

import (
	"context"
	"log/slog"
	"sync"
)

type (
	loggerKey     struct{}
	annotationKey struct{}
)

// WithContext stores logger in ctx for FromContext.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the request logger, or slog.Default outside a request.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// With adds attributes to the logger carried by ctx.
func With(ctx context.Context, args ...any) context.Context {
	return WithContext(ctx, FromContext(ctx).With(args...))
}

// annotations collects attributes discovered while a request is being
// handled, such as the authenticated user, for the access log line that
// HTTPMiddleware writes once the handler returns.
type annotations struct {
	mu    sync.Mutex
	attrs []any
}

// Annotate attaches args to the current request's access log line and to
// the logger returned by FromContext. Outside HTTPMiddleware it behaves
// like With.
func Annotate(ctx context.Context, args ...any) context.Context {
	if a, ok := ctx.Value(annotationKey{}).(*annotations); ok {
		a.mu.Lock()
		a.attrs = append(a.attrs, args...)
		a.mu.Unlock()
	}
	return With(ctx, args...)
}

func (a *annotations) snapshot() []any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]any(nil), a.attrs...)
}
