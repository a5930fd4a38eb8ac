package slogx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/tabauth/pkg/idx"
)

// RequestIDHeader is read from the request and echoed on the response.
const RequestIDHeader = "X-Request-ID"

// HTTPMiddleware assigns a request id, puts a request logger in the context
// and writes one access log line per request. 5xx responses log at Error,
// 401/403/429 at Warn so credential probing stands out, probes at Debug.
func HTTPMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" || len(reqID) > 64 {
				reqID = idx.NewRequestID()
			}
			rw.Header().Set(RequestIDHeader, reqID)

			logger := base.With(
				"req_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
			)

			notes := &annotations{}
			ctx := context.WithValue(WithContext(r.Context(), logger), annotationKey{}, notes)
			next.ServeHTTP(rw, r.WithContext(ctx))

			attrs := append([]any{
				"status", rw.status,
				"bytes", rw.written,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote", remoteAddr(r),
				"user_agent", r.UserAgent(),
			}, notes.snapshot()...)
			logger.Log(r.Context(), accessLevel(r.URL.Path, rw.status), "http_request", attrs...)
		})
	}
}

func accessLevel(path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusTooManyRequests:
		return slog.LevelWarn
	case path == "/livez" || path == "/readyz":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// remoteAddr prefers the first X-Forwarded-For hop.
func remoteAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}

type responseWriter struct {
	http.ResponseWriter

	status      int
	written     int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += n
	return n, err
}
