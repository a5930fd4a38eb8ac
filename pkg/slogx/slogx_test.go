package slogx_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/tabauth/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Service: "auth", Version: "test", Env: "prod", Level: "warn", Output: &buf})
	t.Cleanup(func() { slog.SetDefault(slogx.Discard()) })

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "shown", line["msg"])
	require.Equal(t, "auth", line["service"])
	require.Equal(t, "v", line["k"])
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, slogx.ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, slogx.ParseLevel("warning"))
	require.Equal(t, slog.LevelError, slogx.ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, slogx.ParseLevel("nonsense"))
}

func TestHTTPMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	var sawLogger bool
	h := slogx.HTTPMiddleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawLogger = slogx.FromContext(r.Context()) != slog.Default()
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("generates request id", func(t *testing.T) {
		buf.Reset()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/auth/session", nil))

		require.True(t, sawLogger)
		require.NotEmpty(t, rec.Header().Get(slogx.RequestIDHeader))

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		require.EqualValues(t, http.StatusTeapot, line["status"])
		require.Equal(t, rec.Header().Get(slogx.RequestIDHeader), line["req_id"])
	})

	t.Run("echoes caller request id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(slogx.RequestIDHeader, "abc")
		h.ServeHTTP(rec, req)
		require.Equal(t, "abc", rec.Header().Get(slogx.RequestIDHeader))
	})
}

func TestHTTPMiddleware_Annotations(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := slogx.HTTPMiddleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := slogx.Annotate(r.Context(), "user_id", "u-1")
		slogx.FromContext(ctx).Info("inside")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("nope"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/2fa/setup", nil))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inner, access map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inner))
	require.NoError(t, json.Unmarshal(lines[1], &access))

	require.Equal(t, "u-1", inner["user_id"])
	require.Equal(t, "u-1", access["user_id"])
	require.Equal(t, "WARN", access["level"])
	require.EqualValues(t, 4, access["bytes"])
}

func TestHTTPMiddleware_ProbesLogAtDebug(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	h := slogx.HTTPMiddleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))

	require.Empty(t, buf.Bytes())
}

func TestAnnotate_OutsideRequest(t *testing.T) {
	var buf bytes.Buffer
	ctx := slogx.WithContext(t.Context(), slog.New(slog.NewJSONHandler(&buf, nil)))

	slogx.FromContext(slogx.Annotate(ctx, "k", "v")).Info("x")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "v", line["k"])
}

func TestNew_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Service: "auth", Level: "info", Output: &buf})
	t.Cleanup(func() { slog.SetDefault(slogx.Discard()) })

	logger.Info("login", "user_id", "u-1", "password", "hunter22", "Refresh_Token", "eyJ...")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "u-1", line["user_id"])
	require.Equal(t, "[REDACTED]", line["password"])
	require.Equal(t, "[REDACTED]", line["Refresh_Token"])
}
