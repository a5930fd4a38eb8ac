package http

import (
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/pkg/authsdk"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
)

// writeError renders any service error as an authsdk.APIError. Causes are
// logged, never sent.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	de := domain.AsError(err)
	if de.Status >= http.StatusInternalServerError {
		slogx.FromContext(r.Context()).ErrorContext(r.Context(), "request failed", slog.Any("err", err))
	}
	authsdk.NewAPIError(de.Status, string(de.Kind), de.Message).WriteError(w)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	slogx.FromContext(r.Context()).InfoContext(r.Context(), "invalid request body", slog.Any("err", err))
	authsdk.ErrInvalidRequest.WriteError(w)
}
