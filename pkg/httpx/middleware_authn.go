package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
)

// AccessVerifier validates an access token. Implementations are expected to
// check the revocation registry as well as the signature.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, token string) (*jwtx.Claims, error)
}

// TokenExtractor pulls a raw access token out of a request, or returns "".
type TokenExtractor func(*http.Request) string

// BearerToken reads an RFC 6750 Authorization header.
func BearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if len(authz) < 7 || !strings.EqualFold(authz[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[7:])
}

// AuthnMiddleware rejects requests without a valid access token. Extractors are
// tried in order; BearerToken is used when none are given.
func AuthnMiddleware(v AccessVerifier, extractors ...TokenExtractor) Middleware {
	if len(extractors) == 0 {
		extractors = []TokenExtractor{BearerToken}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var raw string
			for _, extract := range extractors {
				if raw = extract(r); raw != "" {
					break
				}
			}
			if raw == "" {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.VerifyAccess(ctx, raw)
			if err != nil {
				slogx.FromContext(ctx).Info("access token rejected", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			ctx = slogx.Annotate(contextWithAuth(ctx, claims), "user_id", claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":   "unauthenticated",
		"message": desc,
	})
}
