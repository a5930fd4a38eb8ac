package httpx

import (
	"context"

	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyUserID ctxKey = "user_id"
	CtxKeyClaims ctxKey = "claims"
)

func contextWithAuth(ctx context.Context, c *jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return ctx
}

// UserIDFromContext returns the subject of the verified access token.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(CtxKeyUserID).(string)
	return id, ok && id != ""
}

// ClaimsFromContext returns the verified access token claims.
func ClaimsFromContext(ctx context.Context) (*jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(*jwtx.Claims)
	return c, ok
}
