package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/service"
	"github.com/aussiebroadwan/tabauth/pkg/authsdk"
	"github.com/aussiebroadwan/tabauth/pkg/httpx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         chi.Router
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	Auth      *service.AuthService
	Cookies   CookieConfig
	Readiness ReadinessChecks
}

func NewRouter(auth *service.AuthService, cookies CookieConfig, buildVersion string, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          chi.NewRouter(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		Auth:         auth,
		Cookies:      cookies,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.Mux.Use(middleware.Recoverer)
	r.Mux.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		authsdk.ErrNotFound.WriteError(w)
	})
	r.Mux.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		authsdk.ErrMethodNotAllowed.WriteError(w)
	})

	r.registerAuth()
	r.registerTwoFactor()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Auth: r.Auth, Cookies: r.Cookies}

	// Each route gets its own bucket so a burst on one endpoint does not
	// lock a client out of the others.
	byIP := func(fn http.HandlerFunc, limit httpx.RateLimitConfig) http.HandlerFunc {
		return httpx.Chain(fn, httpx.RateLimitByIP(limit)).ServeHTTP
	}

	// Credential endpoints - strict rate limit by IP
	r.Mux.Post("/v1/auth/register", byIP(h.HandleRegister, httpx.StrictLimit))
	r.Mux.Post("/v1/auth/login", byIP(h.HandleLogin, httpx.StrictLimit))
	r.Mux.Post("/v1/auth/2fa/verify", byIP(h.HandleVerifyTwoFactor, httpx.StrictLimit))
	r.Mux.Post("/v1/auth/refresh", byIP(h.HandleRefresh, httpx.StrictLimit))
	r.Mux.Post("/v1/auth/oauth/{provider}", byIP(h.HandleProviderLogin, httpx.StrictLimit))

	r.Mux.Post("/v1/auth/logout", byIP(h.HandleLogout, httpx.ModerateLimit))
	r.Mux.Get("/v1/auth/session", byIP(h.HandleSession, httpx.ModerateLimit))
}

func (r *Router) registerTwoFactor() {
	h := &TwoFactorHandler{Auth: r.Auth}

	authn := httpx.AuthnMiddleware(r.Auth, httpx.BearerToken, r.sessionAccessToken)
	secured := func(fn http.HandlerFunc, limit httpx.RateLimitConfig) http.HandlerFunc {
		return httpx.Chain(fn, authn, httpx.RateLimitByUser(limit)).ServeHTTP
	}

	r.Mux.Post("/v1/2fa/setup", secured(h.HandleSetup, httpx.ModerateLimit))
	// Code checks get the strict profile so TOTP guesses stay expensive.
	r.Mux.Post("/v1/2fa/verify-setup", secured(h.HandleVerifySetup, httpx.StrictLimit))
	r.Mux.Post("/v1/2fa/disable", secured(h.HandleDisable, httpx.StrictLimit))
	r.Mux.Post("/v1/2fa/backup-codes", secured(h.HandleRegenerateBackupCodes, httpx.StrictLimit))
}

func (r *Router) registerSystem() {
	r.Mux.Get("/livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Get("/readyz", ReadyzHandler(r.startTime, r.buildVersion, r.Readiness))
}

// sessionAccessToken lets a browser holding only the session cookie call
// authenticated endpoints with the access token cached in its session.
func (r *Router) sessionAccessToken(req *http.Request) string {
	sid := r.Cookies.sessionID(req)
	if sid == "" {
		return ""
	}
	cur, err := r.Auth.CurrentSession(req.Context(), sid)
	if err != nil {
		return ""
	}
	if a, ok := cur.(domain.Authenticated); ok {
		return a.AccessToken
	}
	return ""
}
