package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/service"
	"github.com/aussiebroadwan/tabauth/pkg/authsdk"
	"github.com/aussiebroadwan/tabauth/pkg/httpx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
)

// AuthHandler serves the anonymous and session-cookie endpoints.
type AuthHandler struct {
	Auth    *service.AuthService
	Cookies CookieConfig
}

// HandleRegister handles POST /v1/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	h.startSession(w, r, func(sid string) (*domain.AuthResult, error) {
		return h.Auth.Register(r.Context(), sid, service.RegisterInput{
			Name:     req.Name,
			Email:    req.Email,
			Phone:    req.Phone,
			Password: req.Password,
		})
	})
}

// HandleLogin handles POST /v1/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	h.startSession(w, r, func(sid string) (*domain.AuthResult, error) {
		return h.Auth.Login(r.Context(), sid, req.Identifier, req.Password)
	})
}

// HandleProviderLogin handles POST /v1/auth/oauth/{provider}
func (h *AuthHandler) HandleProviderLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ProviderLoginRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	h.startSession(w, r, func(sid string) (*domain.AuthResult, error) {
		return h.Auth.ProviderLogin(r.Context(), sid, domain.ProviderIdentity{
			Provider:    chi.URLParam(r, "provider"),
			ProviderID:  req.ProviderID,
			Email:       req.Email,
			Name:        req.Name,
			Avatar:      req.Avatar,
			AccessToken: req.AccessToken,
		})
	})
}

// HandleVerifyTwoFactor handles POST /v1/auth/2fa/verify
func (h *AuthHandler) HandleVerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CodeRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	sid := h.Cookies.sessionID(r)
	res, err := h.Auth.VerifyTwoFactorLogin(r.Context(), sid, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.Cookies.write(w, sid)
	httpx.WriteJSON(w, http.StatusOK, authResponse(res, time.Now()))
}

// HandleRefresh handles POST /v1/auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req, true); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	sid := h.Cookies.sessionID(r)
	res, err := h.Auth.Refresh(r.Context(), sid, req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authResponse(res, time.Now()))
}

// HandleLogout handles POST /v1/auth/logout. A bearer access token and a
// refresh token in the body are revoked along with the session's own pair.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LogoutRequest
	if err := httpx.DecodeJSON(w, r, &req, true); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	h.Cookies.clear(w)
	err := h.Auth.Logout(r.Context(), h.Cookies.sessionID(r), httpx.BearerToken(r), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleSession handles GET /v1/auth/session
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	cur, err := h.Auth.CurrentSession(r.Context(), h.Cookies.sessionID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionResponse(cur))
}

// startSession runs an anonymous sign-in under a fresh session id so a
// cookie planted before login is never promoted. The previous session is
// dropped once the new one exists.
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, fn func(sid string) (*domain.AuthResult, error)) {
	ctx := r.Context()

	sid, err := h.Auth.Sessions.NewID()
	if err != nil {
		writeError(w, r, domain.Internal(err))
		return
	}

	res, err := fn(sid)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if old := h.Cookies.sessionID(r); old != "" && old != sid {
		if err := h.Auth.Sessions.Destroy(ctx, old); err != nil {
			slogx.FromContext(ctx).WarnContext(ctx, "failed to drop previous session", "err", err)
		}
	}

	h.Cookies.write(w, sid)
	httpx.WriteJSON(w, http.StatusOK, authResponse(res, time.Now()))
}
