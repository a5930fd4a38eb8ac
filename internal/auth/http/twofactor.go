package http

import (
	"net/http"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/service"
	"github.com/aussiebroadwan/tabauth/pkg/authsdk"
	"github.com/aussiebroadwan/tabauth/pkg/httpx"
)

// TwoFactorHandler serves 2FA management for an authenticated user.
type TwoFactorHandler struct {
	Auth *service.AuthService
}

// HandleSetup handles POST /v1/2fa/setup
func (h *TwoFactorHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, domain.ErrUnauthenticated)
		return
	}

	setup, err := h.Auth.SetupTwoFactor(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TwoFactorSetupResponse{
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
		QRCode:          service.QRDataURL(setup.QRCodePNG),
		BackupCodes:     setup.BackupCodes,
	})
}

// HandleVerifySetup handles POST /v1/2fa/verify-setup
func (h *TwoFactorHandler) HandleVerifySetup(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, domain.ErrUnauthenticated)
		return
	}

	var req authsdk.CodeRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	if err := h.Auth.VerifyTwoFactorSetup(r.Context(), userID, req.Code); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDisable handles POST /v1/2fa/disable
func (h *TwoFactorHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, domain.ErrUnauthenticated)
		return
	}

	var req authsdk.PasswordRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	if err := h.Auth.DisableTwoFactor(r.Context(), userID, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRegenerateBackupCodes handles POST /v1/2fa/backup-codes
func (h *TwoFactorHandler) HandleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, domain.ErrUnauthenticated)
		return
	}

	var req authsdk.CodeRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	codes, err := h.Auth.RegenerateBackupCodes(r.Context(), userID, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.BackupCodesResponse{BackupCodes: codes})
}
