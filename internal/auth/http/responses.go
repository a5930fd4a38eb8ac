package http

import (
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/pkg/authsdk"
)

func userResponse(u domain.User) *authsdk.UserResponse {
	out := &authsdk.UserResponse{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Role:             u.Role,
		TwoFactorEnabled: u.TwoFactorEnabled,
	}
	if u.Phone != nil {
		out.Phone = *u.Phone
	}
	if u.Provider != nil {
		out.Provider = *u.Provider
	}
	if u.Avatar != nil {
		out.Avatar = *u.Avatar
	}
	return out
}

func authResponse(res *domain.AuthResult, now time.Time) authsdk.AuthResponse {
	if res.RequiresTwoFactor || res.Tokens == nil {
		return authsdk.AuthResponse{RequiresTwoFactor: true}
	}

	exp := res.Tokens.ExpiresAt
	return authsdk.AuthResponse{
		User:         userResponse(res.User),
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    &exp,
		ExpiresIn:    int(exp.Sub(now).Seconds()),
	}
}

func sessionResponse(s domain.Session) authsdk.SessionResponse {
	switch v := s.(type) {
	case domain.Pending2FA:
		exp := v.ExpiresAt
		return authsdk.SessionResponse{
			State:     authsdk.SessionStatePending2FA,
			UserID:    v.UserID,
			Email:     v.Email,
			ExpiresAt: &exp,
		}
	case domain.Authenticated:
		exp := v.TokenExpiresAt
		return authsdk.SessionResponse{
			State:     authsdk.SessionStateAuthenticated,
			UserID:    v.UserID,
			Email:     v.Email,
			Role:      v.Role,
			ExpiresAt: &exp,
		}
	default:
		return authsdk.SessionResponse{}
	}
}
