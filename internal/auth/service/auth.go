package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	"github.com/aussiebroadwan/tabauth/pkg/cryptox"
	"github.com/aussiebroadwan/tabauth/pkg/idx"
	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
)

const (
	DefaultRole       = "user"
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// AuthService owns every session state transition: anonymous, pending
// second factor and authenticated. Handlers only translate to and from HTTP.
type AuthService struct {
	Store       store.Store
	Tokens      *TokenService
	TOTP        *TOTPService
	Revocations *RevocationRegistry
	Sessions    *SessionManager
	// Providers verifies OAuth identities. nil trusts the caller.
	Providers   ProviderVerifier
	DefaultRole string
}

type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
	Role     string
}

// Register creates a password account and signs it straight in. A taken
// email or phone is AccountConflict.
func (s *AuthService) Register(ctx context.Context, sid string, in RegisterInput) (*domain.AuthResult, error) {
	l := slogx.FromContext(ctx)

	email := domain.NormalizeEmail(in.Email)
	if !domain.LooksLikeEmail(email) {
		return nil, domain.ErrInvalidRequest.WithMessage("A valid email is required")
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		return nil, domain.Internal(err)
	}

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.NewUserID(),
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: &hash,
		Role:         s.roleOrDefault(in.Role),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if phone := domain.NormalizePhone(in.Phone); phone != "" {
		u.Phone = &phone
	}
	if u.Name == "" {
		u.Name = email
	}

	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			l.InfoContext(ctx, "registration rejected, account exists")
			return nil, domain.ErrAccountConflict.WithMessage("An account with this email or phone already exists")
		}
		return nil, domain.Internal(fmt.Errorf("create user: %w", err))
	}

	l.InfoContext(ctx, "user registered", slog.String("user_id", u.ID))
	return s.issueTokens(ctx, sid, u)
}

// Login checks a password against the account matching identifier, which
// is an email or a phone number. Every mismatch is InvalidCredentials.
func (s *AuthService) Login(ctx context.Context, sid, identifier, password string) (*domain.AuthResult, error) {
	l := slogx.FromContext(ctx)

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	email := domain.NormalizeEmail(identifier)
	phone := ""
	if !domain.LooksLikeEmail(identifier) {
		phone = domain.NormalizePhone(identifier)
	}

	u, err := s.Store.Users().FindByEmailOrPhone(ctx, email, phone)
	if errors.Is(err, store.ErrNotFound) {
		cryptox.VerifyDummy(password)
		l.InfoContext(ctx, "login rejected, unknown identifier")
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("find user: %w", err))
	}

	if !u.HasPassword() {
		cryptox.VerifyDummy(password)
		l.InfoContext(ctx, "login rejected, no password set", slog.String("user_id", u.ID))
		return nil, domain.ErrInvalidCredentials
	}
	if err := cryptox.VerifyPassword(password, *u.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			return nil, domain.Internal(fmt.Errorf("verify password: %w", err))
		}
		l.InfoContext(ctx, "login rejected, wrong password", slog.String("user_id", u.ID))
		return nil, domain.ErrInvalidCredentials
	}

	if u.TwoFactorEnabled {
		p, err := s.Sessions.BeginPending2FA(ctx, sid, u.ID, u.Email)
		if err != nil {
			return nil, domain.Internal(err)
		}
		l.InfoContext(ctx, "login awaiting second factor", slog.String("user_id", u.ID))
		return &domain.AuthResult{User: u, Session: p, RequiresTwoFactor: true}, nil
	}

	return s.issueTokens(ctx, sid, u)
}

// VerifyTwoFactorLogin completes a pending login with a TOTP code or, failing
// that, a backup code. A used backup code is deleted before success returns.
func (s *AuthService) VerifyTwoFactorLogin(ctx context.Context, sid, code string) (*domain.AuthResult, error) {
	l := slogx.FromContext(ctx)

	pending, remaining, err := s.Sessions.ReserveAttempt(ctx, sid)
	if errors.Is(err, ErrNoPendingSession) {
		return nil, domain.ErrTwoFactorSessionExpired
	}
	if err != nil {
		return nil, domain.Internal(err)
	}

	u, err := s.Store.Users().GetUserByID(ctx, pending.UserID)
	if errors.Is(err, store.ErrNotFound) {
		_ = s.Sessions.Destroy(ctx, sid)
		return nil, domain.ErrTwoFactorSessionExpired
	}
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("load user: %w", err))
	}
	if !u.TwoFactorEnabled || u.TwoFactorSecret == nil {
		_ = s.Sessions.Destroy(ctx, sid)
		return nil, domain.ErrTwoFactorSessionExpired
	}

	ok, err := s.checkSecondFactor(ctx, u, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		l.WarnContext(ctx, "second factor rejected",
			slog.String("user_id", u.ID),
			slog.Int("attempts_remaining", remaining),
		)
		return nil, domain.ErrInvalidTwoFactorCode
	}

	return s.issueTokens(ctx, sid, u)
}

// checkSecondFactor tries TOTP first and then the backup codes.
func (s *AuthService) checkSecondFactor(ctx context.Context, u domain.User, code string) (bool, error) {
	if s.TOTP.VerifyCode(code, *u.TwoFactorSecret) {
		return true, nil
	}

	codes := s.Store.BackupCodes()
	hashes, err := codes.ListBackupCodes(ctx, u.ID)
	if err != nil {
		return false, domain.Internal(fmt.Errorf("list backup codes: %w", err))
	}
	match := s.TOTP.VerifyBackupCode(code, hashes)
	if !match.Valid {
		return false, nil
	}

	// A concurrent request may have spent the same code.
	consumed, err := codes.DeleteBackupCode(ctx, u.ID, match.Matched)
	if err != nil {
		return false, domain.Internal(fmt.Errorf("consume backup code: %w", err))
	}
	if consumed {
		slogx.FromContext(ctx).InfoContext(ctx, "backup code used",
			slog.String("user_id", u.ID),
			slog.Int("remaining", len(match.Remaining)),
		)
	}
	return consumed, nil
}

// SetupTwoFactor stores a new secret and backup codes with 2FA still off.
// Calling it again before verification replaces both.
func (s *AuthService) SetupTwoFactor(ctx context.Context, userID string) (*domain.TwoFactorSetup, error) {
	u, err := s.lookupUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.TwoFactorEnabled {
		return nil, domain.ErrTwoFactorAlreadyEnabled
	}

	secret, uri, err := s.TOTP.GenerateSecret(u.Email)
	if err != nil {
		return nil, domain.Internal(err)
	}
	qr, err := s.TOTP.RenderQR(uri)
	if err != nil {
		return nil, domain.Internal(err)
	}
	codes, hashes, err := s.newBackupCodes()
	if err != nil {
		return nil, err
	}

	disabled := false
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Users().UpdateUser(ctx, u.ID, domain.UserPatch{
			TwoFactorSecret:  &secret,
			TwoFactorEnabled: &disabled,
		}); err != nil {
			return err
		}
		return tx.BackupCodes().ReplaceBackupCodes(ctx, u.ID, hashes)
	})
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("store two-factor setup: %w", err))
	}

	slogx.FromContext(ctx).InfoContext(ctx, "two-factor setup started", slog.String("user_id", u.ID))
	return &domain.TwoFactorSetup{
		Secret:          secret,
		ProvisioningURI: uri,
		QRCodePNG:       qr,
		BackupCodes:     codes,
	}, nil
}

// VerifyTwoFactorSetup is the only path that turns 2FA on.
func (s *AuthService) VerifyTwoFactorSetup(ctx context.Context, userID, code string) error {
	u, err := s.lookupUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.TwoFactorEnabled {
		return domain.ErrTwoFactorAlreadyEnabled
	}
	if u.TwoFactorSecret == nil {
		return domain.ErrTwoFactorNotEnrolled
	}
	if !s.TOTP.VerifyCode(code, *u.TwoFactorSecret) {
		return domain.ErrInvalidTwoFactorCode
	}

	enabled := true
	if _, err := s.Store.Users().UpdateUser(ctx, u.ID, domain.UserPatch{TwoFactorEnabled: &enabled}); err != nil {
		return domain.Internal(fmt.Errorf("enable two-factor: %w", err))
	}

	slogx.FromContext(ctx).InfoContext(ctx, "two-factor enabled", slog.String("user_id", u.ID))
	return nil
}

// DisableTwoFactor requires the password again. Provider-only accounts have
// none and are always rejected.
func (s *AuthService) DisableTwoFactor(ctx context.Context, userID, password string) error {
	u, err := s.lookupUser(ctx, userID)
	if err != nil {
		return err
	}
	if !u.HasPassword() {
		return domain.ErrInvalidCredentials
	}
	if err := cryptox.VerifyPassword(password, *u.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			return domain.Internal(fmt.Errorf("verify password: %w", err))
		}
		return domain.ErrInvalidCredentials
	}
	if !u.TwoFactorEnabled && u.TwoFactorSecret == nil {
		return domain.ErrTwoFactorNotEnrolled
	}

	disabled := false
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Users().UpdateUser(ctx, u.ID, domain.UserPatch{
			TwoFactorEnabled:     &disabled,
			ClearTwoFactorSecret: true,
		}); err != nil {
			return err
		}
		return tx.BackupCodes().DeleteAllBackupCodes(ctx, u.ID)
	})
	if err != nil {
		return domain.Internal(fmt.Errorf("disable two-factor: %w", err))
	}

	slogx.FromContext(ctx).InfoContext(ctx, "two-factor disabled", slog.String("user_id", u.ID))
	return nil
}

// RegenerateBackupCodes replaces the whole set after a TOTP check.
func (s *AuthService) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	u, err := s.lookupUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.TwoFactorEnabled || u.TwoFactorSecret == nil {
		return nil, domain.ErrTwoFactorNotEnrolled
	}
	if !s.TOTP.VerifyCode(code, *u.TwoFactorSecret) {
		return nil, domain.ErrInvalidTwoFactorCode
	}

	codes, hashes, err := s.newBackupCodes()
	if err != nil {
		return nil, err
	}
	if err := s.Store.BackupCodes().ReplaceBackupCodes(ctx, u.ID, hashes); err != nil {
		return nil, domain.Internal(fmt.Errorf("replace backup codes: %w", err))
	}

	slogx.FromContext(ctx).InfoContext(ctx, "backup codes regenerated", slog.String("user_id", u.ID))
	return codes, nil
}

// Refresh spends a refresh token and issues a new pair. An empty token
// falls back to the one cached in the session. Whatever goes wrong the
// caller only ever sees InvalidRefreshToken.
func (s *AuthService) Refresh(ctx context.Context, sid, refreshToken string) (*domain.AuthResult, error) {
	res, err := s.refresh(ctx, sid, refreshToken)
	if err != nil {
		slogx.FromContext(ctx).InfoContext(ctx, "refresh rejected", slog.Any("err", err))
		return nil, domain.ErrInvalidRefreshToken.WithCause(err)
	}
	return res, nil
}

func (s *AuthService) refresh(ctx context.Context, sid, token string) (*domain.AuthResult, error) {
	if token == "" {
		cur, err := s.Sessions.Current(ctx, sid)
		if err != nil {
			return nil, domain.ErrTokenInvalid.WithCause(err)
		}
		a, ok := cur.(domain.Authenticated)
		if !ok || a.RefreshToken == "" {
			return nil, domain.ErrTokenInvalid.WithMessage("no refresh token in session")
		}
		token = a.RefreshToken
	}

	revoked, err := s.Revocations.IsRevoked(ctx, token)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, domain.ErrTokenRevoked
	}

	claims, err := s.Tokens.VerifyRefresh(token)
	if err != nil {
		return nil, err
	}

	u, err := s.Store.Users().GetUserByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	// The revocation insert is the single-use guard: of two concurrent
	// refreshes with the same token only one gets past here.
	if err := s.Revocations.Revoke(ctx, token, claims.ExpiresAtTime()); err != nil {
		if errors.Is(err, ErrAlreadyRevoked) {
			return nil, domain.ErrTokenRevoked
		}
		return nil, err
	}

	return s.issueTokens(ctx, sid, u)
}

// Logout revokes the session's cached tokens plus any extra tokens the
// caller holds, then destroys the session. Malformed tokens never fail the
// call; a store failure does, after the session is gone.
func (s *AuthService) Logout(ctx context.Context, sid string, tokens ...string) error {
	cur, err := s.Sessions.Current(ctx, sid)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return domain.Internal(err)
	default:
		if a, ok := cur.(domain.Authenticated); ok {
			tokens = append(tokens, a.AccessToken, a.RefreshToken)
		}
	}

	var revokeErr error
	for _, t := range tokens {
		if err := s.Revocations.BestEffortRevoke(ctx, t); err != nil && revokeErr == nil {
			revokeErr = err
		}
	}

	if err := s.Sessions.Destroy(ctx, sid); err != nil {
		return domain.Internal(err)
	}
	if revokeErr != nil {
		return revokeErr
	}

	slogx.FromContext(ctx).InfoContext(ctx, "logged out")
	return nil
}

// ProviderLogin signs in with an OAuth identity, linking it to an existing
// password account with the same email when that account has no provider.
func (s *AuthService) ProviderLogin(ctx context.Context, sid string, id domain.ProviderIdentity) (*domain.AuthResult, error) {
	l := slogx.FromContext(ctx)

	id.Provider = strings.ToLower(strings.TrimSpace(id.Provider))
	id.ProviderID = strings.TrimSpace(id.ProviderID)
	id.Email = domain.NormalizeEmail(id.Email)
	if id.Provider == "" || id.ProviderID == "" || !domain.LooksLikeEmail(id.Email) {
		return nil, domain.ErrInvalidRequest.WithMessage("provider, provider_id and email are required")
	}

	if s.Providers != nil {
		if err := s.Providers.VerifyIdentity(ctx, id); err != nil {
			l.WarnContext(ctx, "provider identity rejected", slog.String("provider", id.Provider), slog.Any("err", err))
			return nil, domain.ErrInvalidCredentials.WithCause(err)
		}
	}

	users := s.Store.Users()

	u, err := users.FindByProvider(ctx, id.Provider, id.ProviderID)
	switch {
	case err == nil:
		if id.Avatar != "" && (u.Avatar == nil || *u.Avatar != id.Avatar) {
			if u, err = users.UpdateUser(ctx, u.ID, domain.UserPatch{Avatar: &id.Avatar}); err != nil {
				return nil, domain.Internal(fmt.Errorf("update avatar: %w", err))
			}
		}
		return s.issueTokens(ctx, sid, u)
	case !errors.Is(err, store.ErrNotFound):
		return nil, domain.Internal(fmt.Errorf("find by provider: %w", err))
	}

	u, err = users.FindByEmail(ctx, id.Email)
	switch {
	case err == nil:
		if u.IsLinked() {
			// Same provider with another id is a conflict too; an identity
			// is never silently replaced.
			l.WarnContext(ctx, "provider login conflicts with linked account",
				slog.String("user_id", u.ID),
				slog.String("provider", id.Provider),
			)
			return nil, domain.ErrAccountConflict
		}

		patch := domain.UserPatch{Provider: &id.Provider, ProviderID: &id.ProviderID}
		if id.Avatar != "" && u.Avatar == nil {
			patch.Avatar = &id.Avatar
		}
		if u, err = users.UpdateUser(ctx, u.ID, patch); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return nil, domain.ErrAccountConflict.WithCause(err)
			}
			return nil, domain.Internal(fmt.Errorf("link provider: %w", err))
		}
		l.InfoContext(ctx, "provider linked", slog.String("user_id", u.ID), slog.String("provider", id.Provider))
		return s.issueTokens(ctx, sid, u)
	case !errors.Is(err, store.ErrNotFound):
		return nil, domain.Internal(fmt.Errorf("find by email: %w", err))
	}

	now := time.Now().UTC()
	u = domain.User{
		ID:         idx.NewUserID(),
		Name:       strings.TrimSpace(id.Name),
		Email:      id.Email,
		Role:       s.roleOrDefault(""),
		Provider:   &id.Provider,
		ProviderID: &id.ProviderID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if u.Name == "" {
		u.Name = id.Email
	}
	if id.Avatar != "" {
		u.Avatar = &id.Avatar
	}

	if err := users.CreateUser(ctx, u); err != nil {
		if !errors.Is(err, store.ErrAlreadyExists) {
			return nil, domain.Internal(fmt.Errorf("create user: %w", err))
		}
		// Lost a race with an identical first login.
		existing, ferr := users.FindByProvider(ctx, id.Provider, id.ProviderID)
		if ferr != nil {
			return nil, domain.ErrAccountConflict.WithCause(err)
		}
		return s.issueTokens(ctx, sid, existing)
	}

	l.InfoContext(ctx, "provider account created", slog.String("user_id", u.ID), slog.String("provider", id.Provider))
	return s.issueTokens(ctx, sid, u)
}

// CurrentSession returns the live session or Unauthenticated.
func (s *AuthService) CurrentSession(ctx context.Context, sid string) (domain.Session, error) {
	cur, err := s.Sessions.Current(ctx, sid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrUnauthenticated
	}
	if err != nil {
		return nil, domain.Internal(err)
	}
	return cur, nil
}

// VerifyAccess accepts a signed, unexpired access token that is not in the
// revocation registry.
func (s *AuthService) VerifyAccess(ctx context.Context, token string) (*jwtx.Claims, error) {
	claims, err := s.Tokens.VerifyAccess(token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.Revocations.IsRevoked(ctx, token)
	if err != nil {
		return nil, domain.Internal(err)
	}
	if revoked {
		return nil, domain.ErrTokenRevoked
	}
	return claims, nil
}

// issueTokens is the shared tail of every successful login path.
func (s *AuthService) issueTokens(ctx context.Context, sid string, u domain.User) (*domain.AuthResult, error) {
	if u.ID == "" {
		return nil, domain.Internal(errors.New("cannot issue tokens for a user without an id"))
	}

	pair, err := s.Tokens.Issue(u)
	if err != nil {
		return nil, domain.Internal(fmt.Errorf("issue tokens: %w", err))
	}

	sess := domain.Authenticated{
		UserID:         u.ID,
		Email:          u.Email,
		Role:           u.Role,
		AccessToken:    pair.AccessToken,
		RefreshToken:   pair.RefreshToken,
		TokenExpiresAt: pair.ExpiresAt,
	}
	if sid != "" {
		if err := s.Sessions.CompleteAuthentication(ctx, sid, sess); err != nil {
			return nil, domain.Internal(err)
		}
	}

	slogx.FromContext(ctx).InfoContext(ctx, "tokens issued", slog.String("user_id", u.ID))
	return &domain.AuthResult{User: u, Session: sess, Tokens: &pair}, nil
}

func (s *AuthService) lookupUser(ctx context.Context, userID string) (domain.User, error) {
	if !idx.ValidUserID(userID) {
		return domain.User{}, domain.ErrUserNotFound
	}
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, domain.Internal(fmt.Errorf("load user: %w", err))
	}
	return u, nil
}

func (s *AuthService) newBackupCodes() (codes, hashes []string, err error) {
	codes, err = s.TOTP.GenerateBackupCodes()
	if err != nil {
		return nil, nil, domain.Internal(err)
	}
	hashes, err = s.TOTP.HashBackupCodes(codes)
	if err != nil {
		return nil, nil, domain.Internal(err)
	}
	return codes, hashes, nil
}

func (s *AuthService) roleOrDefault(role string) string {
	if role = strings.TrimSpace(role); role != "" {
		return role
	}
	if s.DefaultRole != "" {
		return s.DefaultRole
	}
	return DefaultRole
}

func validatePassword(p string) error {
	switch {
	case len(p) < MinPasswordLength:
		return domain.ErrInvalidRequest.WithMessage(fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	case len(p) > MaxPasswordLength:
		return domain.ErrInvalidRequest.WithMessage(fmt.Sprintf("Password must be at most %d characters", MaxPasswordLength))
	}
	return nil
}
