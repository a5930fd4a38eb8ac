package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported identity provider")
	ErrProviderRejected    = errors.New("identity provider rejected the access token")
	ErrProviderMismatch    = errors.New("identity provider returned a different account")
)

// ProviderVerifier confirms that a client-supplied identity belongs to the
// holder of the accompanying provider access token.
type ProviderVerifier interface {
	VerifyIdentity(ctx context.Context, id domain.ProviderIdentity) error
}

// UserInfoEndpoint describes where a provider publishes the token owner's
// profile and which field carries the stable account id.
type UserInfoEndpoint struct {
	URL     string
	IDField string
}

// DefaultUserInfoEndpoints covers the providers the login page offers.
func DefaultUserInfoEndpoints() map[string]UserInfoEndpoint {
	return map[string]UserInfoEndpoint{
		"google": {URL: "https://openidconnect.googleapis.com/v1/userinfo", IDField: "sub"},
		"github": {URL: "https://api.github.com/user", IDField: "id"},
	}
}

// UserInfoVerifier calls the provider's userinfo endpoint with the supplied
// access token and compares the returned id and email.
type UserInfoVerifier struct {
	Endpoints map[string]UserInfoEndpoint
	// HTTPClient is the transport the oauth2 client wraps. nil means
	// http.DefaultClient.
	HTTPClient *http.Client
}

func NewUserInfoVerifier() *UserInfoVerifier {
	return &UserInfoVerifier{Endpoints: DefaultUserInfoEndpoints()}
}

func (v *UserInfoVerifier) VerifyIdentity(ctx context.Context, id domain.ProviderIdentity) error {
	ep, ok := v.Endpoints[strings.ToLower(id.Provider)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedProvider, id.Provider)
	}
	if id.AccessToken == "" {
		return fmt.Errorf("%w: missing access token", ErrProviderRejected)
	}

	if v.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, v.HTTPClient)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: id.AccessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL, nil)
	if err != nil {
		return fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("userinfo request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: status %d", ErrProviderRejected, resp.StatusCode)
	}

	var info map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return fmt.Errorf("decode userinfo: %w", err)
	}

	if got := stringField(info[ep.IDField]); got == "" || got != id.ProviderID {
		return fmt.Errorf("%w: id", ErrProviderMismatch)
	}
	if email := stringField(info["email"]); email != "" && !strings.EqualFold(email, id.Email) {
		return fmt.Errorf("%w: email", ErrProviderMismatch)
	}
	return nil
}

// stringField renders numeric ids (github) and string ids (google) alike.
func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
