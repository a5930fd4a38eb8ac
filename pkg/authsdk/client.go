package authsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

// SDKClient talks to the auth service. It keeps the session cookie in a
// cookie jar, so one SDKClient behaves like one browser.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient returns a client with its own cookie jar.
func NewSDKClient(baseURL string) (*SDKClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
		},
	}, nil
}

// NewSession wraps the tokens of a successful AuthResponse in a Session
// that refreshes itself.
func (c *SDKClient) NewSession(resp *AuthResponse) (*Session, error) {
	if resp == nil || resp.AccessToken == "" {
		return nil, fmt.Errorf("response carries no tokens")
	}
	return newSession(c, resp), nil
}

// GetLiveness checks if the service is alive.
func (c *SDKClient) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/livez")
}

// GetReadiness checks if the service and its backends are ready.
func (c *SDKClient) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/readyz")
}

func (c *SDKClient) health(ctx context.Context, path string) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}

	var health HealthResponse
	if err := decodeJSON(resp, &health, http.StatusOK); err != nil {
		return nil, err
	}
	return &health, nil
}
