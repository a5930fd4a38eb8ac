package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxResponseBytes caps how much of a response body the client reads.
const maxResponseBytes = 1 << 20

// doRequest sends body as JSON when it is not nil and adds a bearer token
// when one is given.
func (c *SDKClient) doRequest(ctx context.Context, method, path string, body any, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

// readResponse closes resp. A status other than expected becomes an
// *APIError; otherwise the body is decoded into target when it is non-nil.
func readResponse(resp *http.Response, expected int, target any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != expected {
		return parseErrorResponse(resp, body)
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeJSON(resp *http.Response, target any, expectedStatus int) error {
	return readResponse(resp, expectedStatus, target)
}

func checkStatusNoContent(resp *http.Response) error {
	return readResponse(resp, http.StatusNoContent, nil)
}
