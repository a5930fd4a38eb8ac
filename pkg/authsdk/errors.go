package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/tabauth/pkg/httpx"
)

// Error codes carried in the "error" field of every failure response.
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidCredentials      = "invalid_credentials"
	ErrorCodeTwoFactorSessionExpired = "two_factor_session_expired"
	ErrorCodeInvalidTwoFactorCode    = "invalid_two_factor_code"
	ErrorCodeAccountConflict         = "account_conflict"
	ErrorCodeUserNotFound            = "user_not_found"
	ErrorCodeInvalidRefreshToken     = "invalid_refresh_token"
	ErrorCodeTwoFactorNotEnrolled    = "two_factor_not_enrolled"
	ErrorCodeTwoFactorAlreadyEnabled = "two_factor_already_enabled"
	ErrorCodeUnauthenticated         = "unauthenticated"
	ErrorCodeRateLimited             = "rate_limited"
	ErrorCodeNotFound                = "not_found"
	ErrorCodeMethodNotAllowed        = "method_not_allowed"
	ErrorCodeServerError             = "internal_failure"
)

// APIError is the error body of the auth service. The server writes it with
// WriteError and the client returns it from every failed call.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`

	// RetryAfter is set from the Retry-After header of a rate-limited
	// response.
	RetryAfter time.Duration `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WriteError writes the error as a JSON body with its status code.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, e)
}

// Is matches on Code so callers can compare against the predefined errors.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidRequest = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       ErrorCodeInvalidRequest,
		Message:    "the request is malformed or missing required fields",
	}

	ErrUnauthenticated = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeUnauthenticated,
		Message:    "authentication required",
	}

	ErrInvalidRefreshToken = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeInvalidRefreshToken,
		Message:    "invalid refresh token",
	}

	ErrNotFound = &APIError{
		StatusCode: http.StatusNotFound,
		Code:       ErrorCodeNotFound,
		Message:    "not found",
	}

	ErrMethodNotAllowed = &APIError{
		StatusCode: http.StatusMethodNotAllowed,
		Code:       ErrorCodeMethodNotAllowed,
		Message:    "method not allowed",
	}

	ErrServerError = &APIError{
		StatusCode: http.StatusInternalServerError,
		Code:       ErrorCodeServerError,
		Message:    "internal server error",
	}
)

func NewAPIError(statusCode int, code, message string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Message: message}
}

// ErrorCode returns the code of an *APIError anywhere in err's chain, or "".
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// parseErrorResponse turns a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Code:       ErrorCodeServerError,
		Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Error
		apiErr.Message = errResp.Message
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}
	return apiErr
}
