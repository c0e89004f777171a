package transport

import (
	"encoding/json"
	"fmt"
	"time"
)

// AuthenticationError reports missing or rejected credentials.
type AuthenticationError struct {
	Message string
	Cause   error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

func (e *AuthenticationError) Unwrap() error { return e.Cause }

// RateLimitError reports server throttling that outlived every retry.
type RateLimitError struct {
	StatusCode int
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by server (retry after %s): %s", e.RetryAfter, e.Message)
}

// RequestError reports a non-retryable API failure or exhausted
// retries. Code carries the exchange's own error code when present.
type RequestError struct {
	StatusCode int
	Code       int
	Message    string
	Cause      error
}

func (e *RequestError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("api error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("request failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Cause }

// apiErrorBody is the exchange's error envelope.
type apiErrorBody struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// parseErrorBody extracts the exchange error code and message, falling
// back to the raw body when it is not the usual envelope.
func parseErrorBody(body []byte) (int, string) {
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && (parsed.Code != 0 || parsed.Msg != "") {
		return parsed.Code, parsed.Msg
	}
	msg := string(body)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return 0, msg
}
