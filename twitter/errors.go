package twitter

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies an API failure into the handful of outcomes callers
// act on. Terminal kinds are never retried; Transient is retried with
// backoff; RateLimited triggers credential failover.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindRateLimited
	KindNotFound
	KindSuspended
	KindProtected
	KindPermissionDenied
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindSuspended:
		return "suspended"
	case KindProtected:
		return "protected"
	case KindPermissionDenied:
		return "permission_denied"
	}
	return "unknown"
}

// APIError is a classified failure response from the remote API.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	// Code is the API-level error code carried in the response body, 0 when
	// the body had none.
	Code    int
	Message string
	// Reset is only set for KindRateLimited.
	Reset time.Time
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("api error (%s): http %d code %d: %s", e.Kind, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error (%s): http %d: %s", e.Kind, e.StatusCode, e.Message)
}

// Retryable reports whether the failure may succeed on a simple retry.
func (e *APIError) Retryable() bool {
	return e.Kind == KindTransient
}

// CapacityError means every credential in the pool is rate limited for the
// requested endpoint class. EarliestReset is the soonest any of them frees
// up, so the caller can decide to sleep or abort.
type CapacityError struct {
	Class         EndpointClass
	EarliestReset time.Time
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("all credentials rate limited for %s until %s", e.Class, e.EarliestReset.Format(time.RFC3339))
}

// ConfigError reports invalid configuration detected before any network
// call. Never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Reason
}

// IsTargetError reports whether err is a per-target API failure (including
// a transient failure that exhausted its retries). Jobs running best-effort
// skip the target on these; strict jobs abort.
func IsTargetError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// IsNotFound reports whether err classifies as a missing target.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindNotFound
}

// IsCapacityError reports whether err means the credential pool is drained.
// Always fatal to the running job, whatever the failure policy.
func IsCapacityError(err error) bool {
	var capErr *CapacityError
	return errors.As(err, &capErr)
}

// IsConfigError reports whether err is a pre-network configuration problem.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

type apiErrorBody struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// API-level error codes the classifier cares about.
// https://developer.twitter.com/en/support/twitter-api/error-troubleshooting
const (
	codeNoUserMatches = 17
	codePageNotExist  = 34
	codeUserNotFound  = 50
	codeUserSuspended = 63
	codeRateLimited   = 88
	codeOverCapacity  = 130
	codeInternalError = 131
)

// classifyResponse maps a non-2xx response to a typed *APIError. The reset
// argument carries the parsed x-rate-limit-reset header, zero when absent.
func classifyResponse(statusCode int, body []byte, reset time.Time) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Message: "request failed"}

	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Errors) > 0 {
		apiErr.Code = parsed.Errors[0].Code
		apiErr.Message = parsed.Errors[0].Message
	}

	switch {
	case apiErr.Code == codeUserSuspended:
		apiErr.Kind = KindSuspended
	case apiErr.Code == codeNoUserMatches || apiErr.Code == codePageNotExist || apiErr.Code == codeUserNotFound:
		apiErr.Kind = KindNotFound
	case statusCode == 404:
		apiErr.Kind = KindNotFound
	case apiErr.Code == codeRateLimited || statusCode == 429 || statusCode == 420:
		apiErr.Kind = KindRateLimited
		apiErr.Reset = reset
	case statusCode == 401:
		// The remote reports protected users as a bare 401 without a more
		// specific API code.
		apiErr.Kind = KindProtected
	case statusCode == 403:
		apiErr.Kind = KindPermissionDenied
	case apiErr.Code == codeOverCapacity || apiErr.Code == codeInternalError:
		apiErr.Kind = KindTransient
	case statusCode >= 500:
		apiErr.Kind = KindTransient
	default:
		apiErr.Kind = KindTransient
	}

	return apiErr
}
