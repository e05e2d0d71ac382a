// Package common holds helpers shared by the feature handlers.
package common

import (
	"net/http"
	"strconv"

	"github.com/tendant/simple-idm-recovery/internal/auth"
	"github.com/tendant/simple-idm-recovery/internal/httputil"
)

// StatusFor maps an action outcome to an HTTP status code.
func StatusFor(resp auth.ActionResponse) int {
	if resp.Success {
		return http.StatusOK
	}
	switch resp.Failure {
	case auth.FailureValidation, auth.FailureTokenInvalid, auth.FailureAlreadyVerified:
		return http.StatusBadRequest
	case auth.FailureRateLimited:
		return http.StatusTooManyRequests
	case auth.FailureUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// WriteAction writes resp as JSON. Rate limited responses also carry
// Retry-After and X-RateLimit-* headers.
func WriteAction(w http.ResponseWriter, resp auth.ActionResponse) {
	if resp.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfterSeconds))
	}
	if rl := resp.RateLimit; rl != nil {
		setRateLimitHeaders(w.Header(), rl)
	}
	httputil.JSON(w, StatusFor(resp), resp)
}

// setRateLimitHeaders writes the window state. X-RateLimit-Reset is the
// window end in Unix seconds, rounded up, and is omitted when unknown.
func setRateLimitHeaders(h http.Header, rl *auth.RateLimitInfo) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining))
	if rl.ResetAt.IsZero() {
		return
	}
	reset := rl.ResetAt.Unix()
	if rl.ResetAt.Nanosecond() > 0 {
		reset++
	}
	h.Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
}

// RequestMeta extracts client details for notifications.
func RequestMeta(r *http.Request) auth.RequestMeta {
	return auth.RequestMeta{
		IP:        httputil.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}
