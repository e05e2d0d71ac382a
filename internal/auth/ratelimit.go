package auth

import (
	"context"
	"time"

	"github.com/tendant/simple-idm-recovery/internal/domain"
	"github.com/tendant/simple-idm-recovery/internal/ratelimit"
)

// rateLimited builds the error for a request l denied for key.
func rateLimited(ctx context.Context, l ratelimit.Limiter, key, message string, now time.Time) *domain.RateLimitError {
	st := ratelimit.StatusOf(ctx, l, key)
	return &domain.RateLimitError{
		Message:           message,
		RetryAfterSeconds: ratelimit.RetryAfterSeconds(ctx, l, key, now),
		Limit:             st.Limit,
		Remaining:         st.Remaining,
		ResetAt:           st.ResetAt,
	}
}
