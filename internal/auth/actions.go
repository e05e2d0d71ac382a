package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-idm-recovery/internal/domain"
)

// User-facing failure messages.
const (
	TokenInvalidMessage     = "Invalid or expired token. Please request a new link."
	AlreadyVerifiedMessage  = "Your email address is already verified."
	UnauthenticatedMessage  = "Authentication required."
	GenericFailureMessage   = "An error occurred while processing your request. Please try again."
	verificationFailMessage = "Failed to send verification email. Please try again."
)

// Failure classifies an unsuccessful action for transports.
type Failure int

const (
	FailureNone Failure = iota
	FailureValidation
	FailureRateLimited
	FailureTokenInvalid
	FailureAlreadyVerified
	FailureUnauthenticated
	FailureInternal
)

// RateLimitInfo describes the window that denied a request.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	// ResetAt is zero when the window end is unknown.
	ResetAt time.Time
}

// ActionResponse is the result of a recovery or verification action.
// RetryAfterSeconds and RateLimit are set only for rate limited requests.
type ActionResponse struct {
	Success           bool           `json:"success"`
	Message           string         `json:"message,omitempty"`
	Error             string         `json:"error,omitempty"`
	RetryAfterSeconds int            `json:"retryAfterSeconds,omitempty"`
	Failure           Failure        `json:"-"`
	RateLimit         *RateLimitInfo `json:"-"`
}

// Actions exposes the recovery and verification flows as request/response
// pairs with user-safe messages.
type Actions struct {
	logger       *slog.Logger
	recovery     *RecoveryService
	verification *VerificationService
}

func NewActions(logger *slog.Logger, recovery *RecoveryService, verification *VerificationService) *Actions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Actions{logger: logger, recovery: recovery, verification: verification}
}

// RequestPasswordReset starts a password reset for email.
func (a *Actions) RequestPasswordReset(ctx context.Context, email string) ActionResponse {
	msg, err := a.recovery.RequestReset(ctx, email)
	if err != nil {
		return a.failure(ctx, "request password reset", err)
	}
	return ActionResponse{Success: true, Message: msg}
}

// CompletePasswordReset sets newPassword using a reset token.
func (a *Actions) CompletePasswordReset(ctx context.Context, token, newPassword string, meta RequestMeta) ActionResponse {
	msg, err := a.recovery.CompleteReset(ctx, token, newPassword, meta)
	if err != nil {
		return a.failure(ctx, "complete password reset", err)
	}
	return ActionResponse{Success: true, Message: msg}
}

// RequestEmailVerification sends a verification link to the user's
// current email address.
func (a *Actions) RequestEmailVerification(ctx context.Context, userID uuid.UUID) ActionResponse {
	msg, err := a.verification.RequestVerification(ctx, userID)
	if err != nil {
		var de *domain.DownstreamError
		if errors.As(err, &de) {
			a.logger.ErrorContext(ctx, "request email verification failed", "error", err, "user_id", userID)
			return ActionResponse{Error: verificationFailMessage, Failure: FailureInternal}
		}
		return a.failure(ctx, "request email verification", err)
	}
	return ActionResponse{Success: true, Message: msg}
}

// CompleteEmailVerification consumes a verification token.
func (a *Actions) CompleteEmailVerification(ctx context.Context, token string) ActionResponse {
	if _, err := a.verification.CompleteVerification(ctx, token); err != nil {
		return a.failure(ctx, "complete email verification", err)
	}
	return ActionResponse{Success: true, Message: VerificationCompleteMessage}
}

// failure maps err onto a response. Only taxonomy errors carry their own
// text; anything else becomes GenericFailureMessage.
func (a *Actions) failure(ctx context.Context, op string, err error) ActionResponse {
	var (
		ve *domain.ValidationError
		re *domain.RateLimitError
	)
	switch {
	case errors.As(err, &ve):
		return ActionResponse{Error: ve.Message, Failure: FailureValidation}
	case errors.As(err, &re):
		return ActionResponse{
			Error:             re.Message,
			RetryAfterSeconds: re.RetryAfterSeconds,
			Failure:           FailureRateLimited,
			RateLimit:         &RateLimitInfo{Limit: re.Limit, Remaining: re.Remaining, ResetAt: re.ResetAt},
		}
	case errors.Is(err, domain.ErrTokenInvalid):
		return ActionResponse{Error: TokenInvalidMessage, Failure: FailureTokenInvalid}
	case errors.Is(err, domain.ErrEmailAlreadyVerified):
		return ActionResponse{Error: AlreadyVerifiedMessage, Failure: FailureAlreadyVerified}
	case errors.Is(err, domain.ErrUnauthenticated):
		return ActionResponse{Error: UnauthenticatedMessage, Failure: FailureUnauthenticated}
	default:
		a.logger.ErrorContext(ctx, op+" failed", "error", err)
		return ActionResponse{Error: GenericFailureMessage, Failure: FailureInternal}
	}
}
