package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tendant/simple-idm-recovery/internal/domain"
	"github.com/tendant/simple-idm-recovery/internal/metrics"
	"github.com/tendant/simple-idm-recovery/internal/notification"
	"github.com/tendant/simple-idm-recovery/internal/ratelimit"
)

// Messages returned by the verification flow.
const (
	VerificationSentMessage     = "Verification email sent. Please check your inbox."
	VerificationCompleteMessage = "Your email has been verified successfully."
	verifyRateLimitMessage      = "Too many verification emails requested. Please try again later."
)

// DefaultEmailVerificationTTL is how long a verification link stays valid.
const DefaultEmailVerificationTTL = 24 * time.Hour

type VerificationConfig struct {
	AppBaseURL      string
	VerificationTTL time.Duration
	NotifyTimeout   time.Duration
}

// VerificationService runs the email verification flow.
type VerificationService struct {
	config   VerificationConfig
	logger   *slog.Logger
	tx       Transactor
	tokens   *TokenStore
	users    UserRepository
	limiter  ratelimit.Limiter
	notifier notification.Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
}

// VerificationDeps groups the collaborators of a VerificationService.
type VerificationDeps struct {
	Logger   *slog.Logger
	Tx       Transactor
	Tokens   *TokenStore
	Users    UserRepository
	Limiter  ratelimit.Limiter
	Notifier notification.Notifier
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func NewVerificationService(config VerificationConfig, deps VerificationDeps) *VerificationService {
	if config.VerificationTTL == 0 {
		config.VerificationTTL = DefaultEmailVerificationTTL
	}
	if config.NotifyTimeout == 0 {
		config.NotifyTimeout = 10 * time.Second
	}
	s := &VerificationService{
		config:   config,
		logger:   deps.Logger,
		tx:       deps.Tx,
		tokens:   deps.Tokens,
		users:    deps.Users,
		limiter:  deps.Limiter,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		now:      deps.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RequestVerification emails a fresh verification link to the user's
// current address. Already verified users get domain.ErrEmailAlreadyVerified
// and no token is issued.
func (s *VerificationService) RequestVerification(ctx context.Context, userID uuid.UUID) (string, error) {
	ctx, span := tracer.Start(ctx, "VerificationService.RequestVerification",
		attributeUserID(userID))
	var err error
	defer func() { endSpan(span, err) }()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			err = domain.ErrUnauthenticated
			return "", err
		}
		err = domain.Downstream("load user", err)
		return "", err
	}
	if user.EmailVerified {
		err = domain.ErrEmailAlreadyVerified
		return "", err
	}

	key := NormalizeEmail(user.Email)
	if !s.limiter.Check(ctx, key) {
		s.metrics.IncRateLimitDenied("email_verification")
		err = rateLimited(ctx, s.limiter, key, verifyRateLimitMessage, s.now())
		return "", err
	}

	if err = s.SendVerificationEmail(ctx, user); err != nil {
		return "", err
	}
	return VerificationSentMessage, nil
}

// SendVerificationEmail issues a verification token for the user's current
// address and emails it. It does not consult the rate limiter.
func (s *VerificationService) SendVerificationEmail(ctx context.Context, user *domain.User) error {
	link, err := s.issueLink(ctx, user)
	if err != nil {
		return err
	}

	err = sendNotification(ctx, s.notifier, s.metrics, s.config.NotifyTimeout, notification.Message{
		To:         user.Email,
		Subject:    "Verify Your Email Address",
		TemplateID: notification.TemplateEmailVerification,
		Params: map[string]any{
			"Name":      user.DisplayName(),
			"Email":     user.Email,
			"URL":       link,
			"ExpiresIn": formatTTL(s.config.VerificationTTL),
		},
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to send verification email", "error", err, "user_id", user.ID)
		return domain.Downstream("send verification email", err)
	}

	s.logger.InfoContext(ctx, "verification email sent", "user_id", user.ID)
	return nil
}

// issueLink issues a verification token for the user's current address
// and returns the link to embed in an email.
func (s *VerificationService) issueLink(ctx context.Context, user *domain.User) (string, error) {
	token, err := s.tokens.Issue(ctx, user.ID, domain.TokenKindEmailVerification, s.config.VerificationTTL, user.Email)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create verification token", "error", err, "user_id", user.ID)
		return "", domain.Downstream("issue verification token", err)
	}
	return s.VerificationURL(token), nil
}

// VerificationURL builds the link embedded in verification emails.
func (s *VerificationService) VerificationURL(token string) string {
	return s.config.AppBaseURL + "/auth/verify-email?" + url.Values{"token": {token}}.Encode()
}

// CompleteVerification consumes a verification token and marks the
// address it was issued for as verified. If the user has changed email
// since, the token is rejected. A replayed token always fails.
func (s *VerificationService) CompleteVerification(ctx context.Context, rawToken string) (uuid.UUID, error) {
	ctx, span := tracer.Start(ctx, "VerificationService.CompleteVerification")
	var err error
	defer func() { endSpan(span, err) }()

	if rawToken == "" {
		err = domain.NewValidationError("token", "Token is required")
		return uuid.Nil, err
	}

	var userID uuid.UUID
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		claim, err := s.tokens.Consume(ctx, rawToken, domain.TokenKindEmailVerification)
		if err != nil {
			return err
		}
		userID = claim.UserID
		return s.users.MarkEmailVerified(ctx, claim.UserID, claim.Email, s.now())
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTokenInvalid), errors.Is(err, domain.ErrUserNotFound):
		err = domain.ErrTokenInvalid
		return uuid.Nil, err
	default:
		err = domain.Downstream("complete email verification", err)
		return uuid.Nil, err
	}

	span.SetAttributes(attribute.String("user_id", userID.String()))
	s.logger.InfoContext(ctx, "email verified", "user_id", userID)
	return userID, nil
}
