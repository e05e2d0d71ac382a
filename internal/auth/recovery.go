package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tendant/simple-idm-recovery/internal/domain"
	"github.com/tendant/simple-idm-recovery/internal/metrics"
	"github.com/tendant/simple-idm-recovery/internal/notification"
	"github.com/tendant/simple-idm-recovery/internal/ratelimit"
)

// Messages returned by the recovery flow.
const (
	ResetRequestedMessage = "If an account exists with this email, you will receive a password reset link."
	ResetCompletedMessage = "Your password has been reset successfully."
	resetRateLimitMessage = "Too many password reset requests. Please try again later."
)

// DefaultPasswordResetTTL is how long a reset link stays valid.
const DefaultPasswordResetTTL = time.Hour

type RecoveryConfig struct {
	AppBaseURL string
	ResetTTL   time.Duration
	// NotifyTimeout bounds each notification so a slow mail server never
	// stalls the request.
	NotifyTimeout time.Duration
}

// RecoveryService runs the password reset flow.
type RecoveryService struct {
	config   RecoveryConfig
	logger   *slog.Logger
	tx       Transactor
	tokens   *TokenStore
	users    UserRepository
	sessions SessionRepository
	limiter  ratelimit.Limiter
	notifier notification.Notifier
	hasher   PasswordHasher
	policy   *PasswordPolicy
	metrics  *metrics.Metrics
	now      func() time.Time
}

// RecoveryDeps groups the collaborators of a RecoveryService.
type RecoveryDeps struct {
	Logger   *slog.Logger
	Tx       Transactor
	Tokens   *TokenStore
	Users    UserRepository
	Sessions SessionRepository
	Limiter  ratelimit.Limiter
	Notifier notification.Notifier
	Hasher   PasswordHasher
	Policy   *PasswordPolicy
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func NewRecoveryService(config RecoveryConfig, deps RecoveryDeps) *RecoveryService {
	if config.ResetTTL == 0 {
		config.ResetTTL = DefaultPasswordResetTTL
	}
	if config.NotifyTimeout == 0 {
		config.NotifyTimeout = 10 * time.Second
	}
	s := &RecoveryService{
		config:   config,
		logger:   deps.Logger,
		tx:       deps.Tx,
		tokens:   deps.Tokens,
		users:    deps.Users,
		sessions: deps.Sessions,
		limiter:  deps.Limiter,
		notifier: deps.Notifier,
		hasher:   deps.Hasher,
		policy:   deps.Policy,
		metrics:  deps.Metrics,
		now:      deps.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.hasher == nil {
		s.hasher = Argon2Hasher{}
	}
	if s.policy == nil {
		s.policy = DefaultPasswordPolicy()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RequestReset starts a password reset for email. Apart from validation
// and rate limiting errors the outcome is always ResetRequestedMessage,
// whether or not an account exists and whether or not the email went out.
func (s *RecoveryService) RequestReset(ctx context.Context, email string) (string, error) {
	ctx, span := tracer.Start(ctx, "RecoveryService.RequestReset")
	var err error
	defer func() { endSpan(span, err) }()

	if err = ValidateEmail(email); err != nil {
		return "", err
	}
	email = NormalizeEmail(email)

	if !s.limiter.Check(ctx, email) {
		s.metrics.IncRateLimitDenied("password_reset")
		err = rateLimited(ctx, s.limiter, email, resetRateLimitMessage, s.now())
		return "", err
	}

	s.sendResetLink(ctx, span, email)
	return ResetRequestedMessage, nil
}

// sendResetLink issues a token and emails it if the account exists.
// Failures are logged only.
func (s *RecoveryService) sendResetLink(ctx context.Context, span trace.Span, email string) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			s.logger.ErrorContext(ctx, "failed to get user by email", "error", err)
		}
		return
	}
	span.SetAttributes(attribute.String("user_id", user.ID.String()))

	token, err := s.tokens.Issue(ctx, user.ID, domain.TokenKindPasswordReset, s.config.ResetTTL, "")
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create password reset token", "error", err, "user_id", user.ID)
		return
	}

	resetURL := s.config.AppBaseURL + "/auth/reset-password/confirm?" + url.Values{"token": {token}}.Encode()
	err = s.notify(ctx, notification.Message{
		To:         user.Email,
		Subject:    "Reset Your Password",
		TemplateID: notification.TemplatePasswordReset,
		Params: map[string]any{
			"Name":      user.DisplayName(),
			"Email":     user.Email,
			"URL":       resetURL,
			"ExpiresIn": formatTTL(s.config.ResetTTL),
		},
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to send password reset email", "error", err, "user_id", user.ID)
		return
	}
	s.logger.InfoContext(ctx, "password reset email sent", "user_id", user.ID)
}

// CompleteReset sets a new password using a reset token. The token is
// consumed and the password written in one transaction; at most one call
// succeeds per issued token.
func (s *RecoveryService) CompleteReset(ctx context.Context, rawToken, newPassword string, meta RequestMeta) (string, error) {
	ctx, span := tracer.Start(ctx, "RecoveryService.CompleteReset")
	var err error
	defer func() { endSpan(span, err) }()

	if rawToken == "" {
		err = domain.NewValidationError("token", "Token is required")
		return "", err
	}
	if err = s.policy.ValidatePassword(newPassword); err != nil {
		return "", err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		err = domain.Downstream("hash password", err)
		return "", err
	}

	var userID uuid.UUID
	changedAt := s.now()
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		claim, err := s.tokens.Consume(ctx, rawToken, domain.TokenKindPasswordReset)
		if err != nil {
			return err
		}
		userID = claim.UserID
		if err := s.users.UpdatePassword(ctx, claim.UserID, hash, changedAt); err != nil {
			return err
		}
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTokenInvalid), errors.Is(err, domain.ErrUserNotFound):
		err = domain.ErrTokenInvalid
		return "", err
	default:
		err = domain.Downstream("complete password reset", err)
		return "", err
	}
	span.SetAttributes(attribute.String("user_id", userID.String()))

	// The password is committed from here on; everything below is best effort.
	if s.sessions != nil {
		if err := s.sessions.RevokeAllByUserID(ctx, userID); err != nil {
			s.logger.ErrorContext(ctx, "failed to revoke sessions", "error", err, "user_id", userID)
		}
	}
	s.sendPasswordChanged(ctx, userID, changedAt, meta)

	s.logger.InfoContext(ctx, "password reset successful", "user_id", userID)
	return ResetCompletedMessage, nil
}

func (s *RecoveryService) sendPasswordChanged(ctx context.Context, userID uuid.UUID, changedAt time.Time, meta RequestMeta) {
	// Detached so a client disconnect does not cancel the confirmation.
	ctx = context.WithoutCancel(ctx)

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load user for password changed email", "error", err, "user_id", userID)
		return
	}
	err = s.notify(ctx, notification.Message{
		To:         user.Email,
		Subject:    "Your Password Has Been Changed",
		TemplateID: notification.TemplatePasswordChanged,
		Params: map[string]any{
			"Name":      user.DisplayName(),
			"Email":     user.Email,
			"ChangedAt": changedAt.UTC().Format("2006-01-02 15:04 MST"),
			"Device":    notification.DescribeDevice(meta.UserAgent),
		},
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to send password changed email", "error", err, "user_id", userID)
	}
}

func (s *RecoveryService) notify(ctx context.Context, msg notification.Message) error {
	return sendNotification(ctx, s.notifier, s.metrics, s.config.NotifyTimeout, msg)
}

func sendNotification(ctx context.Context, n notification.Notifier, m *metrics.Metrics, timeout time.Duration, msg notification.Message) error {
	if n == nil {
		return errors.New("notifier not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := n.Send(ctx, msg); err != nil {
		m.IncNotifications(msg.TemplateID, "failed")
		return err
	}
	m.IncNotifications(msg.TemplateID, "sent")
	return nil
}

// formatTTL renders durations such as 1h or 24h for email copy.
func formatTTL(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if h := int(d / time.Hour); h != 1 {
			return fmt.Sprintf("%d hours", h)
		}
		return "1 hour"
	case d >= time.Minute && d%time.Minute == 0:
		if m := int(d / time.Minute); m != 1 {
			return fmt.Sprintf("%d minutes", m)
		}
		return "1 minute"
	}
	return d.String()
}
