package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-idm-recovery/internal/domain"
	"github.com/tendant/simple-idm-recovery/internal/metrics"
	"github.com/tendant/simple-idm-recovery/internal/notification"
	"github.com/tendant/simple-idm-recovery/internal/ratelimit"
)

// AccountService handles registration and password login.
type AccountService struct {
	logger       *slog.Logger
	users        UserRepository
	hasher       PasswordHasher
	policy       *PasswordPolicy
	verification *VerificationService
	emailLimiter ratelimit.Limiter
	notifier     notification.Notifier
	metrics      *metrics.Metrics
	notifyTO     time.Duration
	now          func() time.Time
}

// AccountDeps groups the collaborators of an AccountService. Verification,
// EmailLimiter and Notifier are optional; without them no welcome email
// is sent.
type AccountDeps struct {
	Logger        *slog.Logger
	Users         UserRepository
	Hasher        PasswordHasher
	Policy        *PasswordPolicy
	Verification  *VerificationService
	EmailLimiter  ratelimit.Limiter
	Notifier      notification.Notifier
	Metrics       *metrics.Metrics
	NotifyTimeout time.Duration
}

func NewAccountService(deps AccountDeps) *AccountService {
	s := &AccountService{
		logger:       deps.Logger,
		users:        deps.Users,
		hasher:       deps.Hasher,
		policy:       deps.Policy,
		verification: deps.Verification,
		emailLimiter: deps.EmailLimiter,
		notifier:     deps.Notifier,
		metrics:      deps.Metrics,
		notifyTO:     deps.NotifyTimeout,
		now:          time.Now,
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
	if s.notifyTO == 0 {
		s.notifyTO = 10 * time.Second
	}
	return s
}

// Register creates an account with an unverified email and sends a
// welcome email carrying a verification link.
func (s *AccountService) Register(ctx context.Context, email, password, name string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "AccountService.Register")
	var err error
	defer func() { endSpan(span, err) }()

	if err = ValidateEmail(email); err != nil {
		return nil, err
	}
	if err = s.policy.ValidatePassword(password); err != nil {
		return nil, err
	}
	if name, err = SanitizeName(name); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		err = domain.Downstream("hash password", err)
		return nil, err
	}

	now := s.now()
	user := &domain.User{
		ID:                uuid.New(),
		Email:             NormalizeEmail(email),
		PasswordHash:      hash,
		PasswordUpdatedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if name != "" {
		user.Name = &name
	}

	if err = s.users.Create(ctx, user); err != nil {
		if !errors.Is(err, domain.ErrUserAlreadyExists) {
			err = domain.Downstream("create user", err)
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	s.sendWelcome(ctx, user)
	return user, nil
}

func (s *AccountService) sendWelcome(ctx context.Context, user *domain.User) {
	if s.notifier == nil {
		return
	}
	if s.emailLimiter != nil && !s.emailLimiter.Check(ctx, user.Email) {
		s.metrics.IncRateLimitDenied("email")
		s.logger.WarnContext(ctx, "welcome email rate limited", "user_id", user.ID)
		return
	}

	params := map[string]any{
		"Name":  user.DisplayName(),
		"Email": user.Email,
	}
	if s.verification != nil {
		link, err := s.verification.issueLink(ctx, user)
		if err != nil {
			return
		}
		params["URL"] = link
	}

	err := sendNotification(ctx, s.notifier, s.metrics, s.notifyTO, notification.Message{
		To:         user.Email,
		Subject:    "Welcome!",
		TemplateID: notification.TemplateWelcome,
		Params:     params,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to send welcome email", "error", err, "user_id", user.ID)
	}
}

// Authenticate checks email and password. Unknown users and wrong
// passwords both return domain.ErrInvalidCredentials.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "AccountService.Authenticate")
	var err error
	defer func() { endSpan(span, err) }()

	if email == "" || password == "" {
		err = domain.ErrInvalidCredentials
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			err = domain.ErrInvalidCredentials
			return nil, err
		}
		err = domain.Downstream("load user", err)
		return nil, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		err = domain.ErrInvalidCredentials
		return nil, err
	}
	return user, nil
}

// CurrentUser loads the signed-in user. A session whose user no longer
// exists yields domain.ErrUnauthenticated.
func (s *AccountService) CurrentUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, domain.ErrUserNotFound):
		return nil, domain.ErrUnauthenticated
	default:
		return nil, domain.Downstream("load user", err)
	}
}
