package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tendant/simple-idm-recovery/internal/domain"
)

const (
	// Default token lifetimes
	DefaultAccessTokenTTL = 15 * time.Minute
	DefaultSessionTTL     = 7 * 24 * time.Hour
)

// SessionConfig holds session configuration.
type SessionConfig struct {
	AccessTokenTTL time.Duration
	SessionTTL     time.Duration
	JWTSecret      []byte
	Issuer         string
}

// SessionService issues access tokens backed by a server-side session row,
// so a password reset can revoke every outstanding login.
type SessionService struct {
	config   SessionConfig
	sessions SessionRepository
	now      func() time.Time
}

// NewSessionService creates a new session service.
func NewSessionService(config SessionConfig, sessions SessionRepository) *SessionService {
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.SessionTTL == 0 {
		config.SessionTTL = DefaultSessionTTL
	}
	return &SessionService{
		config:   config,
		sessions: sessions,
		now:      time.Now,
	}
}

// AccessTokenTTL returns the access token TTL.
func (s *SessionService) AccessTokenTTL() time.Duration {
	return s.config.AccessTokenTTL
}

// AccessTokenClaims represents the claims in an access token.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
}

// SessionID returns the session the token belongs to.
func (c *AccessTokenClaims) SessionID() (uuid.UUID, error) {
	return uuid.Parse(c.ID)
}

// UserID returns the token subject.
func (c *AccessTokenClaims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// IssuedSession is returned after a successful login.
type IssuedSession struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// CreateSession records a session for user and signs an access token for it.
func (s *SessionService) CreateSession(ctx context.Context, user *domain.User, meta RequestMeta) (*IssuedSession, error) {
	now := s.now()

	session := &domain.Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.SessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	expiresAt := now.Add(s.config.AccessTokenTTL)
	if session.ExpiresAt.Before(expiresAt) {
		expiresAt = session.ExpiresAt
	}
	name := ""
	if user.Name != nil {
		name = *user.Name
	}
	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    s.config.Issuer,
			ID:        session.ID.String(),
		},
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		Name:          name,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	accessToken, err := token.SignedString(s.config.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	return &IssuedSession{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(expiresAt.Sub(now).Seconds()),
		ExpiresAt:   expiresAt,
	}, nil
}

// ValidateAccessToken checks the token signature and expiry only.
func (s *SessionService) ValidateAccessToken(tokenString string) (*AccessTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return s.config.JWTSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*AccessTokenClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

// ValidateSession validates the access token and checks that its session
// has not been revoked or expired.
func (s *SessionService) ValidateSession(ctx context.Context, tokenString string) (*AccessTokenClaims, error) {
	claims, err := s.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}
	sessionID, err := claims.SessionID()
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	if session.RevokedAt != nil {
		return nil, domain.ErrSessionRevoked
	}
	if !s.now().Before(session.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}
	return claims, nil
}

// SignOut revokes a single session.
func (s *SessionService) SignOut(ctx context.Context, sessionID uuid.UUID) error {
	return s.sessions.Revoke(ctx, sessionID)
}

// RevokeAll revokes every session of a user.
func (s *SessionService) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	return s.sessions.RevokeAllByUserID(ctx, userID)
}
