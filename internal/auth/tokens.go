package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-recovery/internal/domain"
	"github.com/tendant/simple-idm-recovery/internal/metrics"
)

// TokenClaim is what a consumed token acted on behalf of.
type TokenClaim struct {
	UserID uuid.UUID
	// Email is set for verification tokens.
	Email string
}

// TokenStore issues and consumes single-use tokens.
type TokenStore struct {
	tokens  TokenRepository
	tx      Transactor
	metrics *metrics.Metrics
	now     func() time.Time
}

// TokenStoreOption configures a TokenStore.
type TokenStoreOption func(*TokenStore)

// WithTokenClock replaces time.Now.
func WithTokenClock(now func() time.Time) TokenStoreOption {
	return func(s *TokenStore) {
		s.now = now
	}
}

// WithTokenMetrics records issue and consume counts.
func WithTokenMetrics(m *metrics.Metrics) TokenStoreOption {
	return func(s *TokenStore) {
		s.metrics = m
	}
}

// NewTokenStore creates a new token store.
func NewTokenStore(tokens TokenRepository, tx Transactor, opts ...TokenStoreOption) *TokenStore {
	s := &TokenStore{
		tokens: tokens,
		tx:     tx,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates a token for userID and returns its raw value. Any earlier
// tokens of the same kind for the user are deleted in the same transaction.
// email is stored with verification tokens and may be empty otherwise.
func (s *TokenStore) Issue(ctx context.Context, userID uuid.UUID, kind domain.TokenKind, ttl time.Duration, email string) (string, error) {
	rawToken, err := GenerateToken(tokenLength)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	now := s.now()
	token := &domain.Token{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: HashToken(rawToken),
		Kind:      kind,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if email != "" {
		token.Email = &email
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.tokens.DeleteForUser(ctx, userID, kind); err != nil {
			return fmt.Errorf("delete previous tokens: %w", err)
		}
		if err := s.tokens.Create(ctx, token); err != nil {
			return fmt.Errorf("create token: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.metrics.IncTokensIssued(string(kind))
	return rawToken, nil
}

// Consume deletes the token and returns its claim. Missing, expired and
// already consumed tokens all yield domain.ErrTokenInvalid. When ctx
// carries a transaction the delete joins it, so a failed follow-up write
// restores the token.
func (s *TokenStore) Consume(ctx context.Context, rawToken string, kind domain.TokenKind) (*TokenClaim, error) {
	if rawToken == "" {
		s.metrics.IncTokensConsumed(string(kind), "invalid")
		return nil, domain.ErrTokenInvalid
	}

	token, err := s.tokens.Consume(ctx, HashToken(rawToken), kind, s.now())
	if errors.Is(err, domain.ErrTokenInvalid) {
		s.metrics.IncTokensConsumed(string(kind), "invalid")
		return nil, domain.ErrTokenInvalid
	}
	if err != nil {
		s.metrics.IncTokensConsumed(string(kind), "error")
		return nil, fmt.Errorf("consume token: %w", err)
	}

	s.metrics.IncTokensConsumed(string(kind), "ok")
	claim := &TokenClaim{UserID: token.UserID}
	if token.Email != nil {
		claim.Email = *token.Email
	}
	return claim, nil
}

// PurgeExpired removes expired tokens. Expired tokens are never accepted
// by Consume, so purging only reclaims space.
func (s *TokenStore) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.tokens.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	s.metrics.AddTokensPurged(n)
	return n, nil
}
