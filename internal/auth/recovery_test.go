package auth

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-idm-recovery/internal/domain"
	"github.com/tendant/simple-idm-recovery/internal/notification"
)

func TestRecoveryService_RequestReset_MalformedEmail(t *testing.T) {
	emails := []string{"", "   ", "invalid.com", "test@", "@example.com", "Ada <ada@example.com>"}
	for _, email := range emails {
		t.Run(email, func(t *testing.T) {
			h := newHarness(t)

			_, err := h.recovery.RequestReset(context.Background(), email)

			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "email", ve.Field)
			assert.Empty(t, h.notifier.messages())
		})
	}
}

func TestRecoveryService_RequestReset_SameMessageForUnknownEmail(t *testing.T) {
	h := newHarness(t)
	h.users.add(t, "user@example.com", "OldPass123", true)
	ctx := context.Background()

	known, err := h.recovery.RequestReset(ctx, "user@example.com")
	require.NoError(t, err)
	unknown, err := h.recovery.RequestReset(ctx, "nobody@example.com")
	require.NoError(t, err)

	assert.Equal(t, ResetRequestedMessage, known)
	assert.Equal(t, known, unknown)
	assert.Len(t, h.notifier.messages(), 1)
}

func TestRecoveryService_RequestReset_DownstreamFailuresSwallowed(t *testing.T) {
	t.Run("notifier", func(t *testing.T) {
		h := newHarness(t)
		h.users.add(t, "user@example.com", "OldPass123", true)
		h.notifier.err = errBoom

		msg, err := h.recovery.RequestReset(context.Background(), "user@example.com")
		require.NoError(t, err)
		assert.Equal(t, ResetRequestedMessage, msg)
	})

	t.Run("user lookup", func(t *testing.T) {
		h := newHarness(t)
		h.users.err = errBoom

		msg, err := h.recovery.RequestReset(context.Background(), "user@example.com")
		require.NoError(t, err)
		assert.Equal(t, ResetRequestedMessage, msg)
	})

	t.Run("token store", func(t *testing.T) {
		h := newHarness(t)
		h.users.add(t, "user@example.com", "OldPass123", true)
		h.tokens.err = errBoom

		msg, err := h.recovery.RequestReset(context.Background(), "user@example.com")
		require.NoError(t, err)
		assert.Equal(t, ResetRequestedMessage, msg)
		assert.Empty(t, h.notifier.messages())
	})
}

func TestRecoveryService_RequestReset_RateLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.recovery.RequestReset(ctx, "user@example.com")
		require.NoError(t, err, "request %d", i+1)
	}

	// Case differences share one budget.
	_, err := h.recovery.RequestReset(ctx, "USER@example.com")
	var rle *domain.RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Greater(t, rle.RetryAfterSeconds, 0)
	assert.LessOrEqual(t, rle.RetryAfterSeconds, 3600)
	assert.Equal(t, 3, rle.Limit)
	assert.Equal(t, 0, rle.Remaining)
	assert.False(t, rle.ResetAt.IsZero())

	h.clock.Advance(time.Hour + time.Second)

	_, err = h.recovery.RequestReset(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, h.recovery.limiter.Remaining(ctx, "user@example.com"))
}

func TestRecoveryService_ResetLink(t *testing.T) {
	h := newHarness(t)
	h.users.add(t, "user@example.com", "OldPass123", true)

	_, err := h.recovery.RequestReset(context.Background(), "user@example.com")
	require.NoError(t, err)

	msg := h.notifier.last(t)
	assert.Equal(t, "user@example.com", msg.To)
	assert.Equal(t, notification.TemplatePasswordReset, msg.TemplateID)
	assert.True(t, strings.HasPrefix(msg.Params["URL"].(string), "https://app.example.com/auth/reset-password/confirm?token="))
	assert.Equal(t, "1 hour", msg.Params["ExpiresIn"])
	assert.Len(t, tokenFromURL(t, msg), tokenLength)
}

func TestRecoveryService_CompleteReset_PasswordPolicy(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{password: "short", wantErr: true},
		{password: "longenoughbutnoupper1", wantErr: true},
		{password: "ValidPass1", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			h := newHarness(t)
			user := h.users.add(t, "user@example.com", "OldPass123", true)
			ctx := context.Background()

			_, err := h.recovery.RequestReset(ctx, user.Email)
			require.NoError(t, err)
			token := tokenFromURL(t, h.notifier.last(t))

			_, err = h.recovery.CompleteReset(ctx, token, tt.password, RequestMeta{})
			if tt.wantErr {
				assert.True(t, domain.IsValidation(err), "got %v", err)
				assert.True(t, VerifyPassword("OldPass123", h.users.get(user.ID).PasswordHash))
				assert.Equal(t, 1, h.tokens.count(user.ID, domain.TokenKindPasswordReset), "token must survive a rejected password")
				return
			}
			require.NoError(t, err)
			assert.True(t, VerifyPassword(tt.password, h.users.get(user.ID).PasswordHash))
		})
	}
}

func TestRecoveryService_CompleteReset_Expired(t *testing.T) {
	h := newHarness(t)
	user := h.users.add(t, "user@example.com", "OldPass123", true)
	ctx := context.Background()

	_, err := h.recovery.RequestReset(ctx, user.Email)
	require.NoError(t, err)
	token := tokenFromURL(t, h.notifier.last(t))

	h.clock.Advance(time.Hour)

	_, err = h.recovery.CompleteReset(ctx, token, "NewPass123", RequestMeta{})
	require.ErrorIs(t, err, domain.ErrTokenInvalid)
	assert.True(t, VerifyPassword("OldPass123", h.users.get(user.ID).PasswordHash))
}

func TestRecoveryService_CompleteReset_ReissueInvalidatesPrevious(t *testing.T) {
	h := newHarness(t)
	user := h.users.add(t, "user@example.com", "OldPass123", true)
	ctx := context.Background()

	_, err := h.recovery.RequestReset(ctx, user.Email)
	require.NoError(t, err)
	first := tokenFromURL(t, h.notifier.last(t))

	_, err = h.recovery.RequestReset(ctx, user.Email)
	require.NoError(t, err)
	second := tokenFromURL(t, h.notifier.last(t))
	require.NotEqual(t, first, second)

	_, err = h.recovery.CompleteReset(ctx, first, "NewPass123", RequestMeta{})
	require.ErrorIs(t, err, domain.ErrTokenInvalid)

	_, err = h.recovery.CompleteReset(ctx, second, "NewPass123", RequestMeta{})
	require.NoError(t, err)
}

func TestRecoveryService_CompleteReset_UserDeleted(t *testing.T) {
	h := newHarness(t)
	user := h.users.add(t, "user@example.com", "OldPass123", true)
	ctx := context.Background()

	_, err := h.recovery.RequestReset(ctx, user.Email)
	require.NoError(t, err)
	token := tokenFromURL(t, h.notifier.last(t))

	h.users.mu.Lock()
	delete(h.users.users, user.ID)
	h.users.mu.Unlock()

	_, err = h.recovery.CompleteReset(ctx, token, "NewPass123", RequestMeta{})
	require.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestRecoveryService_CompleteReset_Concurrent(t *testing.T) {
	h := newHarness(t)
	user := h.users.add(t, "user@example.com", "OldPass123", true)
	ctx := context.Background()

	_, err := h.recovery.RequestReset(ctx, user.Email)
	require.NoError(t, err)
	token := tokenFromURL(t, h.notifier.last(t))

	var succeeded, invalid atomic.Int32
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := h.recovery.CompleteReset(ctx, token, "NewPass123", RequestMeta{})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrTokenInvalid):
				invalid.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(1), invalid.Load())
}

func TestRecoveryService_CompleteReset_SideEffects(t *testing.T) {
	h := newHarness(t)
	user := h.users.add(t, "user@example.com", "OldPass123", true)
	ctx := context.Background()

	sessions := NewSessionService(SessionConfig{JWTSecret: []byte("secret")}, h.sessions)
	_, err := sessions.CreateSession(ctx, user, RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, 1, h.sessions.active(user.ID))

	_, err = h.recovery.RequestReset(ctx, user.Email)
	require.NoError(t, err)
	token := tokenFromURL(t, h.notifier.last(t))

	ua := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	_, err = h.recovery.CompleteReset(ctx, token, "NewPass123", RequestMeta{UserAgent: ua})
	require.NoError(t, err)

	assert.Equal(t, 0, h.sessions.active(user.ID))
	msg := h.notifier.last(t)
	assert.Equal(t, notification.TemplatePasswordChanged, msg.TemplateID)
	assert.Equal(t, "Chrome on Windows 10", msg.Params["Device"])
	assert.Equal(t, h.clock.Now(), h.users.get(user.ID).PasswordUpdatedAt)
}

func TestRecoveryService_CompleteReset_ConfirmationFailureKeepsPassword(t *testing.T) {
	h := newHarness(t)
	user := h.users.add(t, "user@example.com", "OldPass123", true)
	ctx := context.Background()

	_, err := h.recovery.RequestReset(ctx, user.Email)
	require.NoError(t, err)
	token := tokenFromURL(t, h.notifier.last(t))

	h.notifier.err = errBoom
	msg, err := h.recovery.CompleteReset(ctx, token, "NewPass123", RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, ResetCompletedMessage, msg)
	assert.True(t, VerifyPassword("NewPass123", h.users.get(user.ID).PasswordHash))
}

func TestRecoveryService_CompleteReset_CancelledContext(t *testing.T) {
	h := newHarness(t)
	user := h.users.add(t, "user@example.com", "OldPass123", true)

	_, err := h.recovery.RequestReset(context.Background(), user.Email)
	require.NoError(t, err)
	token := tokenFromURL(t, h.notifier.last(t))

	// The confirmation email is detached from the request context.
	ctx, cancel := context.WithCancel(context.Background())
	cancelling := &ctxRecorder{fakeNotifier: h.notifier}
	h.recovery.notifier = cancelling
	cancel()

	_, err = h.recovery.CompleteReset(ctx, token, "NewPass123", RequestMeta{})
	require.NoError(t, err)
	assert.NoError(t, cancelling.ctxErr)
}

// ctxRecorder records the context error seen by Send.
type ctxRecorder struct {
	*fakeNotifier
	ctxErr error
}

func (c *ctxRecorder) Send(ctx context.Context, msg notification.Message) error {
	c.ctxErr = ctx.Err()
	return c.fakeNotifier.Send(ctx, msg)
}

func TestRecoveryService_EndToEnd(t *testing.T) {
	h := newHarness(t)
	user := h.users.add(t, "user@example.com", "OldPass123", true)
	ctx := context.Background()

	resp := h.actions.RequestPasswordReset(ctx, "user@example.com")
	require.True(t, resp.Success)
	assert.Equal(t, ResetRequestedMessage, resp.Message)

	token := tokenFromURL(t, h.notifier.last(t))

	resp = h.actions.CompletePasswordReset(ctx, token, "NewPass123", RequestMeta{})
	require.True(t, resp.Success, resp.Error)
	assert.True(t, VerifyPassword("NewPass123", h.users.get(user.ID).PasswordHash))

	_, err := h.recovery.CompleteReset(ctx, token, "OtherPass123", RequestMeta{})
	require.ErrorIs(t, err, domain.ErrTokenInvalid)
	assert.True(t, VerifyPassword("NewPass123", h.users.get(user.ID).PasswordHash))
}

func TestFormatTTL(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want string
	}{
		{time.Hour, "1 hour"},
		{24 * time.Hour, "24 hours"},
		{5 * time.Minute, "5 minutes"},
		{time.Minute, "1 minute"},
	}
	for _, tt := range tests {
		if got := formatTTL(tt.ttl); got != tt.want {
			t.Errorf("formatTTL(%v) = %q, want %q", tt.ttl, got, tt.want)
		}
	}
}

func TestRecoveryService_CompleteReset_FailedWriteKeepsToken(t *testing.T) {
	h := newHarness(t)
	user := h.users.add(t, "user@example.com", "OldPass123", true)
	ctx := context.Background()

	_, err := h.recovery.RequestReset(ctx, user.Email)
	require.NoError(t, err)
	token := tokenFromURL(t, h.notifier.last(t))
	sent := len(h.notifier.messages())

	h.users.setWriteErr(errBoom)
	_, err = h.recovery.CompleteReset(ctx, token, "NewPass123", RequestMeta{})
	var de *domain.DownstreamError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, h.tokens.count(user.ID, domain.TokenKindPasswordReset), "token must survive a failed password write")
	assert.True(t, VerifyPassword("OldPass123", h.users.get(user.ID).PasswordHash))
	assert.Len(t, h.notifier.messages(), sent, "no confirmation for a failed reset")

	h.users.setWriteErr(nil)
	msg, err := h.recovery.CompleteReset(ctx, token, "NewPass123", RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, ResetCompletedMessage, msg)
	assert.True(t, VerifyPassword("NewPass123", h.users.get(user.ID).PasswordHash))
}
