package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-idm-recovery/internal/domain"
	"github.com/tendant/simple-idm-recovery/internal/notification"
	"github.com/tendant/simple-idm-recovery/internal/ratelimit"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTxKey struct{}

// fakeTxLog collects undo steps for the writes made inside one InTx call.
type fakeTxLog struct {
	mu   sync.Mutex
	undo []func()
}

// onRollback registers undo to run if the transaction carried by ctx fails.
// Outside a transaction writes are final.
func onRollback(ctx context.Context, undo func()) {
	log, ok := ctx.Value(fakeTxKey{}).(*fakeTxLog)
	if !ok {
		return
	}
	log.mu.Lock()
	log.undo = append(log.undo, undo)
	log.mu.Unlock()
}

// fakeTx rolls back the fake repositories' writes when fn fails.
type fakeTx struct{}

func (fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(fakeTxKey{}).(*fakeTxLog); ok {
		return fn(ctx)
	}
	log := &fakeTxLog{}
	if err := fn(context.WithValue(ctx, fakeTxKey{}, log)); err != nil {
		for i := len(log.undo) - 1; i >= 0; i-- {
			log.undo[i]()
		}
		return err
	}
	return nil
}

type fakeTokens struct {
	mu     sync.Mutex
	byHash map[string]*domain.Token
	err    error
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{byHash: make(map[string]*domain.Token)}
}

// restore puts tokens back after a rolled back delete.
func (f *fakeTokens) restore(tokens ...*domain.Token) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tokens {
		f.byHash[t.TokenHash] = t
	}
}

// Create replaces any token of the same (user, kind), as the unique
// index and upsert do in Postgres.
func (f *fakeTokens) Create(ctx context.Context, token *domain.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	var replaced []*domain.Token
	for h, t := range f.byHash {
		if t.UserID == token.UserID && t.Kind == token.Kind {
			replaced = append(replaced, t)
			delete(f.byHash, h)
		}
	}
	t := *token
	f.byHash[token.TokenHash] = &t
	onRollback(ctx, func() {
		f.mu.Lock()
		delete(f.byHash, t.TokenHash)
		f.mu.Unlock()
		f.restore(replaced...)
	})
	return nil
}

func (f *fakeTokens) DeleteForUser(ctx context.Context, userID uuid.UUID, kind domain.TokenKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	var deleted []*domain.Token
	for h, t := range f.byHash {
		if t.UserID == userID && t.Kind == kind {
			deleted = append(deleted, t)
			delete(f.byHash, h)
		}
	}
	onRollback(ctx, func() { f.restore(deleted...) })
	return nil
}

func (f *fakeTokens) Consume(ctx context.Context, tokenHash string, kind domain.TokenKind, now time.Time) (*domain.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.byHash[tokenHash]
	if !ok || t.Kind != kind || !t.IsLive(now) {
		return nil, domain.ErrTokenInvalid
	}
	delete(f.byHash, tokenHash)
	onRollback(ctx, func() { f.restore(t) })
	return t, nil
}

func (f *fakeTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for h, t := range f.byHash {
		if !t.IsLive(now) {
			delete(f.byHash, h)
			n++
		}
	}
	return n, nil
}

func (f *fakeTokens) count(userID uuid.UUID, kind domain.TokenKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.byHash {
		if t.UserID == userID && t.Kind == kind {
			n++
		}
	}
	return n
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
	err   error
	// writeErr fails UpdatePassword and MarkEmailVerified.
	writeErr error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[uuid.UUID]*domain.User)}
}

func (f *fakeUsers) add(t *testing.T, email, password string, verified bool) *domain.User {
	t.Helper()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	u := &domain.User{
		ID:            uuid.New(),
		Email:         email,
		PasswordHash:  hash,
		EmailVerified: verified,
	}
	f.mu.Lock()
	f.users[u.ID] = u
	f.mu.Unlock()
	return u
}

func (f *fakeUsers) get(id uuid.UUID) domain.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.users[id]
}

func (f *fakeUsers) setEmail(id uuid.UUID, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id].Email = email
}

func (f *fakeUsers) Create(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, user.Email) {
			return domain.ErrUserAlreadyExists
		}
	}
	u := *user
	f.users[user.ID] = &u
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (f *fakeUsers) setWriteErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// put replaces the stored user with a copy of u.
func (f *fakeUsers) put(u domain.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = &u
}

func (f *fakeUsers) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	u, ok := f.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	before := *u
	u.PasswordHash = passwordHash
	u.PasswordUpdatedAt = at
	onRollback(ctx, func() { f.put(before) })
	return nil
}

func (f *fakeUsers) MarkEmailVerified(ctx context.Context, userID uuid.UUID, email string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	u, ok := f.users[userID]
	if !ok || !strings.EqualFold(u.Email, email) {
		return domain.ErrUserNotFound
	}
	before := *u
	u.EmailVerified = true
	u.EmailVerifiedAt = &at
	onRollback(ctx, func() { f.put(before) })
	return nil
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.Session
	now      func() time.Time
}

func newFakeSessions(now func() time.Time) *fakeSessions {
	return &fakeSessions{sessions: make(map[uuid.UUID]*domain.Session), now: now}
}

func (f *fakeSessions) Create(_ context.Context, session *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := *session
	f.sessions[session.ID] = &s
	return nil
}

func (f *fakeSessions) GetByID(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	c := *s
	return &c, nil
}

func (f *fakeSessions) Revoke(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.RevokedAt != nil {
		return domain.ErrSessionNotFound
	}
	now := f.now()
	s.RevokedAt = &now
	return nil
}

func (f *fakeSessions) RevokeAllByUserID(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	for _, s := range f.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &now
		}
	}
	return nil
}

func (f *fakeSessions) active(userID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			n++
		}
	}
	return n
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification.Message
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, msg notification.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeNotifier) messages() []notification.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notification.Message(nil), f.sent...)
}

func (f *fakeNotifier) last(t *testing.T) notification.Message {
	t.Helper()
	msgs := f.messages()
	require.NotEmpty(t, msgs, "no notification sent")
	return msgs[len(msgs)-1]
}

// tokenFromURL extracts the token query parameter of a notified link.
func tokenFromURL(t *testing.T, msg notification.Message) string {
	t.Helper()
	raw, ok := msg.Params["URL"].(string)
	require.True(t, ok, "message has no URL param")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

// harness wires the services against in-memory fakes sharing one clock.
type harness struct {
	clock        *fakeClock
	tokens       *fakeTokens
	users        *fakeUsers
	sessions     *fakeSessions
	notifier     *fakeNotifier
	store        *TokenStore
	recovery     *RecoveryService
	verification *VerificationService
	actions      *Actions
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:    newFakeClock(),
		tokens:   newFakeTokens(),
		users:    newFakeUsers(),
		notifier: &fakeNotifier{},
	}
	h.sessions = newFakeSessions(h.clock.Now)
	h.store = NewTokenStore(h.tokens, fakeTx{}, WithTokenClock(h.clock.Now))

	h.recovery = NewRecoveryService(RecoveryConfig{AppBaseURL: "https://app.example.com"}, RecoveryDeps{
		Tx:       fakeTx{},
		Tokens:   h.store,
		Users:    h.users,
		Sessions: h.sessions,
		Limiter:  ratelimit.NewMemoryLimiter(time.Hour, 3, ratelimit.WithClock(h.clock.Now)),
		Notifier: h.notifier,
		Now:      h.clock.Now,
	})
	h.verification = NewVerificationService(VerificationConfig{AppBaseURL: "https://app.example.com"}, VerificationDeps{
		Tx:       fakeTx{},
		Tokens:   h.store,
		Users:    h.users,
		Limiter:  ratelimit.NewMemoryLimiter(5*time.Minute, 2, ratelimit.WithClock(h.clock.Now)),
		Notifier: h.notifier,
		Now:      h.clock.Now,
	})
	h.actions = NewActions(nil, h.recovery, h.verification)
	return h
}

var errBoom = errors.New("boom")
