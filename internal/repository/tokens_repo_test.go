package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-recovery/internal/domain"
)

// openTestDB connects to TEST_DATABASE_URL and applies migrations.
// Tests are skipped when it is not set.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Skipping repository test - TEST_DATABASE_URL not set")
	}

	m, err := NewMigrator(url)
	if err != nil {
		t.Fatalf("NewMigrator failed: %v", err)
	}
	if err := m.Up(); err != nil {
		t.Fatalf("migrate up failed: %v", err)
	}
	_ = m.Close()

	db, err := sql.Open("postgres", url)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB) *domain.User {
	t.Helper()
	now := time.Now()
	user := &domain.User{
		ID:                uuid.New(),
		Email:             uuid.NewString() + "@example.com",
		PasswordHash:      "hash",
		PasswordUpdatedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := NewUsersRepository(db).Create(context.Background(), user); err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	return user
}

func TestTokensRepository_ConsumeIsSingleUse(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewTokensRepository(db)
	user := createTestUser(t, db)

	token := &domain.Token{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: uuid.NewString(),
		Kind:      domain.TokenKindPasswordReset,
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	if err := repo.Create(ctx, token); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Consume(ctx, token.TokenHash, token.Kind, time.Now())
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrTokenInvalid) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want 1", successes)
	}
}

func TestTokensRepository_ConsumeExpired(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewTokensRepository(db)
	user := createTestUser(t, db)

	token := &domain.Token{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: uuid.NewString(),
		Kind:      domain.TokenKindPasswordReset,
		ExpiresAt: time.Now().Add(-time.Minute),
		CreatedAt: time.Now().Add(-time.Hour),
	}
	if err := repo.Create(ctx, token); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := repo.Consume(ctx, token.TokenHash, token.Kind, time.Now()); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("Consume expired token error = %v, want ErrTokenInvalid", err)
	}

	n, err := repo.DeleteExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if n < 1 {
		t.Errorf("DeleteExpired removed %d rows, want >= 1", n)
	}
}

func TestUsersRepository_DuplicateEmail(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db)

	dup := *user
	dup.ID = uuid.New()
	if err := NewUsersRepository(db).Create(ctx, &dup); !errors.Is(err, domain.ErrUserAlreadyExists) {
		t.Errorf("Create duplicate error = %v, want ErrUserAlreadyExists", err)
	}
}

func newTestToken(userID uuid.UUID, kind domain.TokenKind) *domain.Token {
	now := time.Now()
	return &domain.Token{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: uuid.NewString(),
		Kind:      kind,
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
}

func countTokens(t *testing.T, db *sql.DB, userID uuid.UUID, kind domain.TokenKind) int {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM verification_tokens WHERE user_id = $1 AND kind = $2`, userID, kind).Scan(&n)
	if err != nil {
		t.Fatalf("count tokens failed: %v", err)
	}
	return n
}

func TestTokensRepository_ConcurrentIssueKeepsOneToken(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewTokensRepository(db)
	tx := NewTransactor(db)
	user := createTestUser(t, db)

	const issuers = 8
	tokens := make([]*domain.Token, issuers)
	var wg sync.WaitGroup
	for i := range tokens {
		tokens[i] = newTestToken(user.ID, domain.TokenKindPasswordReset)
		wg.Add(1)
		go func(token *domain.Token) {
			defer wg.Done()
			err := tx.InTx(ctx, func(ctx context.Context) error {
				if err := repo.DeleteForUser(ctx, token.UserID, token.Kind); err != nil {
					return err
				}
				return repo.Create(ctx, token)
			})
			if err != nil {
				t.Errorf("issue failed: %v", err)
			}
		}(tokens[i])
	}
	wg.Wait()

	if n := countTokens(t, db, user.ID, domain.TokenKindPasswordReset); n != 1 {
		t.Fatalf("live tokens = %d, want 1", n)
	}

	consumed := 0
	for _, token := range tokens {
		if _, err := repo.Consume(ctx, token.TokenHash, token.Kind, time.Now()); err == nil {
			consumed++
		} else if !errors.Is(err, domain.ErrTokenInvalid) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if consumed != 1 {
		t.Errorf("consumable tokens = %d, want 1", consumed)
	}
}

func TestTokensRepository_CreateReplacesOtherKindsIndependently(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewTokensRepository(db)
	user := createTestUser(t, db)

	first := newTestToken(user.ID, domain.TokenKindPasswordReset)
	second := newTestToken(user.ID, domain.TokenKindPasswordReset)
	verify := newTestToken(user.ID, domain.TokenKindEmailVerification)
	for _, token := range []*domain.Token{first, verify, second} {
		if err := repo.Create(ctx, token); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	if _, err := repo.Consume(ctx, first.TokenHash, first.Kind, time.Now()); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("replaced token error = %v, want ErrTokenInvalid", err)
	}
	if _, err := repo.Consume(ctx, second.TokenHash, second.Kind, time.Now()); err != nil {
		t.Errorf("latest reset token: %v", err)
	}
	if _, err := repo.Consume(ctx, verify.TokenHash, verify.Kind, time.Now()); err != nil {
		t.Errorf("verification token: %v", err)
	}
}

func TestTokensRepository_ConsumeRolledBackRestoresToken(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewTokensRepository(db)
	user := createTestUser(t, db)

	token := newTestToken(user.ID, domain.TokenKindPasswordReset)
	if err := repo.Create(ctx, token); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	errWrite := errors.New("update password failed")
	err := NewTransactor(db).InTx(ctx, func(ctx context.Context) error {
		if _, err := repo.Consume(ctx, token.TokenHash, token.Kind, time.Now()); err != nil {
			return err
		}
		return errWrite
	})
	if !errors.Is(err, errWrite) {
		t.Fatalf("InTx error = %v, want %v", err, errWrite)
	}

	if _, err := repo.Consume(ctx, token.TokenHash, token.Kind, time.Now()); err != nil {
		t.Errorf("token should survive rollback: %v", err)
	}
}
