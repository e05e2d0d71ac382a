package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-idm-recovery/internal/auth"
	"github.com/tendant/simple-idm-recovery/internal/domain"
	"github.com/tendant/simple-idm-recovery/internal/http/features/common"
	"github.com/tendant/simple-idm-recovery/internal/http/middleware"
	"github.com/tendant/simple-idm-recovery/internal/httputil"
)

// Authenticator checks email and password credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
}

// Sessions creates and revokes login sessions.
type Sessions interface {
	CreateSession(ctx context.Context, user *domain.User, meta auth.RequestMeta) (*auth.IssuedSession, error)
	SignOut(ctx context.Context, sessionID uuid.UUID) error
	RevokeAll(ctx context.Context, userID uuid.UUID) error
}

// Handler handles session endpoints.
type Handler struct {
	logger       *slog.Logger
	accounts     Authenticator
	sessions     Sessions
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a new session handler.
func NewHandler(logger *slog.Logger, accounts Authenticator, sessions Sessions, cookieConfig httputil.CookieConfig) *Handler {
	return &Handler{
		logger:       logger,
		accounts:     accounts,
		sessions:     sessions,
		cookieConfig: cookieConfig,
	}
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse represents a token response.
type TokenResponse struct {
	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// MessageResponse represents a simple message response.
type MessageResponse struct {
	Message string `json:"message"`
}

// Login handles password login.
// POST /v1/auth/login
//
// For web clients: Sets an HttpOnly cookie, returns minimal response.
// For mobile clients (X-Client-Type: mobile): Returns the token in the body.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			httputil.Error(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		h.logger.ErrorContext(r.Context(), "authentication failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "authentication failed")
		return
	}

	issued, err := h.sessions.CreateSession(r.Context(), user, common.RequestMeta(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to issue session", "error", err, "user_id", user.ID)
		httputil.Error(w, http.StatusInternalServerError, "failed to issue session")
		return
	}

	h.writeTokenResponse(w, r, issued)
}

// writeTokenResponse writes the access token as a cookie (web) or JSON (mobile).
func (h *Handler) writeTokenResponse(w http.ResponseWriter, r *http.Request, issued *auth.IssuedSession) {
	if httputil.IsMobileClient(r) {
		httputil.JSON(w, http.StatusOK, TokenResponse{
			AccessToken: issued.AccessToken,
			TokenType:   issued.TokenType,
			ExpiresIn:   issued.ExpiresIn,
		})
		return
	}

	httputil.SetAuthCookie(w, issued.AccessToken, time.Duration(issued.ExpiresIn)*time.Second, h.cookieConfig)
	httputil.JSON(w, http.StatusOK, TokenResponse{
		TokenType: issued.TokenType,
		ExpiresIn: issued.ExpiresIn,
	})
}

// Logout revokes the current session.
// POST /v1/auth/logout
// Requires authentication.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.sessions.SignOut(r.Context(), sessionID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		h.logger.ErrorContext(r.Context(), "failed to revoke session", "error", err, "session_id", sessionID)
		httputil.Error(w, http.StatusInternalServerError, "logout failed")
		return
	}

	httputil.ClearAuthCookie(w, h.cookieConfig)
	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "Logged out"})
}

// LogoutAll revokes every session of the current user.
// POST /v1/auth/logout/all
// Requires authentication.
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.sessions.RevokeAll(r.Context(), userID); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to revoke sessions", "error", err, "user_id", userID)
		httputil.Error(w, http.StatusInternalServerError, "logout failed")
		return
	}

	httputil.ClearAuthCookie(w, h.cookieConfig)
	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "Logged out of all sessions"})
}
