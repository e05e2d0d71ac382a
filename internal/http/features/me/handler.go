package me

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tendant/simple-idm-recovery/internal/domain"
	"github.com/tendant/simple-idm-recovery/internal/http/middleware"
	"github.com/tendant/simple-idm-recovery/internal/httputil"
)

// Profiles loads the signed-in user. *auth.AccountService implements it.
type Profiles interface {
	CurrentUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// Handler handles user profile endpoints.
type Handler struct {
	logger   *slog.Logger
	profiles Profiles
}

// NewHandler creates a new me handler.
func NewHandler(logger *slog.Logger, profiles Profiles) *Handler {
	return &Handler{logger: logger, profiles: profiles}
}

// UserResponse represents the user profile response.
type UserResponse struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	Name          *string   `json:"name,omitempty"`
}

// GetMe returns the current user's profile. The verification state is read
// from storage, so it is current even when the access token predates it.
// GET /v1/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.profiles.CurrentUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			httputil.Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to load user", "error", err, "user_id", userID)
		httputil.Error(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	httputil.JSON(w, http.StatusOK, UserResponse{
		ID:            user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		Name:          user.Name,
	})
}
