package account

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tendant/simple-idm-recovery/internal/domain"
	"github.com/tendant/simple-idm-recovery/internal/httputil"
)

// Registrar creates accounts. *auth.AccountService implements it.
type Registrar interface {
	Register(ctx context.Context, email, password, name string) (*domain.User, error)
}

// Handler handles account registration.
type Handler struct {
	logger   *slog.Logger
	accounts Registrar
}

// NewHandler creates a new account handler.
func NewHandler(logger *slog.Logger, accounts Registrar) *Handler {
	return &Handler{logger: logger, accounts: accounts}
}

// RegisterRequest represents a registration request.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// RegisterResponse is returned for a new account.
type RegisterResponse struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
}

// Register handles user registration.
// POST /v1/auth/register
//
// A welcome email with a verification link is sent when mail is configured.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	user, err := h.accounts.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		var ve *domain.ValidationError
		switch {
		case errors.As(err, &ve):
			httputil.Error(w, http.StatusBadRequest, ve.Message)
		case errors.Is(err, domain.ErrUserAlreadyExists):
			httputil.Error(w, http.StatusConflict, "user already exists")
		default:
			h.logger.ErrorContext(r.Context(), "registration failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	httputil.JSON(w, http.StatusCreated, RegisterResponse{
		ID:            user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
	})
}
