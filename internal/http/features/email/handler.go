package email

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tendant/simple-idm-recovery/internal/auth"
	"github.com/tendant/simple-idm-recovery/internal/http/features/common"
	"github.com/tendant/simple-idm-recovery/internal/http/middleware"
	"github.com/tendant/simple-idm-recovery/internal/httputil"
)

// Verification runs the email verification flow. *auth.Actions implements it.
type Verification interface {
	RequestEmailVerification(ctx context.Context, userID uuid.UUID) auth.ActionResponse
	CompleteEmailVerification(ctx context.Context, token string) auth.ActionResponse
}

type Handler struct {
	logger       *slog.Logger
	verification Verification
}

func NewHandler(logger *slog.Logger, verification Verification) *Handler {
	return &Handler{
		logger:       logger,
		verification: verification,
	}
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

// VerifyEmail handles email verification.
// POST /v1/auth/verify-email
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	// Support both query parameter and JSON body
	token := r.URL.Query().Get("token")
	if token == "" && r.ContentLength != 0 {
		var req VerifyEmailRequest
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
		token = req.Token
	}

	common.WriteAction(w, h.verification.CompleteEmailVerification(r.Context(), token))
}

// ResendVerificationEmail sends a fresh verification email.
// POST /v1/auth/resend-verification
// Requires authentication.
func (h *Handler) ResendVerificationEmail(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	resp := h.verification.RequestEmailVerification(r.Context(), userID)
	if resp.Success {
		h.logger.InfoContext(r.Context(), "verification email resent", "user_id", userID)
	}
	common.WriteAction(w, resp)
}
