package password

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tendant/simple-idm-recovery/internal/auth"
	"github.com/tendant/simple-idm-recovery/internal/http/features/common"
	"github.com/tendant/simple-idm-recovery/internal/httputil"
)

// Recovery runs the password reset flow. *auth.Actions implements it.
type Recovery interface {
	RequestPasswordReset(ctx context.Context, email string) auth.ActionResponse
	CompletePasswordReset(ctx context.Context, token, newPassword string, meta auth.RequestMeta) auth.ActionResponse
}

// Handler handles password reset endpoints.
type Handler struct {
	logger   *slog.Logger
	recovery Recovery
}

// NewHandler creates a new password handler.
func NewHandler(logger *slog.Logger, recovery Recovery) *Handler {
	return &Handler{
		logger:   logger,
		recovery: recovery,
	}
}

// PasswordResetRequestRequest represents a password reset request.
type PasswordResetRequestRequest struct {
	Email string `json:"email"`
}

// PasswordResetRequest represents a password reset.
type PasswordResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// RequestPasswordReset handles password reset requests.
// POST /v1/auth/password/reset-request
//
// The response does not reveal whether the email is registered.
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequestRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	common.WriteAction(w, h.recovery.RequestPasswordReset(r.Context(), req.Email))
}

// ResetPassword handles password resets.
// POST /v1/auth/password/reset
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	resp := h.recovery.CompletePasswordReset(r.Context(), req.Token, req.NewPassword, common.RequestMeta(r))
	if resp.Success {
		h.logger.InfoContext(r.Context(), "password reset via link", "ip", httputil.ClientIP(r))
	}
	common.WriteAction(w, resp)
}
