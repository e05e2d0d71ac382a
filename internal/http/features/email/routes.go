package email

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers email verification routes. The resend route
// requires authMiddleware.
func (h *Handler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Post("/v1/auth/verify-email", h.VerifyEmail)
	r.With(authMiddleware).Post("/v1/auth/resend-verification", h.ResendVerificationEmail)
}
