package password

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers password reset routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/v1/auth/password/reset-request", h.RequestPasswordReset)
	r.Post("/v1/auth/password/reset", h.ResetPassword)
}
