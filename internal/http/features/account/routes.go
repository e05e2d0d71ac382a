package account

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers account routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/v1/auth/register", h.Register)
}
