package session

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers session routes. Logout routes require authMiddleware.
func (h *Handler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Post("/v1/auth/login", h.Login)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/v1/auth/logout", h.Logout)
		r.Post("/v1/auth/logout/all", h.LogoutAll)
	})
}
