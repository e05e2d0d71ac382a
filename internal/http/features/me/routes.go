package me

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers profile routes behind authMiddleware.
func (h *Handler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.With(authMiddleware).Get("/v1/me", h.GetMe)
}
