package orders

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers order routes. extra mounts sibling routes under /{id}.
func (h *Handler) MountRoutes(r chi.Router, extra ...func(chi.Router)) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Show)
		r.Patch("/", h.Update)
		r.Delete("/", h.Delete)
		r.Post("/status", h.Transition)
		r.Get("/progress", h.Progress)
		for _, mount := range extra {
			mount(r)
		}
	})
}
