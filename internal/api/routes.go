package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the public router.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health.HandleHealth)

	projectURL := h.cfg.Forwarding.ProjectURL
	if projectURL == "" {
		projectURL = "https://github.com/haltman-io"
	}
	redirectHome := func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, projectURL, http.StatusFound)
	}
	r.Get("/", redirectHome)

	global := h.globalLimiter()

	r.Group(func(r chi.Router) {
		r.Use(global)
		for _, m := range h.subscribeLimiters() {
			r.Use(m)
		}
		r.Get("/forward/subscribe", h.HandleSubscribe)
	})

	r.Group(func(r chi.Router) {
		r.Use(global)
		for _, m := range h.unsubscribeLimiters() {
			r.Use(m)
		}
		r.Get("/forward/unsubscribe", h.HandleUnsubscribe)
	})

	r.Group(func(r chi.Router) {
		for _, m := range h.confirmLimiters() {
			r.Use(m)
		}
		r.Get("/forward/confirm", h.HandleConfirm)
	})

	r.NotFound(redirectHome)

	return r
}
