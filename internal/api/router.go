/**
 * @description
 * This file sets up the HTTP router for the roundup-service using the go-chi/chi router.
 * It applies the middleware stack, the identity and rate limit layers, and registers
 * the CRUD routes for every resource in the registry.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sadaqah/roundup-service/internal/domain"
)

// RouterOptions configure the cross-cutting layers of the router.
type RouterOptions struct {
	AllowedOrigins          []string
	WriteRateLimitPerMinute int
	RequestTimeout          time.Duration
}

// NewRouter creates a new Chi router and registers the round-up routes.
func NewRouter(h *Handler, identity IdentityProvider, limiter RateLimiter, opts RouterOptions) *chi.Mux {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/health", h.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.NotFound(notFound)
		r.MethodNotAllowed(methodNotAllowed)

		r.Group(func(r chi.Router) {
			r.Use(IdentityMiddleware(identity))
			r.Use(WriteRateLimitMiddleware(limiter, opts.WriteRateLimitPerMinute, h.logger))

			r.Post("/users/login", h.handleLogin)
			r.Post("/users/logout", h.handleLogout)
			r.Get("/users/me", h.handleMe)
			r.Patch("/users/{id}/my-data", h.handleMyData)

			for _, name := range domain.ResourceNames() {
				r.Get("/"+name, h.list(name))
				r.Post("/"+name, h.create(name))
				r.Get("/"+name+"/{id}", h.get(name))
				r.Patch("/"+name+"/{id}", h.update(name))
				r.Delete("/"+name+"/{id}", h.delete(name))
			}
		})
	})

	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
