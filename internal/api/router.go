/**
 * @description
 * This file sets up the HTTP router for the esign-service. It defines the two
 * POST endpoints, the health check, standard middleware, and the CORS policy
 * for the public web form that embeds the signing flow.
 *
 * chi answers non-POST methods on the defined routes with 405 automatically,
 * so no handler is ever invoked (and no provider call made) for a bad method.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: HTTP routing and standard middleware.
 * - github.com/go-chi/cors: CORS preflight handling for the configured origin.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes creates the router for the esign-service. allowedOrigin is the single
// origin permitted to call the initiator endpoint from a browser; empty
// disables cross-origin access entirely.
func Routes(h *Handlers, allowedOrigin string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if allowedOrigin != "" {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{allowedOrigin},
			AllowedMethods: []string{"POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/signing-sessions", h.CreateSigningSession)
		r.Post("/esign-events", h.HandleEsignEvent)
	})

	return r
}
