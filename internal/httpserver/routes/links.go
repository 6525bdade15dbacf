package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/linkvault/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/mw"
)

func init() { Register(registerLinks) }

func registerLinks(r chi.Router, d deps.Deps) {
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := d.WriteLimit
	limit.TrustProxy = d.TrustProxy

	r.Group(func(r chi.Router) {
		r.Use(mw.EnforceHost(d.AllowedHosts, d.Logger))
		r.Use(mw.Identity(d.JWTSecret, d.Logger))

		// The live endpoint outlives any request timeout.
		r.Get("/api/links/live", handlers.Live(d))

		r.With(middleware.Timeout(timeout)).Get("/api/links", handlers.ListLinks(d))
		r.With(middleware.Timeout(timeout), mw.RateLimit(limit)).Post("/api/links", handlers.CreateLink(d))
		r.With(middleware.Timeout(timeout)).Delete("/api/links/{id}", handlers.DeleteLink(d))
	})
}
