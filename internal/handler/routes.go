package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Routes builds the router with the global middleware stack. A nil limiter
// disables rate limiting.
func Routes(h *ReservationHandler, logger *slog.Logger, limiter *RateLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(logger))          // structured access log
	r.Use(CORS)
	if limiter != nil {
		r.Use(limiter.Middleware)
	}

	r.Get("/health", HealthCheck)

	r.Get("/books/{id}", h.GetBook)
	r.Get("/users/{id}/loans", h.ListUserLoans)

	r.Route("/reservations", func(r chi.Router) {
		r.Get("/", h.ListReservations)
		r.Post("/", h.CreateReservation)
		r.Put("/", h.TransitionReservation)
		r.Delete("/", h.DeleteReservation)
		r.Post("/overdue-sweep", h.SweepOverdue)
		r.Get("/{id}", h.GetReservation)
		r.Put("/{id}", h.TransitionReservation)
		r.Delete("/{id}", h.DeleteReservation)
	})

	return r
}
