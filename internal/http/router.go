package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"github.com/robertarktes/event-ticketing/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/payments/callback", h.PaymentCallback)
		r.Get("/healthz", h.Healthz)
		r.Get("/readyz", h.Readyz)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware)
			r.Use(RateLimitMiddleware(rl))

			r.With(RequireIdempotencyKey).Post("/checkout", h.Checkout)
			r.Get("/payments/{id}", h.GetPayment)
			r.Post("/payments/{id}/approve", h.ApprovePayment)
			r.Post("/payments/{id}/refund", h.RefundPayment)
			r.Post("/checkin", h.CheckIn)
			r.Get("/tickets/{code}", h.GetTicket)
			r.Post("/tickets/{code}/transfer", h.Transfer)
			r.Get("/ticket-types/{id}/availability", h.Availability)
			r.Get("/events/{id}", h.GetEvent)
			r.Post("/events/{id}/cancel", h.CancelEvent)
		})
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
