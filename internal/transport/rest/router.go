package rest

import (
	"log/slog"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/vehicle-rental/internal/booking"
	"github.com/frahmantamala/vehicle-rental/internal/driver"
	"github.com/frahmantamala/vehicle-rental/internal/payment"
	"github.com/frahmantamala/vehicle-rental/internal/transport/middleware"
	"github.com/frahmantamala/vehicle-rental/internal/transport/swagger"
	"github.com/frahmantamala/vehicle-rental/internal/vehicle"
)

// Handlers groups the HTTP handlers mounted under /api/v1. Nil handlers
// leave their routes unmounted.
type Handlers struct {
	Health  *HealthHandler
	Booking *booking.Handler
	Payment *payment.Handler
	Webhook *payment.WebhookHandler
	Vehicle *vehicle.Handler
	Driver  *driver.Handler
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, logger *slog.Logger) {
	router.Use(middleware.CORS)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	router.Get(swagger.SpecPath, swagger.SpecHandler)
	router.Handle("/swagger/*", swagger.Handler())

	// paths in api/openapi3.yml are relative to this prefix
	router.Route("/api/v1", func(r chi.Router) {
		if h.Health != nil {
			r.Get("/health", h.Health.healthCheckHandler)
			r.Get("/ping", h.Health.pingHandler)
		}

		if h.Webhook != nil {
			r.Post("/payment/callback", h.Webhook.HandlePaymentCallback)
		}

		if h.Vehicle != nil {
			r.Route("/vehicles", func(vr chi.Router) {
				vr.Post("/", h.Vehicle.CreateVehicle)
				vr.Get("/", h.Vehicle.ListVehicles)
				vr.Get("/{id}", h.Vehicle.GetVehicle)
				if h.Booking != nil {
					vr.Get("/{id}/availability", h.Booking.CheckAvailability)
				}
			})
		}

		if h.Driver != nil {
			r.Route("/drivers", func(dr chi.Router) {
				dr.Post("/", h.Driver.CreateDriver)
				dr.Get("/", h.Driver.ListDrivers)
				dr.Put("/{id}/status", h.Driver.SetStatus)
			})
		}

		if h.Booking != nil {
			r.Route("/bookings", func(br chi.Router) {
				br.Post("/", h.Booking.CreateBooking)
				br.Get("/", h.Booking.ListBookings)
				br.Post("/quote", h.Booking.QuoteBooking)
				br.Get("/number/{number}", h.Booking.GetBookingByNumber)
				br.Get("/{id}", h.Booking.GetBooking)
				br.Post("/{id}/confirm", h.Booking.ConfirmBooking)
				br.Post("/{id}/start", h.Booking.StartTrip)
				br.Post("/{id}/complete", h.Booking.CompleteTrip)
				br.Post("/{id}/cancel", h.Booking.CancelBooking)
				br.Post("/{id}/no-show", h.Booking.MarkNoShow)
				br.Put("/{id}/driver", h.Booking.AssignDriver)

				if h.Payment != nil {
					br.Post("/{id}/payments", h.Payment.Charge)
					br.Get("/{id}/payments", h.Payment.GetBookingLedger)
				}
			})
		}

		if h.Payment != nil {
			r.Route("/payments", func(pr chi.Router) {
				pr.Get("/{id}", h.Payment.GetPayment)
				pr.Post("/{id}/refunds", h.Payment.Refund)
			})
		}
	})
}
