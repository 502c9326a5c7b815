package wire

import (
	"tour-booking/internal/adaptor"
	"tour-booking/pkg/middleware"
	"tour-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireBooking(
	r chi.Router,
	bookingHandler *adaptor.BookingHandler,
	config *utils.Config,
	log *zap.Logger,
) {
	// ==================== PROTECTED ROUTES (require principal) ====================
	r.Group(func(r chi.Router) {
		r.Use(middleware.Principal(log))

		// POST /api/bookings - Create new booking, starts the payment window
		r.Post("/api/bookings", bookingHandler.CreateBooking)

		// GET /api/user/bookings - View booking history (user's own bookings)
		r.Get("/api/user/bookings", bookingHandler.GetUserBookings)

		// GET /api/bookings/{id} - Own booking with status history
		r.Get("/api/bookings/{id}", bookingHandler.GetBookingByID)

		// POST /api/bookings/{id}/cancel - Cancel own pending booking
		r.Post("/api/bookings/{id}/cancel", bookingHandler.CancelBooking)

		// POST /api/pay - Confirm payment for booking
		r.Post("/api/pay", bookingHandler.ProcessPayment)
	})

	// ==================== GATEWAY CALLBACK ====================
	r.Group(func(r chi.Router) {
		r.Use(middleware.WebhookKey(config.Security.WebhookKeyHash, log))

		// POST /api/payments/webhook - Payment provider confirms a payment
		r.Post("/api/payments/webhook", bookingHandler.PaymentWebhook)
	})
}
