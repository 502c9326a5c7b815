package wire

import (
	"tour-booking/internal/adaptor"
	"tour-booking/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireAdmin(
	r chi.Router,
	adminHandler *adaptor.AdminBookingHandler,
	notificationHandler *adaptor.NotificationHandler,
	log *zap.Logger,
) {
	// ==================== ADMIN ROUTES ====================
	r.Route("/api/admin", func(r chi.Router) {
		// Require both principal AND admin role
		r.Use(middleware.Principal(log))
		r.Use(middleware.Admin(log))

		r.Route("/bookings/{id}", func(r chi.Router) {
			// GET /api/admin/bookings/{id} - View any booking with history
			r.Get("/", adminHandler.GetBooking)

			// POST /api/admin/bookings/{id}/confirm-payment - Manual payment confirmation
			r.Post("/confirm-payment", adminHandler.ConfirmPayment)

			// POST /api/admin/bookings/{id}/extend-deadline - Extend, or revive an expired booking
			r.Post("/extend-deadline", adminHandler.ExtendDeadline)

			// POST /api/admin/bookings/{id}/cancel - Cancel before or after payment
			r.Post("/cancel", adminHandler.ForceCancel)

			// POST /api/admin/bookings/{id}/refund - Refund a paid booking
			r.Post("/refund", adminHandler.ForceRefund)
		})

		// GET /api/admin/notifications/failed - Dead-lettered notifications, newest first
		r.Get("/notifications/failed", notificationHandler.ListFailed)

		// POST /api/admin/notifications/failed/{id}/resend - Put a dead letter back on the queue
		r.Post("/notifications/failed/{id}/resend", notificationHandler.Resend)

		// GET /api/admin/lifecycle/stats - Engine, sweeper and dispatcher counters
		r.Get("/lifecycle/stats", notificationHandler.LifecycleStats)
	})
}
