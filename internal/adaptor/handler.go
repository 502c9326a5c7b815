package adaptor

import (
	"tour-booking/internal/usecase"

	"go.uber.org/zap"
)

type Handler struct {
	Booking      *BookingHandler
	AdminBooking *AdminBookingHandler
	Notification *NotificationHandler
}

func NewHandler(service *usecase.Service, queue DeadLetterQueue, sweeper SweeperMonitor, log *zap.Logger) *Handler {
	return &Handler{
		Booking:      NewBookingHandler(service.Booking, log),
		AdminBooking: NewAdminBookingHandler(service.AdminBooking, log),
		Notification: NewNotificationHandler(queue, sweeper, service.Lifecycle, log),
	}
}
