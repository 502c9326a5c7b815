package usecase

import (
	"tour-booking/internal/data/repository"
	"tour-booking/pkg/utils"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type Service struct {
	Lifecycle    LifecycleService
	Booking      BookingService
	AdminBooking AdminBookingService
}

func NewService(repo *repository.Repository, notifier Notifier, clock clockwork.Clock, config *utils.Config, log *zap.Logger) *Service {
	lifecycle := NewLifecycleService(repo, notifier, clock, config.Lifecycle, log)

	return &Service{
		Lifecycle:    lifecycle,
		Booking:      NewBookingService(repo, lifecycle, clock, config.Lifecycle, log),
		AdminBooking: NewAdminBookingService(lifecycle, clock, log),
	}
}
