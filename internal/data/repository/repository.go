package repository

import (
	"tour-booking/pkg/database"

	"go.uber.org/zap"
)

type Repository struct {
	Booking BookingRepository
}

func NewRepository(db database.PgxIface, log *zap.Logger) *Repository {
	return &Repository{
		Booking: NewBookingRepository(db, log),
	}
}

// NewMemoryRepository backs every repository with process memory, for local
// runs without Postgres.
func NewMemoryRepository(log *zap.Logger) *Repository {
	return &Repository{
		Booking: NewMemoryBookingRepository(log),
	}
}
