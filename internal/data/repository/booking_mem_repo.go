package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tour-booking/internal/data/entity"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// memoryBookingRepository keeps bookings in process memory. One mutex
// covers the compare-and-swap and the history append, which gives the same
// atomicity as the Postgres transaction.
type memoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[uuid.UUID]*entity.Booking
	log      *zap.Logger
}

func NewMemoryBookingRepository(log *zap.Logger) BookingRepository {
	return &memoryBookingRepository{
		bookings: make(map[uuid.UUID]*entity.Booking),
		log:      log.With(zap.String("repository", "booking_memory")),
	}
}

func (r *memoryBookingRepository) Create(ctx context.Context, booking *entity.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bookings[booking.ID]; exists {
		return fmt.Errorf("create booking %s: duplicate id", booking.ID)
	}
	for _, b := range r.bookings {
		if b.OrderID == booking.OrderID {
			return fmt.Errorf("create booking %s: %w", booking.OrderID, entity.ErrDuplicateOrderID)
		}
	}
	r.bookings[booking.ID] = booking.Clone()
	return nil
}

func (r *memoryBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, nil
	}
	return b.Clone(), nil
}

func (r *memoryBookingRepository) FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var owned []*entity.Booking
	for _, b := range r.bookings {
		if b.UserID == userID {
			owned = append(owned, b)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	if offset >= len(owned) {
		return nil, nil
	}
	end := offset + limit
	if end > len(owned) {
		end = len(owned)
	}

	page := make([]*entity.Booking, 0, end-offset)
	for _, b := range owned[offset:end] {
		c := b.Clone()
		c.StatusHistory = nil
		page = append(page, c)
	}
	return page, nil
}

func (r *memoryBookingRepository) CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, b := range r.bookings {
		if b.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *memoryBookingRepository) FindPaymentOverdue(ctx context.Context, now time.Time, limit int) ([]entity.OverdueBooking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var overdue []entity.OverdueBooking
	for _, b := range r.bookings {
		if b.Status != entity.BookingStatusPaymentPending || b.PaymentDueAt == nil {
			continue
		}
		if b.PaymentDueAt.After(now) {
			continue
		}
		overdue = append(overdue, entity.OverdueBooking{
			ID:           b.ID,
			Version:      b.Version,
			PaymentDueAt: *b.PaymentDueAt,
		})
	}
	sort.Slice(overdue, func(i, j int) bool {
		return overdue[i].PaymentDueAt.Before(overdue[j].PaymentDueAt)
	})

	if limit > 0 && len(overdue) > limit {
		overdue = overdue[:limit]
	}
	return overdue, nil
}

func (r *memoryBookingRepository) ApplyTransition(ctx context.Context, rec *entity.TransitionRecord) error {
	if err := ctx.Err(); err != nil {
		return storeErr(fmt.Sprintf("apply transition %s", rec.BookingID), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[rec.BookingID]
	if !ok {
		return fmt.Errorf("apply transition %s: %w", rec.BookingID, entity.ErrBookingNotFound)
	}
	if b.Version != rec.ExpectedVersion {
		return fmt.Errorf("apply transition %s at version %d: %w", rec.BookingID, rec.ExpectedVersion, entity.ErrVersionConflict)
	}

	next := b.Clone()
	next.Status = rec.Status
	next.PaymentDueAt = nil
	if rec.PaymentDueAt != nil {
		due := *rec.PaymentDueAt
		next.PaymentDueAt = &due
	}
	if next.PaymentInfo == nil && rec.PaymentInfo != nil {
		info := *rec.PaymentInfo
		next.PaymentInfo = &info
	}
	next.Version = b.Version + 1
	next.UpdatedAt = rec.UpdatedAt

	entry := rec.Entry
	entry.BookingID = rec.BookingID
	entry.Version = next.Version
	next.StatusHistory = append(next.StatusHistory, entry)

	r.bookings[rec.BookingID] = next
	return nil
}
