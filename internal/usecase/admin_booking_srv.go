package usecase

import (
	"context"
	"fmt"
	"time"

	"tour-booking/internal/data/entity"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// AdminBookingService holds the back-office overrides. It never touches the
// store; every mutation is a lifecycle transition.
type AdminBookingService interface {
	GetBooking(ctx context.Context, bookingID uuid.UUID) (*entity.Booking, error)
	ConfirmPayment(ctx context.Context, bookingID uuid.UUID, version int64, info entity.PaymentInfo, actor entity.Actor) (*entity.Booking, error)
	ExtendDeadline(ctx context.Context, bookingID uuid.UUID, version int64, newDueAt time.Time, actor entity.Actor) (*entity.Booking, error)
	ForceCancel(ctx context.Context, bookingID uuid.UUID, version int64, note string, actor entity.Actor) (*entity.Booking, error)
	ForceRefund(ctx context.Context, bookingID uuid.UUID, version int64, note string, actor entity.Actor) (*entity.Booking, error)
}

type adminBookingService struct {
	lifecycle LifecycleService
	clock     clockwork.Clock
	log       *zap.Logger
}

func NewAdminBookingService(lifecycle LifecycleService, clock clockwork.Clock, log *zap.Logger) AdminBookingService {
	return &adminBookingService{
		lifecycle: lifecycle,
		clock:     clock,
		log:       log.With(zap.String("service", "admin_booking")),
	}
}

func (s *adminBookingService) GetBooking(ctx context.Context, bookingID uuid.UUID) (*entity.Booking, error) {
	return s.lifecycle.GetBooking(ctx, bookingID)
}

func (s *adminBookingService) ConfirmPayment(ctx context.Context, bookingID uuid.UUID, version int64, info entity.PaymentInfo, actor entity.Actor) (*entity.Booking, error) {
	actor.Role = entity.ActorAdmin

	booking, err := s.lifecycle.RequestTransition(ctx, bookingID, version, entity.TriggerConfirmPayment, entity.TransitionPayload{
		Actor:       actor,
		PaymentInfo: &info,
		Note:        "payment confirmed manually",
	})
	if err != nil {
		return nil, fmt.Errorf("confirm payment: %w", err)
	}

	s.log.Info("Payment confirmed by admin",
		zap.String("booking_id", bookingID.String()),
		zap.String("admin_id", actor.ID),
	)
	return booking, nil
}

// ExtendDeadline moves the payment deadline of a pending booking, or revives
// an expired one with a fresh deadline.
func (s *adminBookingService) ExtendDeadline(ctx context.Context, bookingID uuid.UUID, version int64, newDueAt time.Time, actor entity.Actor) (*entity.Booking, error) {
	actor.Role = entity.ActorAdmin

	if !newDueAt.After(s.clock.Now()) {
		return nil, fmt.Errorf("extend deadline: %w: new payment deadline must be in the future", entity.ErrValidation)
	}

	current, err := s.lifecycle.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("extend deadline: %w", err)
	}

	trigger := entity.TriggerExtendDeadline
	note := "payment deadline extended"
	if current.Status == entity.BookingStatusPaymentExpired {
		trigger = entity.TriggerRevive
		note = "expired booking revived"
	}

	booking, err := s.lifecycle.RequestTransition(ctx, bookingID, version, trigger, entity.TransitionPayload{
		Actor:        actor,
		PaymentDueAt: &newDueAt,
		Note:         note,
	})
	if err != nil {
		return nil, fmt.Errorf("extend deadline: %w", err)
	}

	s.log.Info("Payment deadline set by admin",
		zap.String("booking_id", bookingID.String()),
		zap.String("admin_id", actor.ID),
		zap.String("trigger", string(trigger)),
		zap.Time("payment_due_at", newDueAt),
	)
	return booking, nil
}

func (s *adminBookingService) ForceCancel(ctx context.Context, bookingID uuid.UUID, version int64, note string, actor entity.Actor) (*entity.Booking, error) {
	actor.Role = entity.ActorAdmin

	booking, err := s.lifecycle.RequestTransition(ctx, bookingID, version, entity.TriggerCancel, entity.TransitionPayload{
		Actor: actor,
		Note:  note,
	})
	if err != nil {
		return nil, fmt.Errorf("force cancel: %w", err)
	}

	s.log.Info("Booking cancelled by admin",
		zap.String("booking_id", bookingID.String()),
		zap.String("admin_id", actor.ID),
	)
	return booking, nil
}

func (s *adminBookingService) ForceRefund(ctx context.Context, bookingID uuid.UUID, version int64, note string, actor entity.Actor) (*entity.Booking, error) {
	actor.Role = entity.ActorAdmin

	booking, err := s.lifecycle.RequestTransition(ctx, bookingID, version, entity.TriggerRefund, entity.TransitionPayload{
		Actor: actor,
		Note:  note,
	})
	if err != nil {
		return nil, fmt.Errorf("force refund: %w", err)
	}

	s.log.Info("Booking refunded by admin",
		zap.String("booking_id", bookingID.String()),
		zap.String("admin_id", actor.ID),
	)
	return booking, nil
}
