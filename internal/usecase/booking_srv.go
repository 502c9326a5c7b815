package usecase

import (
	"context"
	"errors"
	"fmt"

	"tour-booking/internal/data/entity"
	"tour-booking/internal/data/repository"
	"tour-booking/internal/dto/request"
	"tour-booking/internal/dto/response"
	"tour-booking/pkg/utils"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// GatewayActorID marks transitions driven by the payment provider callback.
const GatewayActorID = "payment-gateway"

type BookingService interface {
	// Client endpoints
	CreateBooking(ctx context.Context, userID uuid.UUID, req *request.CreateBookingRequest) (*response.BookingResponse, error)
	GetUserBookings(ctx context.Context, userID uuid.UUID, req *request.PaginatedRequest) (*response.PaginatedResponse[response.BookingResponse], error)
	GetBookingByID(ctx context.Context, userID, bookingID uuid.UUID) (*response.BookingDetailResponse, error)
	CancelBooking(ctx context.Context, userID, bookingID uuid.UUID, req *request.CancelBookingRequest) (*response.BookingDetailResponse, error)

	// Payment
	ProcessPayment(ctx context.Context, userID uuid.UUID, req *request.ProcessPaymentRequest) (*response.BookingDetailResponse, error)
	ConfirmFromGateway(ctx context.Context, req *request.ProcessPaymentRequest) (*entity.Booking, error)
}

// Order IDs are unique per second only up to a random suffix.
const maxOrderIDAttempts = 5

type bookingService struct {
	repo      *repository.Repository
	lifecycle LifecycleService
	clock     clockwork.Clock
	config    utils.LifecycleConfig
	log       *zap.Logger
}

func NewBookingService(repo *repository.Repository, lifecycle LifecycleService, clock clockwork.Clock, config utils.LifecycleConfig, log *zap.Logger) BookingService {
	return &bookingService{
		repo:      repo,
		lifecycle: lifecycle,
		clock:     clock,
		config:    config,
		log:       log.With(zap.String("service", "booking")),
	}
}

func (s *bookingService) CreateBooking(ctx context.Context, userID uuid.UUID, req *request.CreateBookingRequest) (*response.BookingResponse, error) {
	// Validate request
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Create booking validation failed", zap.Any("errors", errs))
		return nil, fmt.Errorf("%w: %s", entity.ErrValidation, utils.FormatValidationErrors(errs))
	}

	tourID, err := utils.ParseUUID(req.TourID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tour ID format %s", entity.ErrValidation, req.TourID)
	}

	now := s.clock.Now()
	due := now.Add(s.config.PaymentWindow)

	booking := &entity.Booking{
		BaseNoDelete: entity.BaseNoDelete{
			ID:        utils.GenerateUUID(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		OrderID:          utils.GenerateOrderID(now),
		UserID:           userID,
		TourID:           tourID,
		ContactName:      req.ContactName,
		ContactEmail:     req.ContactEmail,
		TotalAmount:      req.TotalAmount,
		ParticipantCount: req.ParticipantCount,
		Status:           entity.BookingStatusPaymentPending,
		PaymentDueAt:     &due,
		Version:          1,
	}

	err = s.repo.Booking.Create(ctx, booking)
	for attempt := 1; errors.Is(err, entity.ErrDuplicateOrderID) && attempt < maxOrderIDAttempts; attempt++ {
		booking.OrderID = utils.GenerateOrderID(now)
		err = s.repo.Booking.Create(ctx, booking)
	}
	if err != nil {
		s.log.Error("Failed to create booking",
			zap.Error(err),
			zap.String("user_id", userID.String()),
			zap.String("tour_id", req.TourID),
		)
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.log.Info("Booking created",
		zap.String("booking_id", booking.ID.String()),
		zap.String("order_id", booking.OrderID),
		zap.String("user_id", userID.String()),
		zap.Int("participant_count", booking.ParticipantCount),
		zap.Time("payment_due_at", due),
	)

	resp := response.BookingToResponse(booking)
	return &resp, nil
}

func (s *bookingService) GetUserBookings(ctx context.Context, userID uuid.UUID, req *request.PaginatedRequest) (*response.PaginatedResponse[response.BookingResponse], error) {
	limit := req.Limit()
	offset := req.Offset()

	bookings, err := s.repo.Booking.FindByUserID(ctx, userID, limit, offset)
	if err != nil {
		s.log.Error("Failed to get user bookings",
			zap.Error(err),
			zap.String("user_id", userID.String()),
			zap.Int("page", req.CurrentPage()),
			zap.Int("per_page", limit),
		)
		return nil, fmt.Errorf("get user bookings: %w", err)
	}

	total, err := s.repo.Booking.CountByUserID(ctx, userID)
	if err != nil {
		s.log.Error("Failed to count user bookings", zap.Error(err))
		return nil, fmt.Errorf("count user bookings: %w", err)
	}

	bookingResponses := make([]response.BookingResponse, len(bookings))
	for i, booking := range bookings {
		bookingResponses[i] = response.BookingToResponse(booking)
	}

	s.log.Info("User bookings retrieved",
		zap.String("user_id", userID.String()),
		zap.Int("count", len(bookings)),
		zap.Int64("total", total),
	)

	return response.NewPaginatedResponse(bookingResponses, req.CurrentPage(), limit, total), nil
}

func (s *bookingService) GetBookingByID(ctx context.Context, userID, bookingID uuid.UUID) (*response.BookingDetailResponse, error) {
	booking, err := s.ownedBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	return response.BookingToDetailResponse(booking), nil
}

func (s *bookingService) CancelBooking(ctx context.Context, userID, bookingID uuid.UUID, req *request.CancelBookingRequest) (*response.BookingDetailResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", entity.ErrValidation, utils.FormatValidationErrors(errs))
	}

	if _, err := s.ownedBooking(ctx, userID, bookingID); err != nil {
		return nil, err
	}

	booking, err := s.lifecycle.RequestTransition(ctx, bookingID, req.Version, entity.TriggerCancel, entity.TransitionPayload{
		Actor: entity.Actor{ID: userID.String(), Role: entity.ActorClient},
		Note:  req.Note,
	})
	if err != nil {
		return nil, fmt.Errorf("cancel booking: %w", err)
	}

	return response.BookingToDetailResponse(booking), nil
}

// ProcessPayment records the client's own payment confirmation.
func (s *bookingService) ProcessPayment(ctx context.Context, userID uuid.UUID, req *request.ProcessPaymentRequest) (*response.BookingDetailResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Process payment validation failed", zap.Any("errors", errs))
		return nil, fmt.Errorf("%w: %s", entity.ErrValidation, utils.FormatValidationErrors(errs))
	}

	bookingID, err := utils.ParseUUID(req.BookingID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid booking ID format %s", entity.ErrValidation, req.BookingID)
	}

	if _, err := s.ownedBooking(ctx, userID, bookingID); err != nil {
		return nil, err
	}

	booking, err := s.confirm(ctx, bookingID, req, entity.Actor{ID: userID.String(), Role: entity.ActorClient})
	if err != nil {
		return nil, err
	}

	return response.BookingToDetailResponse(booking), nil
}

// ConfirmFromGateway applies a payment signal from the gateway webhook or the
// payment.paid queue. Ownership is implied by the gateway.
func (s *bookingService) ConfirmFromGateway(ctx context.Context, req *request.ProcessPaymentRequest) (*entity.Booking, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", entity.ErrValidation, utils.FormatValidationErrors(errs))
	}

	bookingID, err := utils.ParseUUID(req.BookingID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid booking ID format %s", entity.ErrValidation, req.BookingID)
	}

	return s.confirm(ctx, bookingID, req, entity.Actor{ID: GatewayActorID, Role: entity.ActorClient})
}

func (s *bookingService) confirm(ctx context.Context, bookingID uuid.UUID, req *request.ProcessPaymentRequest, actor entity.Actor) (*entity.Booking, error) {
	booking, err := s.lifecycle.RequestTransition(ctx, bookingID, req.Version, entity.TriggerConfirmPayment, entity.TransitionPayload{
		Actor:       actor,
		PaymentInfo: PaymentInfoFromRequest(req.PaymentInfo),
	})
	if err != nil {
		return nil, fmt.Errorf("process payment: %w", err)
	}

	s.log.Info("Payment processed",
		zap.String("booking_id", bookingID.String()),
		zap.String("actor", actor.ID),
		zap.String("method", req.PaymentInfo.Method),
	)
	return booking, nil
}

func (s *bookingService) ownedBooking(ctx context.Context, userID, bookingID uuid.UUID) (*entity.Booking, error) {
	booking, err := s.lifecycle.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		s.log.Warn("Booking accessed by non-owner",
			zap.String("booking_id", bookingID.String()),
			zap.String("user_id", userID.String()),
		)
		return nil, fmt.Errorf("booking %s: %w", bookingID, entity.ErrUnauthorized)
	}
	return booking, nil
}

// PaymentInfoFromRequest maps the wire shape; a missing confirmation time is
// filled in by the lifecycle engine.
func PaymentInfoFromRequest(req request.PaymentInfoRequest) *entity.PaymentInfo {
	info := &entity.PaymentInfo{
		Method:        req.Method,
		PayerName:     req.PayerName,
		BankReference: req.BankReference,
	}
	if req.ConfirmedAt != nil {
		info.ConfirmedAt = *req.ConfirmedAt
	}
	return info
}
