package adaptor

import (
	"net/http"

	"tour-booking/internal/data/entity"
	"tour-booking/internal/dto/request"
	"tour-booking/internal/dto/response"
	"tour-booking/internal/usecase"
	"tour-booking/pkg/utils"

	"go.uber.org/zap"
)

// AdminBookingHandler exposes the back-office overrides. Every route expects
// the Admin middleware in front of it.
type AdminBookingHandler struct {
	service usecase.AdminBookingService
	log     *zap.Logger
}

func NewAdminBookingHandler(service usecase.AdminBookingService, log *zap.Logger) *AdminBookingHandler {
	return &AdminBookingHandler{
		service: service,
		log:     log.With(zap.String("handler", "admin_booking")),
	}
}

// GetBooking handles GET /api/admin/bookings/{id}
func (h *AdminBookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := bookingIDParam(w, r)
	if !ok {
		return
	}

	booking, err := h.service.GetBooking(r.Context(), bookingID)
	if err != nil {
		h.handleServiceError(w, err, "admin get booking")
		return
	}

	utils.ResponseSuccess(w, "success", response.BookingToDetailResponse(booking))
}

// ConfirmPayment handles POST /api/admin/bookings/{id}/confirm-payment
func (h *AdminBookingHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := adminActor(w, r)
	if !ok {
		return
	}

	bookingID, ok := bookingIDParam(w, r)
	if !ok {
		return
	}

	var req request.ConfirmPaymentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	info := usecase.PaymentInfoFromRequest(req.PaymentInfo)
	booking, err := h.service.ConfirmPayment(r.Context(), bookingID, req.Version, *info, actor)
	if err != nil {
		h.handleServiceError(w, err, "admin confirm payment")
		return
	}

	utils.ResponseSuccess(w, "Payment confirmed", response.BookingToDetailResponse(booking))
}

// ExtendDeadline handles POST /api/admin/bookings/{id}/extend-deadline.
// An expired booking is revived with the new deadline.
func (h *AdminBookingHandler) ExtendDeadline(w http.ResponseWriter, r *http.Request) {
	actor, ok := adminActor(w, r)
	if !ok {
		return
	}

	bookingID, ok := bookingIDParam(w, r)
	if !ok {
		return
	}

	var req request.ExtendDeadlineRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	booking, err := h.service.ExtendDeadline(r.Context(), bookingID, req.Version, req.PaymentDueAt, actor)
	if err != nil {
		h.handleServiceError(w, err, "admin extend deadline")
		return
	}

	utils.ResponseSuccess(w, "Payment deadline updated", response.BookingToDetailResponse(booking))
}

// ForceCancel handles POST /api/admin/bookings/{id}/cancel
func (h *AdminBookingHandler) ForceCancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := adminActor(w, r)
	if !ok {
		return
	}

	bookingID, ok := bookingIDParam(w, r)
	if !ok {
		return
	}

	var req request.AdminActionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	booking, err := h.service.ForceCancel(r.Context(), bookingID, req.Version, req.Note, actor)
	if err != nil {
		h.handleServiceError(w, err, "admin cancel booking")
		return
	}

	utils.ResponseSuccess(w, "Booking cancelled", response.BookingToDetailResponse(booking))
}

// ForceRefund handles POST /api/admin/bookings/{id}/refund
func (h *AdminBookingHandler) ForceRefund(w http.ResponseWriter, r *http.Request) {
	actor, ok := adminActor(w, r)
	if !ok {
		return
	}

	bookingID, ok := bookingIDParam(w, r)
	if !ok {
		return
	}

	var req request.AdminActionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	booking, err := h.service.ForceRefund(r.Context(), bookingID, req.Version, req.Note, actor)
	if err != nil {
		h.handleServiceError(w, err, "admin refund booking")
		return
	}

	utils.ResponseSuccess(w, "Booking refunded", response.BookingToDetailResponse(booking))
}

func (h *AdminBookingHandler) handleServiceError(w http.ResponseWriter, err error, operation string) {
	respondServiceError(w, h.log, err, operation)
}

func adminActor(w http.ResponseWriter, r *http.Request) (entity.Actor, bool) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return entity.Actor{}, false
	}
	return entity.Actor{ID: userID.String(), Role: entity.ActorAdmin}, true
}
