package adaptor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tour-booking/internal/data/entity"
	"tour-booking/internal/dto/request"
	"tour-booking/internal/dto/response"
	"tour-booking/internal/usecase"
	"tour-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubBookingService struct {
	usecase.BookingService
	err      error
	gotUser  uuid.UUID
	gotPay   *request.ProcessPaymentRequest
	gotCount int
}

func (s *stubBookingService) ProcessPayment(ctx context.Context, userID uuid.UUID, req *request.ProcessPaymentRequest) (*response.BookingDetailResponse, error) {
	s.gotCount++
	s.gotUser, s.gotPay = userID, req
	if s.err != nil {
		return nil, s.err
	}
	return &response.BookingDetailResponse{BookingResponse: response.BookingResponse{ID: req.BookingID, Version: req.Version + 1}}, nil
}

func (s *stubBookingService) CancelBooking(ctx context.Context, userID, bookingID uuid.UUID, req *request.CancelBookingRequest) (*response.BookingDetailResponse, error) {
	s.gotCount++
	s.gotUser = userID
	if s.err != nil {
		return nil, s.err
	}
	return &response.BookingDetailResponse{BookingResponse: response.BookingResponse{ID: bookingID.String()}}, nil
}

func (s *stubBookingService) ConfirmFromGateway(ctx context.Context, req *request.ProcessPaymentRequest) (*entity.Booking, error) {
	s.gotCount++
	s.gotPay = req
	if s.err != nil {
		return nil, s.err
	}
	return &entity.Booking{BaseNoDelete: entity.BaseNoDelete{ID: uuid.MustParse(req.BookingID)}, Version: req.Version + 1}, nil
}

func withUser(r *http.Request, userID uuid.UUID) *http.Request {
	return r.WithContext(utils.SetUserContext(r.Context(), userID, "client"))
}

func TestBookingHandler_ProcessPayment(t *testing.T) {
	bookingID := uuid.New()
	valid := fmt.Sprintf(`{"booking_id":%q,"version":2,"payment_info":{"method":"card","payer_name":"Ayu"}}`, bookingID)

	tests := []struct {
		name   string
		body   string
		err    error
		code   int
		called bool
	}{
		{name: "ok", body: valid, code: http.StatusOK, called: true},
		{name: "malformed json", body: `{"booking_id":`, code: http.StatusBadRequest},
		{name: "missing payer", body: fmt.Sprintf(`{"booking_id":%q,"version":2,"payment_info":{"method":"card"}}`, bookingID), code: http.StatusUnprocessableEntity},
		{name: "zero version", body: fmt.Sprintf(`{"booking_id":%q,"payment_info":{"method":"card","payer_name":"A"}}`, bookingID), code: http.StatusUnprocessableEntity},
		{name: "stale version", body: valid, err: fmt.Errorf("process payment: %w", entity.ErrVersionConflict), code: http.StatusConflict, called: true},
		{name: "store down", body: valid, err: fmt.Errorf("load: %w", entity.ErrStoreUnavailable), code: http.StatusServiceUnavailable, called: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubBookingService{err: tt.err}
			h := NewBookingHandler(svc, zap.NewNop())
			userID := uuid.New()

			req := withUser(httptest.NewRequest(http.MethodPost, "/api/pay", strings.NewReader(tt.body)), userID)
			rec := httptest.NewRecorder()
			h.ProcessPayment(rec, req)

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.called, svc.gotCount == 1)
			if tt.called {
				assert.Equal(t, userID, svc.gotUser)
			}
		})
	}
}

func TestBookingHandler_ProcessPaymentConflictMessage(t *testing.T) {
	svc := &stubBookingService{err: fmt.Errorf("x: %w", entity.ErrVersionConflict)}
	h := NewBookingHandler(svc, zap.NewNop())

	body := fmt.Sprintf(`{"booking_id":%q,"version":1,"payment_info":{"method":"card","payer_name":"A"}}`, uuid.New())
	rec := httptest.NewRecorder()
	h.ProcessPayment(rec, withUser(httptest.NewRequest(http.MethodPost, "/api/pay", strings.NewReader(body)), uuid.New()))

	assert.Equal(t, "This booking was just updated, please refresh", decodeEnvelope(t, rec).Message)
}

func TestBookingHandler_RequiresPrincipal(t *testing.T) {
	h := NewBookingHandler(&stubBookingService{}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.ProcessPayment(rec, httptest.NewRequest(http.MethodPost, "/api/pay", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBookingHandler_CancelBooking(t *testing.T) {
	svc := &stubBookingService{}
	h := NewBookingHandler(svc, zap.NewNop())

	r := chi.NewRouter()
	r.Post("/api/bookings/{id}/cancel", h.CancelBooking)

	userID := uuid.New()
	bookingID := uuid.New()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodPost, "/api/bookings/"+bookingID.String()+"/cancel",
		strings.NewReader(`{"version":1}`)), userID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, svc.gotUser)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodPost, "/api/bookings/not-a-uuid/cancel",
		strings.NewReader(`{"version":1}`)), userID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookingHandler_PaymentWebhook(t *testing.T) {
	svc := &stubBookingService{}
	h := NewBookingHandler(svc, zap.NewNop())
	bookingID := uuid.New()

	body := fmt.Sprintf(`{"booking_id":%q,"version":4,"payment_info":{"method":"qris","payer_name":"Ayu","bank_reference":"GW-9"}}`, bookingID)
	rec := httptest.NewRecorder()
	h.PaymentWebhook(rec, httptest.NewRequest(http.MethodPost, "/api/payments/webhook", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.gotPay)
	assert.Equal(t, "GW-9", svc.gotPay.PaymentInfo.BankReference)

	svc.err = fmt.Errorf("x: %w", entity.ErrAlreadyTerminal)
	rec = httptest.NewRecorder()
	h.PaymentWebhook(rec, httptest.NewRequest(http.MethodPost, "/api/payments/webhook", strings.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
