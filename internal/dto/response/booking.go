package response

import (
	"time"

	"tour-booking/internal/data/entity"
)

type PaymentInfoResponse struct {
	Method        string    `json:"method"`
	PayerName     string    `json:"payer_name"`
	BankReference string    `json:"bank_reference,omitempty"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

type StatusHistoryResponse struct {
	Version       int64                `json:"version"`
	FromStatus    entity.BookingStatus `json:"from_status"`
	ToStatus      entity.BookingStatus `json:"to_status"`
	Trigger       entity.Trigger       `json:"trigger"`
	Actor         string               `json:"actor"`
	ActorRole     entity.ActorRole     `json:"actor_role"`
	Note          string               `json:"note,omitempty"`
	PreviousDueAt *time.Time           `json:"previous_due_at,omitempty"`
	NewDueAt      *time.Time           `json:"new_due_at,omitempty"`
	At            time.Time            `json:"at"`
}

type BookingResponse struct {
	ID               string               `json:"id"`
	OrderID          string               `json:"order_id"`
	UserID           string               `json:"user_id"`
	TourID           string               `json:"tour_id"`
	ContactName      string               `json:"contact_name"`
	ContactEmail     string               `json:"contact_email"`
	ParticipantCount int                  `json:"participant_count"`
	TotalAmount      float64              `json:"total_amount"`
	Status           entity.BookingStatus `json:"status"`
	PaymentDueAt     *time.Time           `json:"payment_due_at,omitempty"`
	Payment          *PaymentInfoResponse `json:"payment,omitempty"`
	Version          int64                `json:"version"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

type BookingDetailResponse struct {
	BookingResponse
	History []StatusHistoryResponse `json:"history"`
}

// Helper converters
func BookingToResponse(b *entity.Booking) BookingResponse {
	resp := BookingResponse{
		ID:               b.ID.String(),
		OrderID:          b.OrderID,
		UserID:           b.UserID.String(),
		TourID:           b.TourID.String(),
		ContactName:      b.ContactName,
		ContactEmail:     b.ContactEmail,
		ParticipantCount: b.ParticipantCount,
		TotalAmount:      b.TotalAmount,
		Status:           b.Status,
		PaymentDueAt:     b.PaymentDueAt,
		Version:          b.Version,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}

	if b.PaymentInfo != nil {
		resp.Payment = &PaymentInfoResponse{
			Method:        b.PaymentInfo.Method,
			PayerName:     b.PaymentInfo.PayerName,
			BankReference: b.PaymentInfo.BankReference,
			ConfirmedAt:   b.PaymentInfo.ConfirmedAt,
		}
	}

	return resp
}

func BookingToDetailResponse(b *entity.Booking) *BookingDetailResponse {
	history := make([]StatusHistoryResponse, 0, len(b.StatusHistory))
	for _, h := range b.StatusHistory {
		history = append(history, StatusHistoryResponse{
			Version:       h.Version,
			FromStatus:    h.FromStatus,
			ToStatus:      h.ToStatus,
			Trigger:       h.Trigger,
			Actor:         h.Actor,
			ActorRole:     h.ActorRole,
			Note:          h.Note,
			PreviousDueAt: h.PreviousDueAt,
			NewDueAt:      h.NewDueAt,
			At:            h.CreatedAt,
		})
	}

	return &BookingDetailResponse{
		BookingResponse: BookingToResponse(b),
		History:         history,
	}
}
