package request

import "time"

type CreateBookingRequest struct {
	TourID           string  `json:"tour_id" validate:"required,uuid4"`
	ContactName      string  `json:"contact_name" validate:"required,min=2,max=100"`
	ContactEmail     string  `json:"contact_email" validate:"required,email"`
	ParticipantCount int     `json:"participant_count" validate:"required,min=1,max=50"`
	TotalAmount      float64 `json:"total_amount" validate:"required,gt=0"`
}

type PaymentInfoRequest struct {
	Method        string     `json:"method" validate:"required,max=50"`
	PayerName     string     `json:"payer_name" validate:"required,max=100"`
	BankReference string     `json:"bank_reference" validate:"max=100"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
}

type ProcessPaymentRequest struct {
	BookingID   string             `json:"booking_id" validate:"required,uuid"`
	Version     int64              `json:"version" validate:"required,gte=1"`
	PaymentInfo PaymentInfoRequest `json:"payment_info"`
}

type CancelBookingRequest struct {
	Version int64  `json:"version" validate:"required,gte=1"`
	Note    string `json:"note" validate:"max=500"`
}
