package request

import "time"

type ConfirmPaymentRequest struct {
	Version     int64              `json:"version" validate:"required,gte=1"`
	PaymentInfo PaymentInfoRequest `json:"payment_info"`
}

type ExtendDeadlineRequest struct {
	Version      int64     `json:"version" validate:"required,gte=1"`
	PaymentDueAt time.Time `json:"payment_due_at" validate:"required"`
}

// AdminActionRequest is the body of the cancel and refund overrides.
type AdminActionRequest struct {
	Version int64  `json:"version" validate:"required,gte=1"`
	Note    string `json:"note" validate:"max=500"`
}
