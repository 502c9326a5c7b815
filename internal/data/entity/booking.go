package entity

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPaymentPending   BookingStatus = "payment_pending"
	BookingStatusPaymentCompleted BookingStatus = "payment_completed"
	BookingStatusPaymentExpired   BookingStatus = "payment_expired"
	BookingStatusCancelled        BookingStatus = "cancelled"
	BookingStatusRefundCompleted  BookingStatus = "refund_completed"
)

// IsValid reports whether s is one of the declared booking states.
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPaymentPending,
		BookingStatusPaymentCompleted,
		BookingStatusPaymentExpired,
		BookingStatusCancelled,
		BookingStatusRefundCompleted:
		return true
	}
	return false
}

// IsTerminal reports whether no edge leaves s.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusRefundCompleted
}

type PaymentInfo struct {
	Method        string    `db:"payment_method" json:"method"`
	PayerName     string    `db:"payer_name" json:"payer_name"`
	BankReference string    `db:"bank_reference" json:"bank_reference,omitempty"`
	ConfirmedAt   time.Time `db:"payment_confirmed_at" json:"confirmed_at"`
}

type Booking struct {
	BaseNoDelete
	OrderID          string        `db:"order_id"`
	UserID           uuid.UUID     `db:"user_id"`
	TourID           uuid.UUID     `db:"tour_id"`
	ContactName      string        `db:"contact_name"`
	ContactEmail     string        `db:"contact_email"`
	TotalAmount      float64       `db:"total_amount"`
	ParticipantCount int           `db:"participant_count"`
	Status           BookingStatus `db:"status"`
	PaymentDueAt     *time.Time    `db:"payment_due_at"`
	PaymentInfo      *PaymentInfo
	StatusHistory    []StatusHistoryEntry
	Version          int64 `db:"version"`
}

// StatusHistoryEntry is one row of the append-only audit trail. PreviousDueAt
// and NewDueAt keep every deadline that was ever in force.
type StatusHistoryEntry struct {
	BaseSimple
	BookingID     uuid.UUID     `db:"booking_id"`
	Version       int64         `db:"version"`
	FromStatus    BookingStatus `db:"from_status"`
	ToStatus      BookingStatus `db:"to_status"`
	Trigger       Trigger       `db:"trigger"`
	Actor         string        `db:"actor"`
	ActorRole     ActorRole     `db:"actor_role"`
	Note          string        `db:"note"`
	PreviousDueAt *time.Time    `db:"previous_due_at"`
	NewDueAt      *time.Time    `db:"new_due_at"`
}

// Clone returns a deep copy so callers can never alias stored state.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	if b.PaymentDueAt != nil {
		due := *b.PaymentDueAt
		c.PaymentDueAt = &due
	}
	if b.PaymentInfo != nil {
		info := *b.PaymentInfo
		c.PaymentInfo = &info
	}
	c.StatusHistory = make([]StatusHistoryEntry, len(b.StatusHistory))
	copy(c.StatusHistory, b.StatusHistory)
	return &c
}

// OverdueBooking is a sweep candidate: the id together with the version read
// in the same query.
type OverdueBooking struct {
	ID           uuid.UUID `db:"id"`
	Version      int64     `db:"version"`
	PaymentDueAt time.Time `db:"payment_due_at"`
}

// TransitionRecord is everything the store needs to commit one transition as
// a single compare-and-swap plus history append.
type TransitionRecord struct {
	BookingID       uuid.UUID
	ExpectedVersion int64
	Status          BookingStatus
	PaymentDueAt    *time.Time
	PaymentInfo     *PaymentInfo
	UpdatedAt       time.Time
	Entry           StatusHistoryEntry
}
