package notify

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"tour-booking/internal/data/entity"
)

type Template struct {
	ID      string
	Subject string
	Body    string
}

var templates = map[entity.EdgeKind]Template{
	entity.EdgePaymentCompleted: {
		ID:      "booking.payment_completed",
		Subject: "Payment received for booking {order_id}",
		Body: "Hi {contact_name},\n\nWe received your {payment_method} payment of {total_amount} for booking {order_id} " +
			"({participant_count} participants). Your tour is confirmed.\n",
	},
	entity.EdgePaymentExpired: {
		ID:      "booking.payment_expired",
		Subject: "Booking {order_id} expired",
		Body: "Hi {contact_name},\n\nThe payment deadline for booking {order_id} passed on {previous_due_at} " +
			"and the booking has expired. Contact us if you still want to travel.\n",
	},
	entity.EdgeCancelledBeforePayment: {
		ID:      "booking.cancelled",
		Subject: "Booking {order_id} cancelled",
		Body:    "Hi {contact_name},\n\nBooking {order_id} has been cancelled. {note}\n",
	},
	entity.EdgeCancelledAfterPayment: {
		ID:      "booking.cancelled_after_payment",
		Subject: "Booking {order_id} cancelled",
		Body: "Hi {contact_name},\n\nBooking {order_id} has been cancelled after payment. " +
			"Our team will contact you about your {total_amount} payment. {note}\n",
	},
	entity.EdgeDeadlineExtended: {
		ID:      "booking.deadline_extended",
		Subject: "More time to pay for booking {order_id}",
		Body:    "Hi {contact_name},\n\nThe payment deadline for booking {order_id} is now {payment_due_at}.\n",
	},
	entity.EdgeRevived: {
		ID:      "booking.revived",
		Subject: "Booking {order_id} reopened",
		Body: "Hi {contact_name},\n\nBooking {order_id} has been reopened. Please pay {total_amount} " +
			"before {payment_due_at}.\n",
	},
	entity.EdgeRefundCompleted: {
		ID:      "booking.refund_completed",
		Subject: "Refund issued for booking {order_id}",
		Body:    "Hi {contact_name},\n\nYour payment of {total_amount} for booking {order_id} has been refunded. {note}\n",
	},
}

// TemplateFor returns the template registered for kind.
func TemplateFor(kind entity.EdgeKind) (Template, bool) {
	t, ok := templates[kind]
	return t, ok
}

var placeholder = regexp.MustCompile(`\{([a-z_]+)\}`)

// Render substitutes {name} tokens. Unknown tokens render empty.
func Render(text string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(text, func(token string) string {
		return vars[token[1:len(token)-1]]
	})
}

const timeLayout = "02 Jan 2006 15:04 MST"

// BuildVariables maps a booking to template variables. Optional fields that
// are absent map to empty strings.
func BuildVariables(b *entity.Booking, kind entity.EdgeKind) map[string]string {
	vars := map[string]string{
		"kind":              string(kind),
		"booking_id":        b.ID.String(),
		"order_id":          b.OrderID,
		"contact_name":      b.ContactName,
		"status":            string(b.Status),
		"total_amount":      fmt.Sprintf("%.2f", b.TotalAmount),
		"participant_count": strconv.Itoa(b.ParticipantCount),
		"payment_due_at":    formatTime(b.PaymentDueAt),
	}
	if vars["contact_name"] == "" {
		vars["contact_name"] = "traveller"
	}

	if b.PaymentInfo != nil {
		vars["payment_method"] = b.PaymentInfo.Method
		vars["payer_name"] = b.PaymentInfo.PayerName
		vars["bank_reference"] = b.PaymentInfo.BankReference
		vars["confirmed_at"] = formatTime(&b.PaymentInfo.ConfirmedAt)
	}

	// The booking may have moved on since kind was committed; describe the
	// newest entry that took this edge, not the newest entry overall.
	if entry, ok := latestEntryFor(b.StatusHistory, kind); ok {
		vars["note"] = entry.Note
		vars["previous_due_at"] = formatTime(entry.PreviousDueAt)
		if entry.NewDueAt != nil {
			vars["payment_due_at"] = formatTime(entry.NewDueAt)
		}
	}

	return vars
}

func latestEntryFor(history []entity.StatusHistoryEntry, kind entity.EdgeKind) (entity.StatusHistoryEntry, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if edge, ok := entity.FindEdgeBetween(h.FromStatus, h.ToStatus, h.Trigger); ok && edge.Kind == kind {
			return h, true
		}
	}
	return entity.StatusHistoryEntry{}, false
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
