package entity

import (
	"fmt"
	"time"
)

type Trigger string

const (
	TriggerConfirmPayment Trigger = "confirm_payment"
	TriggerExpire         Trigger = "expire"
	TriggerCancel         Trigger = "cancel"
	TriggerExtendDeadline Trigger = "extend_deadline"
	TriggerRefund         Trigger = "refund"
	TriggerRevive         Trigger = "revive"
)

func (t Trigger) IsValid() bool {
	switch t {
	case TriggerConfirmPayment, TriggerExpire, TriggerCancel,
		TriggerExtendDeadline, TriggerRefund, TriggerRevive:
		return true
	}
	return false
}

type ActorRole string

const (
	ActorClient ActorRole = "client"
	ActorAdmin  ActorRole = "admin"
	ActorSystem ActorRole = "system"
)

func (r ActorRole) IsValid() bool {
	return r == ActorClient || r == ActorAdmin || r == ActorSystem
}

// Actor identifies who asked for a transition. Authentication already
// happened upstream; the role only selects which edges are available.
type Actor struct {
	ID   string
	Role ActorRole
}

// EdgeKind names an edge for reporting and notification templates.
type EdgeKind string

const (
	EdgePaymentCompleted       EdgeKind = "payment_completed"
	EdgePaymentExpired         EdgeKind = "payment_expired"
	EdgeCancelledBeforePayment EdgeKind = "cancelled_before_payment"
	EdgeDeadlineExtended       EdgeKind = "deadline_extended"
	EdgeRefundCompleted        EdgeKind = "refund_completed"
	EdgeCancelledAfterPayment  EdgeKind = "cancelled_after_payment"
	EdgeRevived                EdgeKind = "revived"
)

// PayloadRequirement describes what a transition request must carry.
type PayloadRequirement int

const (
	PayloadNone PayloadRequirement = iota
	PayloadPaymentInfo
	PayloadNewDueAt
	PayloadDeadlinePassed
)

type Edge struct {
	Kind    EdgeKind
	From    BookingStatus
	To      BookingStatus
	Trigger Trigger
	Payload PayloadRequirement
	Actors  []ActorRole
}

// Permits reports whether role may take this edge.
func (e Edge) Permits(role ActorRole) bool {
	for _, r := range e.Actors {
		if r == role {
			return true
		}
	}
	return false
}

// Edges is the complete set of legal transitions. (From, Trigger) is unique.
var Edges = []Edge{
	{
		Kind:    EdgePaymentCompleted,
		From:    BookingStatusPaymentPending,
		To:      BookingStatusPaymentCompleted,
		Trigger: TriggerConfirmPayment,
		Payload: PayloadPaymentInfo,
		Actors:  []ActorRole{ActorClient, ActorAdmin},
	},
	{
		Kind:    EdgePaymentExpired,
		From:    BookingStatusPaymentPending,
		To:      BookingStatusPaymentExpired,
		Trigger: TriggerExpire,
		Payload: PayloadDeadlinePassed,
		Actors:  []ActorRole{ActorSystem, ActorAdmin},
	},
	{
		Kind:    EdgeCancelledBeforePayment,
		From:    BookingStatusPaymentPending,
		To:      BookingStatusCancelled,
		Trigger: TriggerCancel,
		Payload: PayloadNone,
		Actors:  []ActorRole{ActorClient, ActorAdmin},
	},
	{
		Kind:    EdgeDeadlineExtended,
		From:    BookingStatusPaymentPending,
		To:      BookingStatusPaymentPending,
		Trigger: TriggerExtendDeadline,
		Payload: PayloadNewDueAt,
		Actors:  []ActorRole{ActorAdmin},
	},
	{
		Kind:    EdgeRefundCompleted,
		From:    BookingStatusPaymentCompleted,
		To:      BookingStatusRefundCompleted,
		Trigger: TriggerRefund,
		Payload: PayloadNone,
		Actors:  []ActorRole{ActorAdmin},
	},
	{
		Kind:    EdgeCancelledAfterPayment,
		From:    BookingStatusPaymentCompleted,
		To:      BookingStatusCancelled,
		Trigger: TriggerCancel,
		Payload: PayloadNone,
		Actors:  []ActorRole{ActorAdmin},
	},
	{
		Kind:    EdgeRevived,
		From:    BookingStatusPaymentExpired,
		To:      BookingStatusPaymentPending,
		Trigger: TriggerRevive,
		Payload: PayloadNewDueAt,
		Actors:  []ActorRole{ActorAdmin},
	},
}

var edgeIndex = buildEdgeIndex(Edges)

type edgeKey struct {
	from    BookingStatus
	trigger Trigger
}

func buildEdgeIndex(edges []Edge) map[edgeKey]Edge {
	idx := make(map[edgeKey]Edge, len(edges))
	for _, e := range edges {
		k := edgeKey{from: e.From, trigger: e.Trigger}
		if _, dup := idx[k]; dup {
			panic(fmt.Sprintf("duplicate edge %s --%s-->", e.From, e.Trigger))
		}
		idx[k] = e
	}
	return idx
}

// FindEdge returns the edge leaving from on trigger, if declared.
func FindEdge(from BookingStatus, trigger Trigger) (Edge, bool) {
	e, ok := edgeIndex[edgeKey{from: from, trigger: trigger}]
	return e, ok
}

// FindEdgeBetween returns the edge from -> to taken on trigger, if declared.
func FindEdgeBetween(from, to BookingStatus, trigger Trigger) (Edge, bool) {
	e, ok := FindEdge(from, trigger)
	if !ok || e.To != to {
		return Edge{}, false
	}
	return e, true
}

// ReplayHistory rebuilds the current status from the initial state by
// walking the audit trail, failing on the first entry that is not a
// declared edge or does not continue from the previous status.
func ReplayHistory(history []StatusHistoryEntry) (BookingStatus, error) {
	status := BookingStatusPaymentPending
	for i, h := range history {
		if h.FromStatus != status {
			return "", fmt.Errorf("history entry %d starts at %s, expected %s", i, h.FromStatus, status)
		}
		if _, ok := FindEdgeBetween(h.FromStatus, h.ToStatus, h.Trigger); !ok {
			return "", fmt.Errorf("history entry %d %s --%s--> %s: %w", i, h.FromStatus, h.Trigger, h.ToStatus, ErrInvalidTransition)
		}
		status = h.ToStatus
	}
	return status, nil
}

// TransitionPayload carries the actor and edge-specific data of a
// transition request.
type TransitionPayload struct {
	Actor        Actor
	PaymentInfo  *PaymentInfo
	PaymentDueAt *time.Time
	Note         string
}
