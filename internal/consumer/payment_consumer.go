package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"tour-booking/internal/data/entity"
	"tour-booking/internal/dto/request"
	"tour-booking/internal/usecase"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const PaymentPaidKey = "payment.paid"

// DeliverySource is the consuming side of pkg/mq.
type DeliverySource interface {
	Deliveries(ctx context.Context) (<-chan amqp.Delivery, error)
}

// PaymentConsumer turns payment.paid events from the gateway into client
// payment confirmations.
type PaymentConsumer struct {
	bookings usecase.BookingService
	source   DeliverySource
	log      *zap.Logger
}

func NewPaymentConsumer(bookings usecase.BookingService, source DeliverySource, log *zap.Logger) *PaymentConsumer {
	return &PaymentConsumer{
		bookings: bookings,
		source:   source,
		log:      log.With(zap.String("worker", "payment_consumer")),
	}
}

// Run consumes until ctx is done or the broker closes the channel.
func (pc *PaymentConsumer) Run(ctx context.Context) error {
	msgs, err := pc.source.Deliveries(ctx)
	if err != nil {
		return err
	}

	pc.log.Info("Payment consumer started")
	for {
		select {
		case <-ctx.Done():
			pc.log.Info("Payment consumer stopped")
			return nil
		case d, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("payment deliveries channel closed")
			}
			pc.handle(ctx, d)
		}
	}
}

func (pc *PaymentConsumer) handle(ctx context.Context, d amqp.Delivery) {
	if d.RoutingKey != PaymentPaidKey {
		_ = d.Ack(false)
		return
	}

	var req request.ProcessPaymentRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		pc.log.Error("Undecodable payment event", zap.Error(err), zap.ByteString("body", d.Body))
		_ = d.Nack(false, false)
		return
	}

	booking, err := pc.bookings.ConfirmFromGateway(ctx, &req)
	switch {
	case err == nil:
		pc.log.Info("Payment event applied",
			zap.String("booking_id", booking.ID.String()),
			zap.Int64("version", booking.Version),
		)
		_ = d.Ack(false)

	case errors.Is(err, entity.ErrStoreUnavailable):
		pc.log.Warn("Store unavailable, requeueing payment event",
			zap.String("booking_id", req.BookingID),
			zap.Error(err),
		)
		_ = d.Nack(false, true)

	default:
		// Redelivery cannot fix a lifecycle rejection
		pc.log.Warn("Payment event rejected",
			zap.String("booking_id", req.BookingID),
			zap.Int64("version", req.Version),
			zap.Error(err),
		)
		_ = d.Ack(false)
	}
}
