package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tour-booking/internal/data/entity"
	"tour-booking/pkg/utils"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// BookingReader is the read-only view of the booking store the dispatcher
// needs to build variables.
type BookingReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
}

type Request struct {
	ID         uuid.UUID
	BookingID  uuid.UUID
	Kind       entity.EdgeKind
	EnqueuedAt time.Time
}

type Stats struct {
	Enqueued     int64 `json:"enqueued"`
	Delivered    int64 `json:"delivered"`
	Retried      int64 `json:"retried"`
	Failed       int64 `json:"failed"`
	Overflowed   int64 `json:"overflowed"`
	DeadLettered int64 `json:"dead_lettered"`
	QueueDepth   int   `json:"queue_depth"`
}

// Dispatcher fans lifecycle events out to a transport from a fixed worker
// pool. Enqueue never blocks; anything that cannot be delivered ends in the
// dead-letter store, and booking state is never touched.
type Dispatcher struct {
	bookings    BookingReader
	transport   Transport
	deadLetters DeadLetterStore
	clock       clockwork.Clock
	config      utils.NotifyConfig
	log         *zap.Logger

	queue   chan Request
	closed  atomic.Bool
	burials sync.WaitGroup

	enqueued     atomic.Int64
	delivered    atomic.Int64
	retried      atomic.Int64
	failed       atomic.Int64
	overflowed   atomic.Int64
	deadLettered atomic.Int64
}

func NewDispatcher(bookings BookingReader, transport Transport, deadLetters DeadLetterStore, clock clockwork.Clock, config utils.NotifyConfig, log *zap.Logger) *Dispatcher {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.QueueSize < 1 {
		config.QueueSize = 1
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	return &Dispatcher{
		bookings:    bookings,
		transport:   transport,
		deadLetters: deadLetters,
		clock:       clock,
		config:      config,
		log:         log.With(zap.String("worker", "notification_dispatcher")),
		queue:       make(chan Request, config.QueueSize),
	}
}

// Enqueue schedules a notification for a committed transition.
func (d *Dispatcher) Enqueue(bookingID uuid.UUID, kind entity.EdgeKind) {
	req := Request{
		ID:         uuid.New(),
		BookingID:  bookingID,
		Kind:       kind,
		EnqueuedAt: d.clock.Now(),
	}

	if d.closed.Load() {
		d.buryAsync(req, ReasonShutdown, nil, 0)
		return
	}

	select {
	case d.queue <- req:
		d.enqueued.Add(1)
	default:
		d.overflowed.Add(1)
		d.log.Warn("Notification queue full",
			zap.String("booking_id", bookingID.String()),
			zap.String("kind", string(kind)),
		)
		d.buryAsync(req, ReasonQueueFull, nil, 0)
	}
}

// Run starts the workers and blocks until ctx is done. Requests still queued
// at shutdown are dead-lettered.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("Notification dispatcher started",
		zap.Int("workers", d.config.Workers),
		zap.Int("queue_size", d.config.QueueSize),
		zap.Int("max_attempts", d.config.MaxAttempts),
	)

	var wg sync.WaitGroup
	for i := 0; i < d.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx)
		}()
	}

	<-ctx.Done()
	d.closed.Store(true)
	wg.Wait()
	d.drain()
	d.burials.Wait()

	d.log.Info("Notification dispatcher stopped", zap.Any("stats", d.Stats()))
	return nil
}

// Resend moves a dead letter back onto the queue.
func (d *Dispatcher) Resend(ctx context.Context, id uuid.UUID) (*DeadLetter, error) {
	dl, err := d.deadLetters.Take(ctx, id)
	if err != nil {
		return nil, err
	}

	d.log.Info("Resending dead letter",
		zap.String("dead_letter_id", id.String()),
		zap.String("booking_id", dl.BookingID.String()),
		zap.String("kind", string(dl.Kind)),
	)
	d.Enqueue(dl.BookingID, dl.Kind)
	return dl, nil
}

func (d *Dispatcher) DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	return d.deadLetters.List(ctx, limit)
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Enqueued:     d.enqueued.Load(),
		Delivered:    d.delivered.Load(),
		Retried:      d.retried.Load(),
		Failed:       d.failed.Load(),
		Overflowed:   d.overflowed.Load(),
		DeadLettered: d.deadLettered.Load(),
		QueueDepth:   len(d.queue),
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.queue:
			d.deliver(ctx, req)
		}
	}
}

// deliver runs one request to completion: delivered, or dead-lettered.
func (d *Dispatcher) deliver(ctx context.Context, req Request) {
	log := d.log.With(
		zap.String("request_id", req.ID.String()),
		zap.String("booking_id", req.BookingID.String()),
		zap.String("kind", string(req.Kind)),
	)

	tpl, ok := TemplateFor(req.Kind)
	if !ok {
		d.failed.Add(1)
		log.Error("No template for notification kind")
		d.bury(req, ReasonExhausted, fmt.Errorf("%w: no template for %s", entity.ErrDispatchFailure, req.Kind), 0)
		return
	}

	attempts := 0
	operation := func() error {
		booking, err := d.bookings.FindByID(ctx, req.BookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return backoff.Permanent(entity.ErrBookingNotFound)
		}

		attempts++
		return d.transport.Send(ctx, booking.ContactEmail, tpl.ID, BuildVariables(booking, req.Kind))
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(d.newBackOff(), uint64(d.config.MaxAttempts-1)), ctx)
	onRetry := func(err error, wait time.Duration) {
		d.retried.Add(1)
		log.Warn("Notification attempt failed, retrying",
			zap.Error(err),
			zap.Int("attempts", attempts),
			zap.Duration("wait", wait),
		)
	}

	err := backoff.RetryNotifyWithTimer(operation, policy, onRetry, utils.NewBackoffTimer(d.clock))
	if err == nil {
		d.delivered.Add(1)
		log.Debug("Notification delivered", zap.Int("attempts", attempts))
		return
	}

	reason := ReasonExhausted
	switch {
	case errors.Is(err, entity.ErrBookingNotFound):
		reason = ReasonBookingMissing
	case ctx.Err() != nil:
		reason = ReasonShutdown
	}

	d.failed.Add(1)
	log.Error("Notification permanently failed",
		zap.Error(err),
		zap.String("reason", reason),
		zap.Int("attempts", attempts),
	)
	d.bury(req, reason, fmt.Errorf("%w: %w", entity.ErrDispatchFailure, err), attempts)
}

func (d *Dispatcher) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.config.BaseDelay
	b.MaxInterval = d.config.MaxDelay
	b.RandomizationFactor = 0.25
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Clock = d.clock
	return b
}

func (d *Dispatcher) drain() {
	for {
		select {
		case req := <-d.queue:
			d.bury(req, ReasonShutdown, nil, 0)
		default:
			return
		}
	}
}

func (d *Dispatcher) buryAsync(req Request, reason string, cause error, attempts int) {
	d.burials.Add(1)
	go func() {
		defer d.burials.Done()
		d.bury(req, reason, cause, attempts)
	}()
}

// bury writes a dead letter on a fresh context; the caller's may already be
// cancelled.
func (d *Dispatcher) bury(req Request, reason string, cause error, attempts int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dl := DeadLetter{
		ID:        req.ID,
		BookingID: req.BookingID,
		Kind:      req.Kind,
		Reason:    reason,
		Attempts:  attempts,
		FailedAt:  d.clock.Now(),
	}
	if cause != nil {
		dl.Error = cause.Error()
	}

	if err := d.deadLetters.Put(ctx, dl); err != nil {
		d.log.Error("Failed to store dead letter, notification lost",
			zap.Error(err),
			zap.String("booking_id", req.BookingID.String()),
			zap.String("kind", string(req.Kind)),
			zap.String("reason", reason),
		)
		return
	}
	d.deadLettered.Add(1)
}
