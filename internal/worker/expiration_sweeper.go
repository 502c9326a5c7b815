package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"tour-booking/internal/data/entity"
	"tour-booking/internal/data/repository"
	"tour-booking/internal/usecase"
	"tour-booking/pkg/utils"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// SweeperActorID is recorded in the history of every booking the sweeper
// expires.
const SweeperActorID = "expiration-sweeper"

// TickLock elects one replica per tick. Acquire returns false when another
// replica holds the tick.
type TickLock interface {
	Acquire(ctx context.Context) (bool, error)
}

type SweepReport struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Candidates int           `json:"candidates"`
	Expired    int           `json:"expired"`
	Skipped    int           `json:"skipped"`
	Errored    int           `json:"errored"`
	Deferred   int           `json:"deferred"`
	Saturated  bool          `json:"saturated"`
	LockLost   bool          `json:"lock_lost,omitempty"`
	QueryError string        `json:"query_error,omitempty"`
}

type SweeperStats struct {
	Ticks      int64       `json:"ticks"`
	LastReport SweepReport `json:"last_report"`
	Expired    int64       `json:"expired"`
	Skipped    int64       `json:"skipped"`
	Errored    int64       `json:"errored"`
	Deferred   int64       `json:"deferred"`
}

// ExpirationSweeper periodically expires pending bookings whose payment
// deadline has passed. It goes through the lifecycle engine like any other
// caller and holds no booking state of its own.
type ExpirationSweeper struct {
	bookings   repository.BookingRepository
	lifecycle  usecase.LifecycleService
	lock       TickLock
	clock      clockwork.Clock
	config     utils.SweeperConfig
	retryDelay time.Duration
	log        *zap.Logger

	mu    sync.Mutex
	stats SweeperStats
}

func NewExpirationSweeper(bookings repository.BookingRepository, lifecycle usecase.LifecycleService, lock TickLock, clock clockwork.Clock, config utils.SweeperConfig, log *zap.Logger) *ExpirationSweeper {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}

	return &ExpirationSweeper{
		bookings:   bookings,
		lifecycle:  lifecycle,
		lock:       lock,
		clock:      clock,
		config:     config,
		retryDelay: 200 * time.Millisecond,
		log:        log.With(zap.String("worker", "expiration_sweeper")),
	}
}

func (w *ExpirationSweeper) Run(ctx context.Context) error {
	ticker := w.clock.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.log.Info("Expiration sweeper started",
		zap.Duration("interval", w.config.Interval),
		zap.Int("batch_size", w.config.BatchSize),
	)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Expiration sweeper stopped")
			return nil
		case <-ticker.Chan():
			w.Tick(ctx)
		}
	}
}

// Tick runs one sweep. Candidates not started before the tick timeout are
// deferred to the next tick; a started transition always runs to completion.
func (w *ExpirationSweeper) Tick(ctx context.Context) (report SweepReport) {
	start := w.clock.Now()
	report.StartedAt = start

	defer func() {
		report.Duration = w.clock.Since(start)
		w.record(report)
	}()

	if w.lock != nil {
		acquired, err := w.lock.Acquire(ctx)
		if err != nil {
			// A duplicate sweep loses on version
			w.log.Warn("Tick lock unavailable, sweeping anyway", zap.Error(err))
		} else if !acquired {
			report.LockLost = true
			w.log.Debug("Tick held by another replica")
			return report
		}
	}

	candidates, err := w.bookings.FindPaymentOverdue(ctx, start, w.config.BatchSize)
	if err != nil {
		report.QueryError = err.Error()
		w.log.Error("Failed to query overdue bookings", zap.Error(err))
		return report
	}

	report.Candidates = len(candidates)
	report.Saturated = len(candidates) >= w.config.BatchSize

	var deadline time.Time
	if w.config.TickTimeout > 0 {
		deadline = start.Add(w.config.TickTimeout)
	}

	for i, c := range candidates {
		if ctx.Err() != nil || (!deadline.IsZero() && !w.clock.Now().Before(deadline)) {
			report.Deferred = len(candidates) - i
			w.log.Warn("Sweep tick out of time, deferring remaining candidates",
				zap.Int("deferred", report.Deferred),
			)
			break
		}

		err := w.expire(ctx, c)
		switch {
		case err == nil:
			report.Expired++
		case isSkippable(err):
			report.Skipped++
			w.log.Debug("Overdue booking skipped",
				zap.String("booking_id", c.ID.String()),
				zap.Error(err),
			)
		default:
			report.Errored++
			w.log.Error("Failed to expire booking",
				zap.String("booking_id", c.ID.String()),
				zap.Int64("version", c.Version),
				zap.Error(err),
			)
		}
	}

	if report.Candidates > 0 || report.Deferred > 0 {
		w.log.Info("Sweep tick finished",
			zap.Int("candidates", report.Candidates),
			zap.Int("expired", report.Expired),
			zap.Int("skipped", report.Skipped),
			zap.Int("errored", report.Errored),
			zap.Int("deferred", report.Deferred),
			zap.Bool("saturated", report.Saturated),
		)
	}
	return report
}

func (w *ExpirationSweeper) Stats() SweeperStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// expire retries store outages within the tick; every other error is final.
func (w *ExpirationSweeper) expire(ctx context.Context, c entity.OverdueBooking) error {
	payload := entity.TransitionPayload{
		Actor: entity.Actor{ID: SweeperActorID, Role: entity.ActorSystem},
		Note:  "payment deadline passed",
	}

	operation := func() error {
		_, err := w.lifecycle.RequestTransition(ctx, c.ID, c.Version, entity.TriggerExpire, payload)
		if err != nil && !errors.Is(err, entity.ErrStoreUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.retryDelay
	b.MaxElapsedTime = 0
	b.Clock = w.clock

	retries := w.config.StoreRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	onRetry := func(err error, wait time.Duration) {
		w.log.Warn("Store unavailable while expiring, retrying",
			zap.String("booking_id", c.ID.String()),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	return backoff.RetryNotifyWithTimer(operation, policy, onRetry, utils.NewBackoffTimer(w.clock))
}

func (w *ExpirationSweeper) record(report SweepReport) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stats.Ticks++
	w.stats.LastReport = report
	w.stats.Expired += int64(report.Expired)
	w.stats.Skipped += int64(report.Skipped)
	w.stats.Errored += int64(report.Errored)
	w.stats.Deferred += int64(report.Deferred)
}

// isSkippable reports errors meaning someone else already moved the booking.
func isSkippable(err error) bool {
	return errors.Is(err, entity.ErrVersionConflict) ||
		errors.Is(err, entity.ErrInvalidTransition) ||
		errors.Is(err, entity.ErrAlreadyTerminal) ||
		errors.Is(err, entity.ErrDeadlineNotReached) ||
		errors.Is(err, entity.ErrBookingNotFound)
}
