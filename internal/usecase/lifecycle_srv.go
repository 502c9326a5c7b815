package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tour-booking/internal/data/entity"
	"tour-booking/internal/data/repository"
	"tour-booking/pkg/utils"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Notifier accepts a notification request without blocking the caller.
type Notifier interface {
	Enqueue(bookingID uuid.UUID, kind entity.EdgeKind)
}

// LifecycleService is the single writer of booking status. Every status,
// deadline and payment change goes through RequestTransition.
type LifecycleService interface {
	RequestTransition(ctx context.Context, bookingID uuid.UUID, expectedVersion int64, trigger entity.Trigger, payload entity.TransitionPayload) (*entity.Booking, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID) (*entity.Booking, error)
	Stats() LifecycleStats
}

type LifecycleStats struct {
	Committed     map[entity.EdgeKind]int64 `json:"committed"`
	Conflicts     int64                     `json:"conflicts"`
	Rejected      int64                     `json:"rejected"`
	StoreFailures int64                     `json:"store_failures"`
}

type lifecycleService struct {
	repo     *repository.Repository
	notifier Notifier
	clock    clockwork.Clock
	config   utils.LifecycleConfig
	log      *zap.Logger

	mu    sync.Mutex
	stats LifecycleStats
}

func NewLifecycleService(repo *repository.Repository, notifier Notifier, clock clockwork.Clock, config utils.LifecycleConfig, log *zap.Logger) LifecycleService {
	return &lifecycleService{
		repo:     repo,
		notifier: notifier,
		clock:    clock,
		config:   config,
		log:      log.With(zap.String("service", "lifecycle")),
		stats: LifecycleStats{
			Committed: make(map[entity.EdgeKind]int64),
		},
	}
}

func (s *lifecycleService) GetBooking(ctx context.Context, bookingID uuid.UUID) (*entity.Booking, error) {
	booking, err := s.repo.Booking.FindByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", bookingID, err)
	}
	if booking == nil {
		return nil, fmt.Errorf("get booking %s: %w", bookingID, entity.ErrBookingNotFound)
	}
	return booking, nil
}

func (s *lifecycleService) RequestTransition(ctx context.Context, bookingID uuid.UUID, expectedVersion int64, trigger entity.Trigger, payload entity.TransitionPayload) (*entity.Booking, error) {
	actor := payload.Actor

	// Request shape
	if !trigger.IsValid() {
		return nil, s.reject(fmt.Errorf("%w: unknown trigger %q", entity.ErrValidation, trigger), bookingID, trigger, actor)
	}
	if !actor.Role.IsValid() || strings.TrimSpace(actor.ID) == "" {
		return nil, s.reject(fmt.Errorf("%w: actor is required", entity.ErrValidation), bookingID, trigger, actor)
	}
	if expectedVersion < 1 {
		return nil, s.reject(fmt.Errorf("%w: version must be at least 1", entity.ErrValidation), bookingID, trigger, actor)
	}

	booking, err := s.repo.Booking.FindByID(ctx, bookingID)
	if err != nil {
		s.countStoreFailure()
		return nil, fmt.Errorf("load booking %s: %w", bookingID, err)
	}
	if booking == nil {
		return nil, s.reject(fmt.Errorf("booking %s: %w", bookingID, entity.ErrBookingNotFound), bookingID, trigger, actor)
	}

	if booking.Version != expectedVersion {
		return nil, s.reject(fmt.Errorf("booking %s is at version %d, not %d: %w",
			bookingID, booking.Version, expectedVersion, entity.ErrVersionConflict), bookingID, trigger, actor)
	}

	if booking.Status.IsTerminal() {
		return nil, s.reject(fmt.Errorf("booking %s is %s: %w", bookingID, booking.Status, entity.ErrAlreadyTerminal), bookingID, trigger, actor)
	}

	edge, ok := entity.FindEdge(booking.Status, trigger)
	if !ok {
		return nil, s.reject(fmt.Errorf("%s on %s: %w", trigger, booking.Status, entity.ErrInvalidTransition), bookingID, trigger, actor)
	}
	if !edge.Permits(actor.Role) {
		return nil, s.reject(fmt.Errorf("%s on %s not allowed for %s: %w", trigger, booking.Status, actor.Role, entity.ErrInvalidTransition), bookingID, trigger, actor)
	}

	now := s.clock.Now()

	rec := &entity.TransitionRecord{
		BookingID:       booking.ID,
		ExpectedVersion: expectedVersion,
		Status:          edge.To,
		UpdatedAt:       now,
		Entry: entity.StatusHistoryEntry{
			BaseSimple: entity.BaseSimple{
				ID:        uuid.New(),
				CreatedAt: now,
			},
			BookingID:     booking.ID,
			FromStatus:    booking.Status,
			ToStatus:      edge.To,
			Trigger:       trigger,
			Actor:         actor.ID,
			ActorRole:     actor.Role,
			Note:          payload.Note,
			PreviousDueAt: copyTime(booking.PaymentDueAt),
		},
	}

	switch edge.Payload {
	case entity.PayloadPaymentInfo:
		info, err := s.checkPaymentInfo(payload.PaymentInfo, now)
		if err != nil {
			return nil, s.reject(err, bookingID, trigger, actor)
		}
		rec.PaymentInfo = info

	case entity.PayloadNewDueAt:
		if err := s.checkNewDueAt(payload.PaymentDueAt, now); err != nil {
			return nil, s.reject(err, bookingID, trigger, actor)
		}
		rec.PaymentDueAt = copyTime(payload.PaymentDueAt)

	case entity.PayloadDeadlinePassed:
		if booking.PaymentDueAt != nil && now.Before(*booking.PaymentDueAt) {
			return nil, s.reject(fmt.Errorf("booking %s is due at %s: %w",
				bookingID, booking.PaymentDueAt.Format(time.RFC3339), entity.ErrDeadlineNotReached), bookingID, trigger, actor)
		}
	}

	// A pending booking keeps its deadline unless the edge sets a new one.
	if edge.To == entity.BookingStatusPaymentPending && rec.PaymentDueAt == nil {
		rec.PaymentDueAt = copyTime(booking.PaymentDueAt)
	}
	rec.Entry.NewDueAt = copyTime(rec.PaymentDueAt)

	if err := s.repo.Booking.ApplyTransition(ctx, rec); err != nil {
		if errors.Is(err, entity.ErrStoreUnavailable) {
			s.countStoreFailure()
			s.log.Error("Failed to apply transition",
				zap.Error(err),
				zap.String("booking_id", bookingID.String()),
				zap.String("edge", string(edge.Kind)),
			)
			return nil, err
		}
		return nil, s.reject(err, bookingID, trigger, actor)
	}

	updated := applyRecord(booking, rec)

	s.mu.Lock()
	s.stats.Committed[edge.Kind]++
	s.mu.Unlock()

	s.log.Info("Booking transitioned",
		zap.String("booking_id", bookingID.String()),
		zap.String("edge", string(edge.Kind)),
		zap.String("from", string(edge.From)),
		zap.String("to", string(edge.To)),
		zap.String("actor", actor.ID),
		zap.String("actor_role", string(actor.Role)),
		zap.Int64("version", updated.Version),
	)

	s.notifier.Enqueue(bookingID, edge.Kind)

	return updated, nil
}

func (s *lifecycleService) Stats() LifecycleStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.stats
	out.Committed = make(map[entity.EdgeKind]int64, len(s.stats.Committed))
	for k, v := range s.stats.Committed {
		out.Committed[k] = v
	}
	return out
}

func (s *lifecycleService) checkPaymentInfo(info *entity.PaymentInfo, now time.Time) (*entity.PaymentInfo, error) {
	if info == nil {
		return nil, fmt.Errorf("%w: payment info is required", entity.ErrValidation)
	}
	if strings.TrimSpace(info.Method) == "" {
		return nil, fmt.Errorf("%w: payment method is required", entity.ErrValidation)
	}
	if strings.TrimSpace(info.PayerName) == "" {
		return nil, fmt.Errorf("%w: payer name is required", entity.ErrValidation)
	}

	out := *info
	if out.ConfirmedAt.IsZero() {
		out.ConfirmedAt = now
	}
	return &out, nil
}

func (s *lifecycleService) checkNewDueAt(due *time.Time, now time.Time) error {
	if due == nil {
		return fmt.Errorf("%w: new payment deadline is required", entity.ErrValidation)
	}
	if !due.After(now) {
		return fmt.Errorf("%w: new payment deadline must be in the future", entity.ErrValidation)
	}
	if s.config.PaymentMaxExtension > 0 && due.After(now.Add(s.config.PaymentMaxExtension)) {
		return fmt.Errorf("%w: new payment deadline is more than %s ahead", entity.ErrValidation, s.config.PaymentMaxExtension)
	}
	return nil
}

// reject logs and counts a refused request. Deadline and terminal guards
// should only ever trip for the sweeper, so anywhere else they are a caller
// bug worth a warning.
func (s *lifecycleService) reject(err error, bookingID uuid.UUID, trigger entity.Trigger, actor entity.Actor) error {
	fields := []zap.Field{
		zap.Error(err),
		zap.String("booking_id", bookingID.String()),
		zap.String("trigger", string(trigger)),
		zap.String("actor", actor.ID),
		zap.String("actor_role", string(actor.Role)),
	}

	s.mu.Lock()
	if errors.Is(err, entity.ErrVersionConflict) {
		s.stats.Conflicts++
	} else {
		s.stats.Rejected++
	}
	s.mu.Unlock()

	anomaly := errors.Is(err, entity.ErrDeadlineNotReached) || errors.Is(err, entity.ErrAlreadyTerminal)
	if anomaly && actor.Role != entity.ActorSystem {
		s.log.Warn("Lifecycle guard tripped outside the sweeper", fields...)
	} else {
		s.log.Debug("Transition rejected", fields...)
	}
	return err
}

func (s *lifecycleService) countStoreFailure() {
	s.mu.Lock()
	s.stats.StoreFailures++
	s.mu.Unlock()
}

// applyRecord mirrors a committed record onto the booking that was read
// before the commit.
func applyRecord(booking *entity.Booking, rec *entity.TransitionRecord) *entity.Booking {
	next := booking.Clone()
	next.Status = rec.Status
	next.PaymentDueAt = copyTime(rec.PaymentDueAt)
	if next.PaymentInfo == nil && rec.PaymentInfo != nil {
		info := *rec.PaymentInfo
		next.PaymentInfo = &info
	}
	next.Version = rec.ExpectedVersion + 1
	next.UpdatedAt = rec.UpdatedAt

	entry := rec.Entry
	entry.Version = next.Version
	next.StatusHistory = append(next.StatusHistory, entry)
	return next
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
