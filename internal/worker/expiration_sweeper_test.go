package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"tour-booking/internal/data/entity"
	"tour-booking/internal/data/repository"
	"tour-booking/internal/usecase"
	"tour-booking/pkg/utils"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []entity.EdgeKind
}

func (n *recordingNotifier) Enqueue(bookingID uuid.UUID, kind entity.EdgeKind) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
}

type sweepFixture struct {
	clock     *clockwork.FakeClock
	repo      *repository.Repository
	lifecycle usecase.LifecycleService
	notifier  *recordingNotifier
	sweeper   *ExpirationSweeper
}

func testSweeperConfig() utils.SweeperConfig {
	return utils.SweeperConfig{
		Interval:     time.Minute,
		BatchSize:    50,
		TickTimeout:  45 * time.Second,
		StoreRetries: 2,
	}
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC))
	repo := repository.NewMemoryRepository(zap.NewNop())
	notifier := &recordingNotifier{}
	lifecycle := usecase.NewLifecycleService(repo, notifier, clock, utils.LifecycleConfig{
		PaymentWindow:       time.Hour,
		PaymentMaxExtension: 72 * time.Hour,
	}, zap.NewNop())

	sweeper := NewExpirationSweeper(repo.Booking, lifecycle, nil, clock, testSweeperConfig(), zap.NewNop())
	sweeper.retryDelay = time.Millisecond

	return &sweepFixture{clock: clock, repo: repo, lifecycle: lifecycle, notifier: notifier, sweeper: sweeper}
}

func (f *sweepFixture) createBooking(t *testing.T, window time.Duration) *entity.Booking {
	t.Helper()

	now := f.clock.Now()
	due := now.Add(window)
	b := &entity.Booking{
		BaseNoDelete:     entity.BaseNoDelete{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		OrderID:          "TOUR-" + uuid.NewString()[:8],
		UserID:           uuid.New(),
		TourID:           uuid.New(),
		ContactEmail:     "guest@example.com",
		TotalAmount:      500,
		ParticipantCount: 1,
		Status:           entity.BookingStatusPaymentPending,
		PaymentDueAt:     &due,
		Version:          1,
	}
	require.NoError(t, f.repo.Booking.Create(context.Background(), b))
	return b
}

func TestSweeper_ExpiresAfterDeadlineThenNoOp(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()
	b := f.createBooking(t, time.Hour)

	f.clock.Advance(61 * time.Minute)
	report := f.sweeper.Tick(ctx)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 0, report.Errored)

	stored, err := f.lifecycle.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusPaymentExpired, stored.Status)
	assert.Equal(t, int64(2), stored.Version)
	assert.Nil(t, stored.PaymentDueAt)
	require.Len(t, stored.StatusHistory, 1)
	assert.Equal(t, SweeperActorID, stored.StatusHistory[0].Actor)
	assert.Equal(t, entity.ActorSystem, stored.StatusHistory[0].ActorRole)
	assert.Equal(t, []entity.EdgeKind{entity.EdgePaymentExpired}, f.notifier.kinds)

	f.clock.Advance(time.Minute)
	report = f.sweeper.Tick(ctx)
	assert.Equal(t, 0, report.Expired)
	assert.Equal(t, 0, report.Errored)

	stored, err = f.lifecycle.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.Len(t, f.notifier.kinds, 1)

	stats := f.sweeper.Stats()
	assert.Equal(t, int64(2), stats.Ticks)
	assert.Equal(t, int64(1), stats.Expired)
}

func TestSweeper_LeavesBookingsBeforeDeadline(t *testing.T) {
	f := newSweepFixture(t)
	b := f.createBooking(t, time.Hour)

	f.clock.Advance(59 * time.Minute)
	report := f.sweeper.Tick(context.Background())
	assert.Equal(t, 0, report.Candidates)

	stored, err := f.lifecycle.GetBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusPaymentPending, stored.Status)
}

func TestSweeper_ExpiresWithinOneInterval(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	interval := testSweeperConfig().Interval

	var bookings []*entity.Booking
	for i := 0; i < 40; i++ {
		window := time.Duration(rng.Intn(600)+1) * time.Second
		bookings = append(bookings, f.createBooking(t, window))
	}

	for i := 0; i < 12; i++ {
		f.clock.Advance(interval)
		f.sweeper.Tick(ctx)
	}

	for _, b := range bookings {
		stored, err := f.lifecycle.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		require.Equal(t, entity.BookingStatusPaymentExpired, stored.Status)
		require.Len(t, stored.StatusHistory, 1)

		expiredAt := stored.StatusHistory[0].CreatedAt
		lag := expiredAt.Sub(*b.PaymentDueAt)
		assert.GreaterOrEqual(t, lag, time.Duration(0))
		assert.LessOrEqual(t, lag, interval, "booking %s expired %s after its deadline", b.OrderID, lag)
	}
}

// overdueSource returns a fixed candidate list regardless of store state.
type overdueSource struct {
	repository.BookingRepository
	candidates []entity.OverdueBooking
	err        error
	queries    int
}

func (s *overdueSource) FindPaymentOverdue(ctx context.Context, now time.Time, limit int) ([]entity.OverdueBooking, error) {
	s.queries++
	return s.candidates, s.err
}

type scriptedLifecycle struct {
	usecase.LifecycleService
	mu    sync.Mutex
	calls int
	step  func(call int) error
}

func (l *scriptedLifecycle) RequestTransition(ctx context.Context, bookingID uuid.UUID, expectedVersion int64, trigger entity.Trigger, payload entity.TransitionPayload) (*entity.Booking, error) {
	l.mu.Lock()
	l.calls++
	call := l.calls
	l.mu.Unlock()

	if err := l.step(call); err != nil {
		return nil, err
	}
	return &entity.Booking{Status: entity.BookingStatusPaymentExpired}, nil
}

func candidates(n int, due time.Time) []entity.OverdueBooking {
	out := make([]entity.OverdueBooking, n)
	for i := range out {
		out[i] = entity.OverdueBooking{ID: uuid.New(), Version: 1, PaymentDueAt: due}
	}
	return out
}

func newScriptedSweeper(clock clockwork.Clock, src *overdueSource, lc *scriptedLifecycle, lock TickLock) *ExpirationSweeper {
	s := NewExpirationSweeper(src, lc, lock, clock, testSweeperConfig(), zap.NewNop())
	s.retryDelay = time.Millisecond
	return s
}

// retryOnFakeClock runs fn, moving clock past every backoff wait until fn
// returns.
func retryOnFakeClock(t *testing.T, clock *clockwork.FakeClock, step time.Duration, fn func()) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-done:
			return
		case <-deadline:
			t.Fatal("retries did not finish")
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		if clock.BlockUntilContext(ctx, 1) == nil {
			clock.Advance(step)
		}
		cancel()
	}
}

func TestSweeper_SkipsStaleCandidates(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()
	b := f.createBooking(t, time.Hour)

	// A client pays between the query and the transition
	f.clock.Advance(61 * time.Minute)
	_, err := f.lifecycle.RequestTransition(ctx, b.ID, 1, entity.TriggerConfirmPayment, entity.TransitionPayload{
		Actor:       entity.Actor{ID: b.UserID.String(), Role: entity.ActorClient},
		PaymentInfo: &entity.PaymentInfo{Method: "card", PayerName: "Guest"},
	})
	require.NoError(t, err)

	src := &overdueSource{
		BookingRepository: f.repo.Booking,
		candidates:        []entity.OverdueBooking{{ID: b.ID, Version: 1, PaymentDueAt: *b.PaymentDueAt}},
	}
	sweeper := NewExpirationSweeper(src, f.lifecycle, nil, f.clock, testSweeperConfig(), zap.NewNop())

	report := sweeper.Tick(ctx)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Errored)

	stored, err := f.lifecycle.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusPaymentCompleted, stored.Status)
}

func TestSweeper_FailureDoesNotAbortBatch(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &overdueSource{candidates: candidates(4, clock.Now())}
	lc := &scriptedLifecycle{step: func(call int) error {
		switch call {
		case 1:
			return fmt.Errorf("expire: %w", entity.ErrVersionConflict)
		case 2:
			return errors.New("unexpected")
		case 3:
			return fmt.Errorf("expire: %w", entity.ErrAlreadyTerminal)
		}
		return nil
	}}

	report := newScriptedSweeper(clock, src, lc, nil).Tick(context.Background())

	assert.Equal(t, 4, report.Candidates)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 1, report.Errored)
	assert.Equal(t, 4, lc.calls)
}

func TestSweeper_RetriesStoreUnavailable(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &overdueSource{candidates: candidates(1, clock.Now())}
	lc := &scriptedLifecycle{step: func(call int) error {
		if call <= 2 {
			return fmt.Errorf("apply: %w", entity.ErrStoreUnavailable)
		}
		return nil
	}}

	sweeper := newScriptedSweeper(clock, src, lc, nil)
	sweeper.retryDelay = time.Second

	var report SweepReport
	retryOnFakeClock(t, clock, 5*time.Second, func() {
		report = sweeper.Tick(context.Background())
	})

	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 0, report.Errored)
	assert.Equal(t, 3, lc.calls)
	// Retry waits are measured on the injected clock
	assert.GreaterOrEqual(t, report.Duration, 2*time.Second)
}

func TestSweeper_StoreRetriesAreBounded(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &overdueSource{candidates: candidates(2, clock.Now())}
	lc := &scriptedLifecycle{step: func(call int) error {
		return fmt.Errorf("apply: %w", entity.ErrStoreUnavailable)
	}}

	sweeper := newScriptedSweeper(clock, src, lc, nil)

	var report SweepReport
	retryOnFakeClock(t, clock, 10*time.Millisecond, func() {
		report = sweeper.Tick(context.Background())
	})

	// StoreRetries=2 gives three attempts per candidate
	assert.Equal(t, 2, report.Errored)
	assert.Equal(t, 6, lc.calls)
}

func TestSweeper_DefersAfterTickTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &overdueSource{candidates: candidates(5, clock.Now())}
	lc := &scriptedLifecycle{step: func(call int) error {
		clock.Advance(20 * time.Second)
		return nil
	}}

	report := newScriptedSweeper(clock, src, lc, nil).Tick(context.Background())

	assert.Equal(t, 3, report.Expired)
	assert.Equal(t, 2, report.Deferred)
	assert.Equal(t, 60*time.Second, report.Duration)
}

func TestSweeper_QueryFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &overdueSource{err: fmt.Errorf("find overdue: %w", entity.ErrStoreUnavailable)}
	lc := &scriptedLifecycle{step: func(int) error { return nil }}

	report := newScriptedSweeper(clock, src, lc, nil).Tick(context.Background())

	assert.NotEmpty(t, report.QueryError)
	assert.Equal(t, 0, lc.calls)
}

type fakeLock struct {
	acquired bool
	err      error
}

func (l fakeLock) Acquire(ctx context.Context) (bool, error) {
	return l.acquired, l.err
}

func TestSweeper_TickLock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	lc := &scriptedLifecycle{step: func(int) error { return nil }}

	src := &overdueSource{candidates: candidates(1, clock.Now())}
	report := newScriptedSweeper(clock, src, lc, fakeLock{acquired: false}).Tick(context.Background())
	assert.True(t, report.LockLost)
	assert.Equal(t, 0, src.queries)

	// Lock backend down: sweep anyway
	src = &overdueSource{candidates: candidates(1, clock.Now())}
	report = newScriptedSweeper(clock, src, lc, fakeLock{err: errors.New("dial tcp: refused")}).Tick(context.Background())
	assert.False(t, report.LockLost)
	assert.Equal(t, 1, report.Expired)
}

func TestSweeper_RunTicksOnInterval(t *testing.T) {
	f := newSweepFixture(t)
	f.createBooking(t, 30*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.sweeper.Run(ctx) }()

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(time.Minute)

	require.Eventually(t, func() bool {
		return f.sweeper.Stats().Expired == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
