package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tour-booking/internal/data/entity"
	"tour-booking/internal/data/repository"
	"tour-booking/pkg/utils"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTransport struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []string
}

func (f *fakeTransport) Send(ctx context.Context, to, templateID string, vars map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failures < 0 || f.calls <= f.failures {
		return errors.New("smtp 421 service not available")
	}
	f.sent = append(f.sent, to+"|"+templateID)
	return nil
}

func (f *fakeTransport) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testNotifyConfig() utils.NotifyConfig {
	return utils.NotifyConfig{
		Workers:     2,
		QueueSize:   8,
		MaxAttempts: 4,
		BaseDelay:   time.Minute,
		MaxDelay:    2 * time.Minute,
	}
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

func seedBooking(t *testing.T, repo repository.BookingRepository, now time.Time) *entity.Booking {
	t.Helper()

	due := now.Add(time.Hour)
	b := &entity.Booking{
		BaseNoDelete:     entity.BaseNoDelete{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		OrderID:          "TOUR-20260101-090000-0001",
		UserID:           uuid.New(),
		TourID:           uuid.New(),
		ContactName:      "Rina",
		ContactEmail:     "rina@example.com",
		TotalAmount:      1250000,
		ParticipantCount: 2,
		Status:           entity.BookingStatusPaymentPending,
		PaymentDueAt:     &due,
		Version:          1,
	}
	require.NoError(t, repo.Create(context.Background(), b))
	return b
}

func newTestDispatcher(t *testing.T, transport Transport, cfg utils.NotifyConfig) (*Dispatcher, repository.BookingRepository, DeadLetterStore, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	repo := repository.NewMemoryBookingRepository(zap.NewNop())
	dead := NewMemoryDeadLetterStore()
	return NewDispatcher(repo, transport, dead, clock, cfg, zap.NewNop()), repo, dead, clock
}

func TestDispatcher_RetriesThenDelivers(t *testing.T) {
	transport := &fakeTransport{failures: 2}
	d, repo, dead, clock := newTestDispatcher(t, transport, testNotifyConfig())
	b := seedBooking(t, repo, clock.Now())
	start := clock.Now()

	retryOnFakeClock(t, clock, 3*time.Minute, func() {
		d.deliver(context.Background(), Request{ID: uuid.New(), BookingID: b.ID, Kind: entity.EdgePaymentCompleted})
	})

	assert.Equal(t, 3, transport.Calls())
	// Both waits passed on the injected clock
	assert.GreaterOrEqual(t, clock.Since(start), 2*time.Minute)
	assert.Equal(t, []string{"rina@example.com|booking.payment_completed"}, transport.sent)

	stats := d.Stats()
	assert.Equal(t, int64(1), stats.Delivered)
	assert.Equal(t, int64(2), stats.Retried)
	assert.Equal(t, int64(0), stats.Failed)

	letters, err := dead.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, letters)

	// Delivery never touches booking state
	stored, err := repo.FindByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.Equal(t, entity.BookingStatusPaymentPending, stored.Status)
}

func TestDispatcher_ExhaustedGoesToDeadLetters(t *testing.T) {
	transport := &fakeTransport{failures: -1}
	cfg := testNotifyConfig()
	cfg.MaxAttempts = 3
	d, repo, dead, clock := newTestDispatcher(t, transport, cfg)
	b := seedBooking(t, repo, clock.Now())

	reqID := uuid.New()
	retryOnFakeClock(t, clock, 3*time.Minute, func() {
		d.deliver(context.Background(), Request{ID: reqID, BookingID: b.ID, Kind: entity.EdgePaymentExpired})
	})

	assert.Equal(t, 3, transport.Calls())
	assert.Equal(t, int64(1), d.Stats().Failed)

	letters, err := dead.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, reqID, letters[0].ID)
	assert.Equal(t, b.ID, letters[0].BookingID)
	assert.Equal(t, ReasonExhausted, letters[0].Reason)
	assert.Equal(t, 3, letters[0].Attempts)
	assert.Contains(t, letters[0].Error, entity.ErrDispatchFailure.Error())
}

func TestDispatcher_MissingBookingIsNotRetried(t *testing.T) {
	transport := &fakeTransport{}
	d, _, dead, _ := newTestDispatcher(t, transport, testNotifyConfig())

	d.deliver(context.Background(), Request{ID: uuid.New(), BookingID: uuid.New(), Kind: entity.EdgeRevived})

	assert.Equal(t, 0, transport.Calls())
	letters, err := dead.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, ReasonBookingMissing, letters[0].Reason)
}

func TestDispatcher_EnqueueOverflowDeadLetters(t *testing.T) {
	cfg := testNotifyConfig()
	cfg.QueueSize = 1
	d, _, dead, _ := newTestDispatcher(t, &fakeTransport{}, cfg)

	first, second := uuid.New(), uuid.New()
	d.Enqueue(first, entity.EdgePaymentCompleted)
	d.Enqueue(second, entity.EdgeCancelledBeforePayment)
	d.burials.Wait()

	stats := d.Stats()
	assert.Equal(t, int64(1), stats.Enqueued)
	assert.Equal(t, int64(1), stats.Overflowed)
	assert.Equal(t, 1, stats.QueueDepth)

	letters, err := dead.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, second, letters[0].BookingID)
	assert.Equal(t, ReasonQueueFull, letters[0].Reason)
}

func TestDispatcher_ShutdownKeepsQueuedRequests(t *testing.T) {
	d, _, dead, _ := newTestDispatcher(t, &fakeTransport{}, testNotifyConfig())

	d.Enqueue(uuid.New(), entity.EdgePaymentCompleted)
	d.Enqueue(uuid.New(), entity.EdgeRefundCompleted)
	d.closed.Store(true)
	d.drain()

	// Late arrivals after shutdown are kept too
	d.Enqueue(uuid.New(), entity.EdgeRevived)
	d.burials.Wait()

	letters, err := dead.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, letters, 3)
	for _, dl := range letters {
		assert.Equal(t, ReasonShutdown, dl.Reason)
	}
	assert.Equal(t, 0, d.Stats().QueueDepth)
}

func TestDispatcher_RunDeliversQueuedRequests(t *testing.T) {
	transport := &fakeTransport{}
	d, repo, _, clock := newTestDispatcher(t, transport, testNotifyConfig())
	b := seedBooking(t, repo, clock.Now())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.Enqueue(b.ID, entity.EdgeDeadlineExtended)

	require.Eventually(t, func() bool {
		return d.Stats().Delivered == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestDispatcher_Resend(t *testing.T) {
	d, _, dead, clock := newTestDispatcher(t, &fakeTransport{}, testNotifyConfig())

	dl := DeadLetter{
		ID:        uuid.New(),
		BookingID: uuid.New(),
		Kind:      entity.EdgePaymentCompleted,
		Reason:    ReasonExhausted,
		FailedAt:  clock.Now(),
	}
	require.NoError(t, dead.Put(context.Background(), dl))

	got, err := d.Resend(context.Background(), dl.ID)
	require.NoError(t, err)
	assert.Equal(t, dl.BookingID, got.BookingID)
	assert.Equal(t, 1, d.Stats().QueueDepth)

	_, err = d.Resend(context.Background(), dl.ID)
	assert.ErrorIs(t, err, ErrDeadLetterNotFound)
}
