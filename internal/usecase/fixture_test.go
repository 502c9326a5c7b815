package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"tour-booking/internal/data/entity"
	"tour-booking/internal/data/repository"
	"tour-booking/pkg/utils"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type notification struct {
	bookingID uuid.UUID
	kind      entity.EdgeKind
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Enqueue(bookingID uuid.UUID, kind entity.EdgeKind) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{bookingID: bookingID, kind: kind})
}

func (n *recordingNotifier) kinds() []entity.EdgeKind {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]entity.EdgeKind, len(n.sent))
	for i, s := range n.sent {
		out[i] = s.kind
	}
	return out
}

var testLifecycleConfig = utils.LifecycleConfig{
	PaymentWindow:       time.Hour,
	PaymentMaxExtension: 72 * time.Hour,
}

type fixture struct {
	clock     *clockwork.FakeClock
	repo      *repository.Repository
	notifier  *recordingNotifier
	lifecycle LifecycleService
	bookings  BookingService
	admin     AdminBookingService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithLogger(t, zap.NewNop())
}

func newFixtureWithLogger(t *testing.T, log *zap.Logger) *fixture {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC))
	repo := repository.NewMemoryRepository(log)
	notifier := &recordingNotifier{}
	lifecycle := NewLifecycleService(repo, notifier, clock, testLifecycleConfig, log)

	return &fixture{
		clock:     clock,
		repo:      repo,
		notifier:  notifier,
		lifecycle: lifecycle,
		bookings:  NewBookingService(repo, lifecycle, clock, testLifecycleConfig, log),
		admin:     NewAdminBookingService(lifecycle, clock, log),
	}
}

// seed stores a pending booking with a one hour window starting now.
func (f *fixture) seed(t *testing.T) *entity.Booking {
	t.Helper()

	now := f.clock.Now()
	due := now.Add(time.Hour)
	b := &entity.Booking{
		BaseNoDelete:     entity.BaseNoDelete{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		OrderID:          "TOUR-" + uuid.NewString()[:8],
		UserID:           uuid.New(),
		TourID:           uuid.New(),
		ContactName:      "Ayu",
		ContactEmail:     "ayu@example.com",
		TotalAmount:      1200,
		ParticipantCount: 2,
		Status:           entity.BookingStatusPaymentPending,
		PaymentDueAt:     &due,
		Version:          1,
	}
	require.NoError(t, f.repo.Booking.Create(context.Background(), b))
	return b
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *entity.Booking {
	t.Helper()

	b, err := f.lifecycle.GetBooking(context.Background(), id)
	require.NoError(t, err)
	return b
}

func clientActor(b *entity.Booking) entity.Actor {
	return entity.Actor{ID: b.UserID.String(), Role: entity.ActorClient}
}

var (
	adminActor  = entity.Actor{ID: "admin-1", Role: entity.ActorAdmin}
	systemActor = entity.Actor{ID: "expiration-sweeper", Role: entity.ActorSystem}
)

func payment() *entity.PaymentInfo {
	return &entity.PaymentInfo{Method: "bank_transfer", PayerName: "Ayu Lestari", BankReference: "BCA-7781"}
}

// requireDueIffPending checks that a deadline is present exactly while the
// booking waits for payment.
func requireDueIffPending(t *testing.T, b *entity.Booking) {
	t.Helper()
	pending := b.Status == entity.BookingStatusPaymentPending
	require.Equal(t, pending, b.PaymentDueAt != nil, "status %s with due %v", b.Status, b.PaymentDueAt)
}
