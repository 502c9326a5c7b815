// internal/wire/wire.go
package wire

import (
	"net/http"

	"tour-booking/internal/adaptor"
	"tour-booking/internal/consumer"
	"tour-booking/internal/data/repository"
	"tour-booking/internal/notify"
	"tour-booking/internal/usecase"
	"tour-booking/internal/worker"
	"tour-booking/pkg/middleware"
	"tour-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Infra holds optional backing services. A nil field falls back to the
// in-process implementation.
type Infra struct {
	Redis         redis.Cmdable
	Publisher     notify.JSONPublisher
	PaymentEvents consumer.DeliverySource
}

// App menyimpan semua dependencies
type App struct {
	Router     *chi.Mux
	Service    *usecase.Service
	Dispatcher *notify.Dispatcher
	Sweeper    *worker.ExpirationSweeper
	Consumer   *consumer.PaymentConsumer
}

// Wiring menginisialisasi semua dependencies
func Wiring(repo *repository.Repository, infra Infra, config *utils.Config, logger *zap.Logger) *App {
	clock := clockwork.NewRealClock()

	// Notification pipeline
	deadLetters := notify.NewMemoryDeadLetterStore()
	if infra.Redis != nil {
		deadLetters = notify.NewRedisDeadLetterStore(infra.Redis)
	}
	transport := newTransport(infra, config, logger)
	dispatcher := notify.NewDispatcher(repo.Booking, transport, deadLetters, clock, config.Notify, logger)

	// Initialize services dan handlers
	service := usecase.NewService(repo, dispatcher, clock, config, logger)

	var lock worker.TickLock
	if infra.Redis != nil {
		lock = worker.NewRedisTickLock(infra.Redis, config.Sweeper.LockTTL)
	}
	sweeper := worker.NewExpirationSweeper(repo.Booking, service.Lifecycle, lock, clock, config.Sweeper, logger)

	var payments *consumer.PaymentConsumer
	if infra.PaymentEvents != nil {
		payments = consumer.NewPaymentConsumer(service.Booking, infra.PaymentEvents, logger)
	}

	handler := adaptor.NewHandler(service, dispatcher, sweeper, logger)

	// Setup router
	router := setupRouter(handler, config, logger)

	return &App{
		Router:     router,
		Service:    service,
		Dispatcher: dispatcher,
		Sweeper:    sweeper,
		Consumer:   payments,
	}
}

func newTransport(infra Infra, config *utils.Config, logger *zap.Logger) notify.Transport {
	switch config.Notify.Transport {
	case "smtp":
		return notify.NewSMTPTransport(config.Email, logger)
	case "amqp":
		if infra.Publisher != nil {
			return notify.NewAMQPTransport(infra.Publisher)
		}
		logger.Warn("NOTIFY_TRANSPORT=amqp but no broker is connected, logging notifications instead")
	case "log", "":
	default:
		logger.Warn("Unknown notification transport, logging notifications instead",
			zap.String("transport", config.Notify.Transport))
	}
	return notify.NewLogTransport(logger)
}

// setupRouter konfigurasi Chi router
func setupRouter(
	handler *adaptor.Handler,
	config *utils.Config,
	logger *zap.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))
	if config.App.RequestTimeout > 0 {
		r.Use(chimw.Timeout(config.App.RequestTimeout))
	}

	// Apply routes
	wireBooking(r, handler.Booking, config, logger)
	wireAdmin(r, handler.AdminBooking, handler.Notification, logger)

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
