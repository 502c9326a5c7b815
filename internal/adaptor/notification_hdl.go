package adaptor

import (
	"context"
	"errors"
	"net/http"

	"tour-booking/internal/notify"
	"tour-booking/internal/usecase"
	"tour-booking/internal/worker"
	"tour-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeadLetterQueue is the admin view of the notification dispatcher.
type DeadLetterQueue interface {
	DeadLetters(ctx context.Context, limit int) ([]notify.DeadLetter, error)
	Resend(ctx context.Context, id uuid.UUID) (*notify.DeadLetter, error)
	Stats() notify.Stats
}

type SweeperMonitor interface {
	Stats() worker.SweeperStats
}

type LifecycleStatsResponse struct {
	Lifecycle     usecase.LifecycleStats `json:"lifecycle"`
	Sweeper       *worker.SweeperStats   `json:"sweeper,omitempty"`
	Notifications notify.Stats           `json:"notifications"`
}

type NotificationHandler struct {
	queue     DeadLetterQueue
	sweeper   SweeperMonitor
	lifecycle usecase.LifecycleService
	log       *zap.Logger
}

func NewNotificationHandler(queue DeadLetterQueue, sweeper SweeperMonitor, lifecycle usecase.LifecycleService, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		queue:     queue,
		sweeper:   sweeper,
		lifecycle: lifecycle,
		log:       log.With(zap.String("handler", "notification")),
	}
}

// ListFailed handles GET /api/admin/notifications/failed?limit=
func (h *NotificationHandler) ListFailed(w http.ResponseWriter, r *http.Request) {
	limit := utils.ParseInt(r.URL.Query().Get("limit"), 50)
	if limit > 500 {
		limit = 500
	}

	letters, err := h.queue.DeadLetters(r.Context(), limit)
	if err != nil {
		h.log.Error("Failed to list dead letters", zap.Error(err))
		utils.ResponseServiceUnavailable(w, "Dead-letter store is temporarily unavailable")
		return
	}
	if letters == nil {
		letters = []notify.DeadLetter{}
	}

	utils.ResponseSuccess(w, "success", letters)
}

// Resend handles POST /api/admin/notifications/failed/{id}/resend
func (h *NotificationHandler) Resend(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.ResponseBadRequest(w, "Invalid notification ID format", nil)
		return
	}

	letter, err := h.queue.Resend(r.Context(), id)
	switch {
	case errors.Is(err, notify.ErrDeadLetterNotFound):
		utils.ResponseNotFound(w, "Failed notification not found")
		return
	case err != nil:
		h.log.Error("Failed to resend notification", zap.Error(err), zap.String("id", id.String()))
		utils.ResponseServiceUnavailable(w, "Dead-letter store is temporarily unavailable")
		return
	}

	h.log.Info("Notification re-enqueued",
		zap.String("id", id.String()),
		zap.String("booking_id", letter.BookingID.String()),
		zap.String("kind", string(letter.Kind)),
	)
	utils.ResponseSuccess(w, "Notification re-enqueued", letter)
}

// LifecycleStats handles GET /api/admin/lifecycle/stats
func (h *NotificationHandler) LifecycleStats(w http.ResponseWriter, r *http.Request) {
	resp := LifecycleStatsResponse{
		Lifecycle:     h.lifecycle.Stats(),
		Notifications: h.queue.Stats(),
	}
	if h.sweeper != nil {
		stats := h.sweeper.Stats()
		resp.Sweeper = &stats
	}

	utils.ResponseSuccess(w, "success", resp)
}
