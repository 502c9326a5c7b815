package adaptor

import (
	"encoding/json"
	"errors"
	"net/http"

	"tour-booking/internal/data/entity"
	"tour-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const msgVersionConflict = "This booking was just updated, please refresh"

// respondServiceError maps lifecycle and store errors onto HTTP statuses
func respondServiceError(w http.ResponseWriter, log *zap.Logger, err error, operation string) {
	fields := []zap.Field{zap.Error(err), zap.String("operation", operation)}

	switch {
	case errors.Is(err, entity.ErrValidation):
		log.Warn(operation+" validation failed", fields...)
		utils.ResponseUnprocessable(w, err.Error(), nil)

	case errors.Is(err, entity.ErrVersionConflict):
		log.Info(operation+" failed - stale version", fields...)
		utils.ResponseConflict(w, msgVersionConflict)

	case errors.Is(err, entity.ErrInvalidTransition),
		errors.Is(err, entity.ErrAlreadyTerminal),
		errors.Is(err, entity.ErrDeadlineNotReached):
		log.Warn(operation+" failed - invalid state", fields...)
		utils.ResponseConflict(w, err.Error())

	case errors.Is(err, entity.ErrBookingNotFound):
		log.Warn(operation+" failed - not found", fields...)
		utils.ResponseNotFound(w, "Booking not found")

	case errors.Is(err, entity.ErrUnauthorized):
		log.Warn(operation+" failed - forbidden", fields...)
		utils.ResponseForbidden(w, "You do not have access to this booking")

	case errors.Is(err, entity.ErrStoreUnavailable):
		log.Error(operation+" failed - store unavailable", fields...)
		utils.ResponseServiceUnavailable(w, "Booking store is temporarily unavailable, please retry")

	default:
		log.Error("Unexpected error in "+operation, fields...)
		utils.ResponseInternalError(w, "Internal server error")
	}
}

// decodeAndValidate answers 400 for a malformed body and 422 for a body that
// fails validation. It reports whether the handler may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return false
	}

	if validationErrors := utils.ValidateStruct(dst); len(validationErrors) > 0 {
		utils.ResponseUnprocessable(w, "Validation failed", validationErrors)
		return false
	}
	return true
}

func bookingIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	if raw == "" {
		utils.ResponseBadRequest(w, "Booking ID is required", nil)
		return uuid.Nil, false
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		utils.ResponseBadRequest(w, "Invalid booking ID format", nil)
		return uuid.Nil, false
	}
	return id, true
}
