package entity

import "errors"

var (
	// Booking errors
	ErrBookingNotFound  = errors.New("booking not found")
	ErrDuplicateOrderID = errors.New("order id already taken")

	// Lifecycle errors
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrVersionConflict    = errors.New("version conflict")
	ErrDeadlineNotReached = errors.New("payment deadline not reached")
	ErrAlreadyTerminal    = errors.New("booking already terminal")
	ErrValidation         = errors.New("validation failed")

	// Infrastructure errors
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrDispatchFailure  = errors.New("notification dispatch failed")

	// Access errors
	ErrUnauthorized = errors.New("unauthorized")
)
