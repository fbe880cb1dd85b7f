package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSeatUnavailable        = errors.New("seat unavailable")
	ErrSeatAlreadyBooked      = fmt.Errorf("%w: seat is already booked", ErrSeatUnavailable)
	ErrSeatLocked             = fmt.Errorf("%w: seat is being held by another customer", ErrSeatUnavailable)
	ErrBookingNotFound        = errors.New("booking not found")
	ErrTripNotFound           = errors.New("trip not found")
	ErrRouteNotFound          = errors.New("route not found")
	ErrInvalidTransition      = errors.New("invalid booking status transition")
	ErrValidation             = errors.New("validation error")
	ErrTripNotBookable        = fmt.Errorf("%w: trip is not open for booking", ErrValidation)
	ErrIdentityRequired       = errors.New("user or guest identity required")
	ErrConcurrentModification = errors.New("booking was modified concurrently")
	ErrDuplicateBookingCode   = errors.New("booking code already exists")
)
