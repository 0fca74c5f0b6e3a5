package database

import "errors"

var (
	ErrCarpoolNotFound  = errors.New("carpool not found")
	ErrCapacityExceeded = errors.New("not enough seats available")
	ErrSelfBooking      = errors.New("carpool owner cannot book their own carpool")
	ErrDuplicateBooking = errors.New("rider already has a booking on this carpool")
	ErrInvalidSeatCount = errors.New("seat count must be at least one")
)
