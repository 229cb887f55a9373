package support

import "errors"

var (
	// ErrGrantNotFound is returned when the grant ID does not exist
	ErrGrantNotFound = errors.New("support access grant not found")

	// ErrInvalidAccessLevel is returned for access levels outside the enum
	ErrInvalidAccessLevel = errors.New("invalid access level")

	// ErrDurationTooLong is returned when the requested duration exceeds
	// the 48 hour ceiling
	ErrDurationTooLong = errors.New("grant duration exceeds maximum")

	// ErrInvalidDuration is returned for zero or negative durations
	ErrInvalidDuration = errors.New("grant duration must be positive")

	// ErrEmptyReason is returned when the grant request carries no reason
	ErrEmptyReason = errors.New("grant reason must not be blank")
)
