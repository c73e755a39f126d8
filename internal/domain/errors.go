package domain

import "errors"

var (
	// ErrInvalidRange indicates a trim window or playback range with
	// endSec <= startSec, a negative start, or a non-finite bound.
	ErrInvalidRange = errors.New("invalid range")

	// ErrInvalidCard indicates a card field failed validation.
	ErrInvalidCard = errors.New("invalid card")

	// ErrInvalidSession indicates a session field failed validation.
	ErrInvalidSession = errors.New("invalid session")

	// ErrUnknownValue is returned when an enumerated field receives a value
	// outside its closed set.
	ErrUnknownValue = errors.New("unknown value")
)
