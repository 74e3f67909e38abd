package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	ErrAthleteNotFound  = fmt.Errorf("athlete %w", ErrNotFound)
	ErrProtocolNotFound = fmt.Errorf("protocol %w", ErrNotFound)
	ErrInvalidPhone     = fmt.Errorf("%w: invalid phone number", ErrValidation)
	ErrChannelDisabled  = errors.New("channel disabled")
)
