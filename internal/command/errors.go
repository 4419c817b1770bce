package command

import "errors"

// Domain errors for the command package.
var (
	// ErrAlreadyDone is returned when changing the state of a terminal command.
	ErrAlreadyDone = errors.New("command: already done")

	// ErrInvalidState is returned when a state value is not recognised.
	ErrInvalidState = errors.New("command: invalid state")
)
