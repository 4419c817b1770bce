package reactor

import "errors"

var (
	// ErrStopped is returned by Call when the loop has stopped.
	ErrStopped = errors.New("reactor: loop stopped")

	// ErrPanic is returned by Call when the called function panicked.
	ErrPanic = errors.New("reactor: task panicked")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("reactor: loop already running")
)
