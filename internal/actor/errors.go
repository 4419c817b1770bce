package actor

import "errors"

var (
	// ErrMissingID is returned by New without an actor ID.
	ErrMissingID = errors.New("actor: id is required")

	// ErrMissingLoop is returned by New without a loop.
	ErrMissingLoop = errors.New("actor: loop is required")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("actor: already started")

	// ErrStartupFailed wraps a failed startup connect in WaitReady.
	ErrStartupFailed = errors.New("actor: startup connect failed")
)
