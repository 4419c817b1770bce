package bridgedev

import "errors"

var (
	// ErrEmptyCommand is returned for blank command text.
	ErrEmptyCommand = errors.New("bridgedev: empty command")

	// ErrInvalidCommand is returned when command text cannot be parsed.
	ErrInvalidCommand = errors.New("bridgedev: invalid command")

	// ErrNotConnected is the failure for commands issued before Connect finished.
	ErrNotConnected = errors.New("bridgedev: device not connected")

	// ErrReleased is the failure for work interrupted by Release.
	ErrReleased = errors.New("bridgedev: device released")
)
