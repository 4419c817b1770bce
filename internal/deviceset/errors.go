package deviceset

import "errors"

// Configuration errors for the deviceset package.
//
// They are returned synchronously, before any device command is issued, and
// can be checked with errors.Is():
//
//	if errors.Is(err, deviceset.ErrUnknownSlot) {
//	    // reject the request
//	}
var (
	// ErrLengthMismatch is returned when the slot and device lists differ in length.
	ErrLengthMismatch = errors.New("deviceset: slot and device lists differ in length")

	// ErrDuplicateSlot is returned when a slot name appears more than once.
	ErrDuplicateSlot = errors.New("deviceset: duplicate slot")

	// ErrInvalidSlot is returned when a slot name is empty.
	ErrInvalidSlot = errors.New("deviceset: invalid slot name")

	// ErrDuplicateDevice is returned when a device name is already installed in another slot.
	ErrDuplicateDevice = errors.New("deviceset: duplicate device name")

	// ErrUnknownSlot is returned when a slot name is not registered.
	ErrUnknownSlot = errors.New("deviceset: unknown slot")

	// ErrEmptySlot is returned when a command targets a slot with no device.
	ErrEmptySlot = errors.New("deviceset: empty slot")

	// ErrUnknownDevice is returned when no installed device has the given name.
	ErrUnknownDevice = errors.New("deviceset: unknown device")

	// ErrSlotIndex is returned when a slot index is out of range.
	ErrSlotIndex = errors.New("deviceset: slot index out of range")

	// ErrNoCommand is returned when a slot is given an empty command list.
	ErrNoCommand = errors.New("deviceset: no command for slot")

	// ErrGoverningDone is returned when the supplied governing command is already terminal.
	ErrGoverningDone = errors.New("deviceset: governing command already done")
)
