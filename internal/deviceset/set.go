package deviceset

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-devset/internal/command"
)

// Options configures a new Set.
type Options struct {
	// Slots is the ordered list of slot names. Required.
	Slots []string

	// Devices holds one device per slot; nil entries are empty slots.
	// Must be the same length as Slots.
	Devices []Device

	// Reporter receives callback failures and replacement warnings.
	// If nil, messages go to Logger.
	Reporter Reporter

	// Hooks is notified as devices are installed and removed. Optional.
	Hooks Hooks

	// Observer is told about every finished bulk operation. Optional.
	Observer Observer

	// Scheduler is attached to governing commands the Set creates so late
	// callbacks are deferred to the loop. Optional.
	Scheduler command.Scheduler

	// Logger is optional structured logger.
	Logger Logger
}

// Set is an ordered collection of device slots, some of which may be empty.
//
// The slot list is fixed at construction. Devices may be swapped with
// ReplaceDevice. Not safe for concurrent use; see the package documentation.
type Set struct {
	slots      []string
	slotIndex  map[string]int
	slotDevice map[string]Device
	devSlot    map[string]string // device name -> slot

	// reserved holds names of replacement devices whose connect is pending.
	reserved map[string]reservation

	reporter Reporter
	hooks    Hooks
	observer Observer
	sched    command.Scheduler
	logger   Logger
}

// New builds a Set from parallel slot and device lists.
//
// Returns ErrLengthMismatch, ErrInvalidSlot, ErrDuplicateSlot or
// ErrDuplicateDevice if the lists are inconsistent. Hooks.DeviceAdded is
// called for every present device once validation has passed.
func New(opts Options) (*Set, error) {
	if len(opts.Slots) != len(opts.Devices) {
		return nil, fmt.Errorf("%w: %d slots, %d devices", ErrLengthMismatch, len(opts.Slots), len(opts.Devices))
	}

	s := &Set{
		slots:      make([]string, 0, len(opts.Slots)),
		slotIndex:  make(map[string]int, len(opts.Slots)),
		slotDevice: make(map[string]Device, len(opts.Slots)),
		devSlot:    make(map[string]string, len(opts.Slots)),
		reserved:   make(map[string]reservation),
		reporter:   opts.Reporter,
		hooks:      opts.Hooks,
		observer:   opts.Observer,
		sched:      opts.Scheduler,
		logger:     opts.Logger,
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	if s.hooks == nil {
		s.hooks = noopHooks{}
	}
	if s.reporter == nil {
		s.reporter = logReporter{logger: s.logger}
	}

	for i, slot := range opts.Slots {
		if slot == "" {
			return nil, fmt.Errorf("%w: slot %d has no name", ErrInvalidSlot, i)
		}
		if _, exists := s.slotIndex[slot]; exists {
			return nil, fmt.Errorf("%w: %q in %v", ErrDuplicateSlot, slot, opts.Slots)
		}
		dev := opts.Devices[i]
		if dev != nil {
			if other, taken := s.devSlot[dev.Name()]; taken {
				return nil, fmt.Errorf("%w: %q in slots %q and %q", ErrDuplicateDevice, dev.Name(), other, slot)
			}
			s.devSlot[dev.Name()] = slot
		}
		s.slots = append(s.slots, slot)
		s.slotIndex[slot] = i
		s.slotDevice[slot] = dev
	}

	for _, slot := range s.slots {
		if dev := s.slotDevice[slot]; dev != nil {
			s.hooks.DeviceAdded(slot, dev)
		}
	}

	s.logger.Debug("device set created", "slots", len(s.slots), "filled", len(s.devSlot))
	return s, nil
}

// Len returns the number of slots.
func (s *Set) Len() int {
	return len(s.slots)
}

// Slots returns all slot names in order.
func (s *Set) Slots() []string {
	out := make([]string, len(s.slots))
	copy(out, s.slots)
	return out
}

// Devices returns the device in each slot, in slot order (nil for empty slots).
func (s *Set) Devices() []Device {
	out := make([]Device, len(s.slots))
	for i, slot := range s.slots {
		out[i] = s.slotDevice[slot]
	}
	return out
}

// DevExists reports, per slot in order, whether the slot holds a device.
func (s *Set) DevExists() []bool {
	out := make([]bool, len(s.slots))
	for i, slot := range s.slots {
		out[i] = s.slotDevice[slot] != nil
	}
	return out
}

// FilledSlots returns the names of slots holding a device, in slot order.
func (s *Set) FilledSlots() []string {
	out := make([]string, 0, len(s.slots))
	for _, slot := range s.slots {
		if s.slotDevice[slot] != nil {
			out = append(out, slot)
		}
	}
	return out
}

// Lookup returns the device in slot, or nil if the slot is empty.
// Returns ErrUnknownSlot if the slot is not registered.
func (s *Set) Lookup(slot string) (Device, error) {
	dev, ok := s.slotDevice[slot]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSlot, slot)
	}
	return dev, nil
}

// Index returns the position of slot.
func (s *Set) Index(slot string) (int, error) {
	i, ok := s.slotIndex[slot]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSlot, slot)
	}
	return i, nil
}

// SlotAt returns the slot name at index.
func (s *Set) SlotAt(index int) (string, error) {
	if index < 0 || index >= len(s.slots) {
		return "", fmt.Errorf("%w: %d", ErrSlotIndex, index)
	}
	return s.slots[index], nil
}

// SlotForDevice returns the slot currently holding the named device.
func (s *Set) SlotForDevice(name string) (string, error) {
	slot, ok := s.devSlot[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDevice, name)
	}
	return slot, nil
}

// SlotsFromBools returns the slot names whose flag is true.
// The slots are not checked for devices.
func (s *Set) SlotsFromBools(flags []bool) ([]string, error) {
	if len(flags) != len(s.slots) {
		return nil, fmt.Errorf("%w: expected %d flags, got %d", ErrLengthMismatch, len(s.slots), len(flags))
	}
	var out []string
	for i, set := range flags {
		if set {
			out = append(out, s.slots[i])
		}
	}
	return out, nil
}

// ValidateSlots checks that every name is a registered slot holding a device.
// The error names all offending slots.
func (s *Set) ValidateSlots(slots []string) error {
	var unknown, empty []string
	for _, slot := range slots {
		dev, ok := s.slotDevice[slot]
		switch {
		case !ok:
			unknown = append(unknown, slot)
		case dev == nil:
			empty = append(empty, slot)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSlot, strings.Join(unknown, ", "))
	}
	if len(empty) > 0 {
		return fmt.Errorf("%w: %s", ErrEmptySlot, strings.Join(empty, ", "))
	}
	return nil
}

// ResolveSlots returns FilledSlots when slots is nil, otherwise validates
// slots and returns a copy. An empty non-nil list resolves to no slots.
func (s *Set) ResolveSlots(slots []string) ([]string, error) {
	if slots == nil {
		return s.FilledSlots(), nil
	}
	if err := s.ValidateSlots(slots); err != nil {
		return nil, err
	}
	out := make([]string, len(slots))
	copy(out, slots)
	return out, nil
}

// String implements fmt.Stringer.
func (s *Set) String() string {
	return fmt.Sprintf("Set(slots=%v)", s.slots)
}

// newGoverning creates a governing command, or validates a caller-supplied one.
func (s *Set) newGoverning(supplied *command.Command, text string) (*command.Command, error) {
	if supplied != nil {
		if supplied.IsDone() {
			return nil, fmt.Errorf("%w: %s", ErrGoverningDone, supplied.ID())
		}
		return supplied, nil
	}
	if s.sched != nil {
		return command.New(text, command.WithScheduler(s.sched)), nil
	}
	return command.New(text), nil
}

// watch reports the governing command's outcome to the observer once it is terminal.
func (s *Set) watch(kind RunKind, governing *command.Command, slots []string, failedSlots func() []string) {
	if s.observer == nil {
		return
	}
	started := time.Now().UTC()
	observer := s.observer
	governing.AddCallback(func(c *command.Command) {
		summary := Summary{
			ID:         c.ID(),
			Kind:       kind,
			Text:       c.Text(),
			Slots:      slots,
			State:      c.State(),
			Message:    c.Message(),
			StartedAt:  started,
			FinishedAt: time.Now().UTC(),
		}
		if failedSlots != nil {
			summary.FailedSlots = failedSlots()
		}
		observer.RunFinished(summary)
	})
}

// startRunning moves a Ready governing command to Running.
func startRunning(governing *command.Command) {
	if governing.State() == command.StateReady {
		_ = governing.SetState(command.StateRunning, "") //nolint:errcheck // checked Ready above
	}
}

// failedCommand returns an already-failed command, used when a device hands back nil.
func failedCommand(text, msg string) *command.Command {
	cmd := command.New(text)
	_ = cmd.SetState(command.StateFailed, msg) //nolint:errcheck // fresh command
	return cmd
}
