package deviceset

import (
	"fmt"

	"github.com/nerrad567/gray-logic-devset/internal/command"
)

// Connect connects the devices in slots (nil means every filled slot).
//
// The returned governing command is linked to each device's connect command:
// it ends Done if all succeed, otherwise Failed naming each failed connect.
func (s *Set) Connect(slots []string, opts RunOptions) (*command.Command, error) {
	return s.lifecycle(RunConnect, slots, opts, func(dev Device) *command.Command {
		return dev.Connect(opts.deviceTimeLimit())
	})
}

// Disconnect disconnects the devices in slots (nil means every filled slot).
func (s *Set) Disconnect(slots []string, opts RunOptions) (*command.Command, error) {
	return s.lifecycle(RunDisconnect, slots, opts, func(dev Device) *command.Command {
		return dev.Disconnect(opts.deviceTimeLimit())
	})
}

func (s *Set) lifecycle(kind RunKind, slots []string, opts RunOptions, start func(Device) *command.Command) (*command.Command, error) {
	resolved, err := s.ResolveSlots(slots)
	if err != nil {
		return nil, err
	}
	governing, err := s.newGoverning(opts.Governing, string(kind))
	if err != nil {
		return nil, err
	}

	targets := make([]string, 0, len(resolved))
	children := make([]*command.Command, 0, len(resolved))
	for _, slot := range resolved {
		dev := s.slotDevice[slot]
		if dev == nil {
			continue
		}
		cmd := start(dev)
		if cmd == nil {
			cmd = failedCommand(fmt.Sprintf("%s %s", kind, dev.Name()), "device returned no command")
		}
		targets = append(targets, slot)
		children = append(children, cmd)
	}

	s.watch(kind, governing, targets, func() []string {
		var failed []string
		for i, child := range children {
			if child.DidFail() {
				failed = append(failed, targets[i])
			}
		}
		return failed
	})

	s.logger.Debug("lifecycle run starting", "kind", string(kind), "id", governing.ID(), "slots", targets)
	command.Link(governing, children...)
	return governing, nil
}

// ReplaceDevice puts dev into slot, or empties the slot when dev is nil.
//
// Emptying releases the current device and resolves the governing command Done
// immediately. Otherwise dev is connected first; once that connect finishes,
// successfully or not, the old device is released and dev is installed. A
// failed connect is reported as a warning and the governing command still
// ends Done.
//
// Returns ErrUnknownSlot for an unregistered slot and ErrDuplicateDevice if
// dev's name is installed in, or being connected for, a different slot.
func (s *Set) ReplaceDevice(slot string, dev Device, opts RunOptions) (*command.Command, error) {
	if _, ok := s.slotDevice[slot]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSlot, slot)
	}
	if dev != nil {
		if other, taken := s.devSlot[dev.Name()]; taken && other != slot {
			return nil, fmt.Errorf("%w: %q already in slot %q", ErrDuplicateDevice, dev.Name(), other)
		}
		if r, pending := s.reserved[dev.Name()]; pending && r.slot != slot {
			return nil, fmt.Errorf("%w: %q being connected for slot %q", ErrDuplicateDevice, dev.Name(), r.slot)
		}
	}

	text := "replace " + slot
	if dev != nil {
		text += " with " + dev.Name()
	}
	governing, err := s.newGoverning(opts.Governing, text)
	if err != nil {
		return nil, err
	}
	s.watch(RunReplace, governing, []string{slot}, nil)

	if dev == nil {
		s.removeDevice(slot)
		_ = governing.SetState(command.StateDone, "") //nolint:errcheck // governing checked not done
		return governing, nil
	}

	startRunning(governing)
	conn := dev.Connect(opts.deviceTimeLimit())
	if conn == nil {
		conn = failedCommand("connect "+dev.Name(), "device returned no command")
	}
	s.reserve(dev.Name(), slot)
	conn.AddCallback(func(c *command.Command) {
		s.unreserve(dev.Name())
		if c.DidFail() {
			s.reporter.Report(SeverityWarning, fmt.Sprintf("%s: connect of replacement device %s failed: %s", slot, dev.Name(), c.Message()))
		}
		s.installDevice(slot, dev)
		if !governing.IsDone() {
			_ = governing.SetState(command.StateDone, "") //nolint:errcheck // checked IsDone above
		}
	})
	return governing, nil
}

// removeDevice releases and clears the device in slot, if any.
func (s *Set) removeDevice(slot string) {
	old := s.slotDevice[slot]
	if old == nil {
		return
	}
	s.hooks.DeviceRemoved(slot, old)
	old.Release()
	if s.devSlot[old.Name()] == slot {
		delete(s.devSlot, old.Name())
	}
	s.slotDevice[slot] = nil
	s.logger.Info("device removed", "slot", slot, "device", old.Name())
}

// installDevice swaps dev into slot in one step, releasing the previous device.
func (s *Set) installDevice(slot string, dev Device) {
	old := s.slotDevice[slot]
	if old == dev {
		return
	}
	s.removeDevice(slot)

	s.slotDevice[slot] = dev
	s.devSlot[dev.Name()] = slot
	s.hooks.DeviceAdded(slot, dev)
	s.logger.Info("device installed", "slot", slot, "device", dev.Name())
}

type reservation struct {
	slot  string
	count int
}

func (s *Set) reserve(name, slot string) {
	r := s.reserved[name]
	r.slot = slot
	r.count++
	s.reserved[name] = r
}

func (s *Set) unreserve(name string) {
	r, ok := s.reserved[name]
	if !ok {
		return
	}
	if r.count--; r.count <= 0 {
		delete(s.reserved, name)
		return
	}
	s.reserved[name] = r
}
