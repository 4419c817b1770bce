package deviceset

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-devset/internal/command"
)

// StartCommand sends the same command, or the same sequence of commands, to
// every slot in slots. A nil slots list means every filled slot. A single
// command is started with Device.StartCommand.
//
// The returned governing command resolves once every device command (and any
// follow-up returned by opts.OnEach) is terminal. Configuration errors are
// returned before any device is touched.
func (s *Set) StartCommand(cmds []string, slots []string, opts RunOptions) (*command.Command, error) {
	return s.startUniform(cmds, slots, false, opts)
}

// StartCommandSequence is StartCommand, except that every device receives
// cmds through Device.StartCommandSequence, even when there is only one.
func (s *Set) StartCommandSequence(cmds []string, slots []string, opts RunOptions) (*command.Command, error) {
	return s.startUniform(cmds, slots, true, opts)
}

func (s *Set) startUniform(cmds []string, slots []string, sequence bool, opts RunOptions) (*command.Command, error) {
	if len(cmds) == 0 {
		return nil, ErrNoCommand
	}
	resolved, err := s.ResolveSlots(slots)
	if err != nil {
		return nil, err
	}

	entries := make([]SlotCommand, len(resolved))
	for i, slot := range resolved {
		entries[i] = SlotCommand{Slot: slot, Commands: cmds, Sequence: sequence}
	}
	return s.StartCommandMap(entries, opts)
}

// StartCommandMap sends each entry's commands to its slot, in entry order.
//
// Returns ErrNoCommand for an entry without commands, ErrDuplicateSlot if a
// slot appears twice, ErrUnknownSlot or ErrEmptySlot from ValidateSlots, and
// ErrGoverningDone if opts.Governing is already terminal.
func (s *Set) StartCommandMap(entries []SlotCommand, opts RunOptions) (*command.Command, error) {
	slots := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if len(e.Commands) == 0 {
			return nil, fmt.Errorf("%w: slot %q", ErrNoCommand, e.Slot)
		}
		if _, dup := seen[e.Slot]; dup {
			return nil, fmt.Errorf("%w: %q in command map", ErrDuplicateSlot, e.Slot)
		}
		seen[e.Slot] = struct{}{}
		slots = append(slots, e.Slot)
	}
	if err := s.ValidateSlots(slots); err != nil {
		return nil, err
	}

	governing, err := s.newGoverning(opts.Governing, describeEntries(entries))
	if err != nil {
		return nil, err
	}

	run := &dispatchRun{
		set:       s,
		governing: governing,
		onEach:    opts.OnEach,
		timeLimit: opts.deviceTimeLimit(),
		order:     slots,
		current:   make(map[string]*command.Command, len(entries)),
		awaiting:  make(map[string]bool, len(entries)),
		failedSet: make(map[string]struct{}),
	}
	s.watch(RunCommand, governing, slots, run.failedSlots)

	s.logger.Debug("dispatch run starting", "id", governing.ID(), "slots", slots)
	run.start(entries)
	return governing, nil
}

// dispatchRun tracks one multi-slot command until its governing command resolves.
// All of its state is touched only from the goroutine that owns the Set.
type dispatchRun struct {
	set       *Set
	governing *command.Command
	onEach    EachFunc
	timeLimit time.Duration

	order     []string
	current   map[string]*command.Command
	awaiting  map[string]bool // slot -> completion callback still owed
	failed    []string        // detection order
	failedSet map[string]struct{}

	// dispatching suppresses completion checks while commands are being issued,
	// so a device that finishes synchronously cannot resolve the run early.
	dispatching bool
}

func (r *dispatchRun) start(entries []SlotCommand) {
	startRunning(r.governing)

	r.dispatching = true
	for _, e := range entries {
		dev := r.set.slotDevice[e.Slot]
		var cmd *command.Command
		if len(e.Commands) == 1 && !e.Sequence {
			cmd = dev.StartCommand(e.Commands[0], r.timeLimit)
		} else {
			cmd = dev.StartCommandSequence(e.Commands, r.timeLimit)
		}
		if cmd == nil {
			cmd = failedCommand(strings.Join(e.Commands, "; "), "device returned no command")
		}

		slot := e.Slot
		r.current[slot] = cmd
		r.awaiting[slot] = true
		cmd.AddCallback(func(c *command.Command) { r.deviceFinished(slot, dev, c) })
	}
	r.dispatching = false

	r.checkDone()
}

// deviceFinished runs once for the first command issued to a slot.
func (r *dispatchRun) deviceFinished(slot string, dev Device, cmd *command.Command) {
	if cmd.DidFail() {
		r.markFailed(slot)
	}
	r.current[slot] = cmd

	if r.onEach != nil {
		next, err := r.callOnEach(CmdInfo{Slot: slot, Device: dev, Cmd: cmd, Governing: r.governing})
		if err != nil {
			r.markFailed(slot)
			r.set.reporter.Report(SeverityFailure, fmt.Sprintf("%s command %q callback failed: %v", slot, cmd.Text(), err))
		} else if next != nil && next != cmd {
			r.current[slot] = next
			next.AddCallback(func(c *command.Command) { r.followUpFinished(slot, c) })
			return
		}
	}

	r.awaiting[slot] = false
	r.checkDone()
}

// followUpFinished runs for a command chained by OnEach. OnEach is not called again.
func (r *dispatchRun) followUpFinished(slot string, cmd *command.Command) {
	if r.current[slot] == cmd {
		if cmd.DidFail() {
			r.markFailed(slot)
		}
		r.awaiting[slot] = false
	}
	r.checkDone()
}

// callOnEach invokes the per-completion callback, converting a panic into an error.
func (r *dispatchRun) callOnEach(info CmdInfo) (next *command.Command, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			next = nil
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return r.onEach(info)
}

// checkDone resolves the governing command once every tracked slot is settled.
func (r *dispatchRun) checkDone() {
	if r.dispatching || r.governing.IsDone() {
		return
	}
	for _, slot := range r.order {
		if r.awaiting[slot] || !r.current[slot].IsDone() {
			return
		}
	}
	for _, slot := range r.order {
		if r.current[slot].DidFail() {
			r.markFailed(slot)
		}
	}

	if len(r.failed) > 0 {
		msg := "command failed for " + strings.Join(r.failed, ", ")
		r.set.logger.Warn("dispatch run failed", "id", r.governing.ID(), "failed_slots", r.failed)
		_ = r.governing.SetState(command.StateFailed, msg) //nolint:errcheck // checked IsDone above
		return
	}
	r.set.logger.Debug("dispatch run done", "id", r.governing.ID())
	_ = r.governing.SetState(command.StateDone, "") //nolint:errcheck // checked IsDone above
}

func (r *dispatchRun) markFailed(slot string) {
	if _, ok := r.failedSet[slot]; ok {
		return
	}
	r.failedSet[slot] = struct{}{}
	r.failed = append(r.failed, slot)
}

func (r *dispatchRun) failedSlots() []string {
	if len(r.failed) == 0 {
		return nil
	}
	out := make([]string, len(r.failed))
	copy(out, r.failed)
	return out
}

// describeEntries builds the text of a governing command created for a run.
func describeEntries(entries []SlotCommand) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.Slot + ": " + strings.Join(e.Commands, "; ")
	}
	return strings.Join(parts, " | ")
}
