package deviceset

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-devset/internal/command"
)

// DefaultTimeLimit is the per-command time limit used when RunOptions.TimeLimit is zero.
const DefaultTimeLimit = 5 * time.Second

// NoTimeLimit disables the per-command time limit.
// Devices receive a zero duration, which they treat as "no limit".
const NoTimeLimit time.Duration = -1

// Device is an addressable endpoint that can be connected, disconnected and
// sent commands. Every operation returns immediately with a command handle
// that completes asynchronously.
//
// A nil Device in a slot means the slot is empty.
type Device interface {
	// Name is stable and must be unique among the devices installed in a Set.
	Name() string

	// Connect starts connecting the device.
	Connect(timeLimit time.Duration) *command.Command

	// Disconnect starts disconnecting the device.
	Disconnect(timeLimit time.Duration) *command.Command

	// StartCommand starts a single command.
	StartCommand(text string, timeLimit time.Duration) *command.Command

	// StartCommandSequence runs the commands back to back; the returned
	// command fails as soon as one of them fails.
	StartCommandSequence(texts []string, timeLimit time.Duration) *command.Command

	// Release synchronously resets the device and frees its resources.
	// Called when the device is removed from its slot.
	Release()
}

// Severity tags a message sent to the error-reporting channel.
type Severity string

// Message severities, matching the actor protocol message codes.
const (
	SeverityDebug   Severity = "d"
	SeverityInfo    Severity = "i"
	SeverityWarning Severity = "w"
	SeverityFailure Severity = "f"
)

// Reporter is the one-way error-reporting channel.
// It is satisfied by *actor.Actor.
type Reporter interface {
	Report(severity Severity, msg string)
}

// Hooks are notified when a device enters or leaves a slot.
// Implementations subscribe to or unsubscribe from device state here.
type Hooks interface {
	DeviceAdded(slot string, dev Device)
	DeviceRemoved(slot string, dev Device)
}

// RunKind identifies which bulk operation produced a Summary.
type RunKind string

// Run kinds.
const (
	RunCommand    RunKind = "command"
	RunConnect    RunKind = "connect"
	RunDisconnect RunKind = "disconnect"
	RunReplace    RunKind = "replace"
)

// Summary describes a finished bulk operation.
type Summary struct {
	ID          string        // governing command ID
	Kind        RunKind
	Text        string        // governing command text
	Slots       []string      // target slots in issue order
	State       command.State // final governing state
	Message     string        // final governing message
	FailedSlots []string      // detection order; command runs only
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Duration returns how long the operation took.
func (s Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Observer is told about every governing command a Set resolves or links.
// RunFinished is called on the reactor loop and must not block.
type Observer interface {
	RunFinished(summary Summary)
}

// CmdInfo is passed to an EachFunc when one device command finishes.
type CmdInfo struct {
	Slot      string
	Device    Device
	Cmd       *command.Command
	Governing *command.Command
}

// String implements fmt.Stringer.
func (i CmdInfo) String() string {
	return fmt.Sprintf("CmdInfo(slot=%s, cmd=%q, state=%s)", i.Slot, i.Cmd.Text(), i.Cmd.State())
}

// EachFunc is called once per finished device command of a dispatch run.
//
// It may return a follow-up command for the same slot; the run then waits
// for that command too (the EachFunc is not called again for it). Returning
// an error marks the slot failed.
type EachFunc func(info CmdInfo) (*command.Command, error)

// RunOptions configures a bulk operation.
type RunOptions struct {
	// Governing is resolved when the operation finishes. If nil a new
	// command is created. It must not already be terminal.
	Governing *command.Command

	// TimeLimit is forwarded to each device command.
	// Zero means DefaultTimeLimit; NoTimeLimit disables it.
	TimeLimit time.Duration

	// OnEach is called as each device command finishes (dispatch only).
	OnEach EachFunc
}

// deviceTimeLimit converts a RunOptions time limit into the value passed to devices.
func (o RunOptions) deviceTimeLimit() time.Duration {
	switch {
	case o.TimeLimit == 0:
		return DefaultTimeLimit
	case o.TimeLimit < 0:
		return 0
	default:
		return o.TimeLimit
	}
}

// SlotCommand is one entry of an ordered command map.
// A single command runs with StartCommand, more than one with
// StartCommandSequence. Sequence sends even a single command through
// StartCommandSequence.
type SlotCommand struct {
	Slot     string
	Commands []string
	Sequence bool
}

// Logger defines the logging interface used by the Set.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// noopHooks ignores device changes.
type noopHooks struct{}

func (noopHooks) DeviceAdded(string, Device)   {}
func (noopHooks) DeviceRemoved(string, Device) {}

// logReporter is the fallback Reporter when none is configured.
type logReporter struct {
	logger Logger
}

func (r logReporter) Report(severity Severity, msg string) {
	switch severity {
	case SeverityFailure:
		r.logger.Error(msg, "severity", string(severity))
	case SeverityWarning:
		r.logger.Warn(msg, "severity", string(severity))
	case SeverityDebug:
		r.logger.Debug(msg, "severity", string(severity))
	default:
		r.logger.Info(msg, "severity", string(severity))
	}
}
