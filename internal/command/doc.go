// Package command provides the asynchronous command handle used throughout
// the device set.
//
// A Command represents one asynchronous device operation. It starts in
// StateReady, usually moves to StateRunning, and ends in exactly one terminal
// state: StateDone, StateFailed or StateCancelled. Once terminal its state and
// message never change again.
//
// # Completion Callbacks
//
// Callbacks registered with AddCallback fire exactly once, after the command
// becomes terminal. A callback registered on a command that is already
// terminal still fires once; if the command has a Scheduler attached the
// callback is posted to it instead of running inside AddCallback, so callers
// never observe re-entrant completion handling.
//
//	cmd := command.New("move az 10", command.WithScheduler(loop))
//	cmd.AddCallback(func(c *command.Command) {
//	    if c.DidFail() {
//	        log.Warn("move failed", "message", c.Message())
//	    }
//	})
//	cmd.SetState(command.StateDone, "")
//
// # Linking
//
// Link ties a governing command to a set of child commands: the governing
// command becomes Done once every child is Done, or Failed if any child
// failed.
//
// # Thread Safety
//
// State reads are safe from any goroutine. Gray Logic drives all state
// transitions from the reactor loop; SetState itself is mutex protected so a
// stray transition from another goroutine cannot corrupt the command.
package command
