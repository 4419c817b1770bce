package command

import (
	"fmt"
	"strings"
)

// Link resolves governing once every child is terminal.
//
// The governing command ends Done if no child failed, otherwise Failed with
// a message naming each failed child in the order given. With no children
// the governing command is resolved Done immediately. An already terminal
// governing command is left untouched.
func Link(governing *Command, children ...*Command) {
	if len(children) == 0 {
		_ = governing.SetState(StateDone, "") //nolint:errcheck // no-op if already done
		return
	}

	if !governing.IsDone() && governing.State() == StateReady {
		_ = governing.SetState(StateRunning, "") //nolint:errcheck // checked above
	}

	check := func(*Command) {
		if governing.IsDone() {
			return
		}
		var failed []string
		for _, child := range children {
			if !child.IsDone() {
				return
			}
			if child.DidFail() {
				failed = append(failed, describeFailure(child))
			}
		}
		if len(failed) > 0 {
			_ = governing.SetState(StateFailed, strings.Join(failed, "; ")) //nolint:errcheck // raced to done is fine
			return
		}
		_ = governing.SetState(StateDone, "") //nolint:errcheck // raced to done is fine
	}

	for _, child := range children {
		child.AddCallback(check)
	}
}

func describeFailure(c *Command) string {
	msg := c.Message()
	if msg == "" {
		msg = string(c.State())
	}
	return fmt.Sprintf("%q failed: %s", c.Text(), msg)
}
