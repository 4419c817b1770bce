package command

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a Command.
type State string

// Command states.
const (
	StateReady     State = "ready"
	StateRunning   State = "running"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
	StateDone      State = "done"
)

// IsValid reports whether s is a known state.
func (s State) IsValid() bool {
	switch s {
	case StateReady, StateRunning, StateCancelled, StateFailed, StateDone:
		return true
	}
	return false
}

// IsTerminal reports whether s is a terminal state.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// Callback is invoked once when a command reaches a terminal state.
type Callback func(cmd *Command)

// Scheduler defers work onto an event loop.
// It is satisfied by *reactor.Loop.
type Scheduler interface {
	Post(fn func())
}

// Option configures a Command at construction.
type Option func(*Command)

// WithScheduler attaches a scheduler used for callbacks registered after
// the command is already terminal.
func WithScheduler(s Scheduler) Option {
	return func(c *Command) {
		c.sched = s
	}
}

// WithID overrides the generated command ID.
func WithID(id string) Option {
	return func(c *Command) {
		if id != "" {
			c.id = id
		}
	}
}

// Command is an asynchronous operation handle.
type Command struct {
	id        string
	text      string
	createdAt time.Time
	sched     Scheduler

	mu        sync.Mutex
	state     State
	message   string
	callbacks []Callback
	done      chan struct{}
}

// New creates a command in StateReady.
func New(text string, opts ...Option) *Command {
	c := &Command{
		id:        uuid.NewString(),
		text:      text,
		createdAt: time.Now().UTC(),
		state:     StateReady,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the unique command identifier.
func (c *Command) ID() string { return c.id }

// Text returns the originating command text.
func (c *Command) Text() string { return c.text }

// CreatedAt returns when the command was created (UTC).
func (c *Command) CreatedAt() time.Time { return c.createdAt }

// State returns the current state.
func (c *Command) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Message returns the message attached by the last state change.
func (c *Command) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message
}

// IsDone reports whether the command is terminal.
func (c *Command) IsDone() bool {
	return c.State().IsTerminal()
}

// DidFail reports whether the command ended Failed or Cancelled.
func (c *Command) DidFail() bool {
	s := c.State()
	return s == StateFailed || s == StateCancelled
}

// Done returns a channel that is closed when the command becomes terminal.
func (c *Command) Done() <-chan struct{} {
	return c.done
}

// SetState transitions the command.
//
// Moving into a terminal state fires every registered callback, in
// registration order, on the calling goroutine after the lock is released.
// Returns ErrAlreadyDone if the command is already terminal.
func (c *Command) SetState(state State, msg string) error {
	if !state.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, state)
	}

	c.mu.Lock()
	if c.state.IsTerminal() {
		current := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrAlreadyDone, c.id, current)
	}
	c.state = state
	c.message = msg

	var fire []Callback
	if state.IsTerminal() {
		fire = c.callbacks
		c.callbacks = nil
		close(c.done)
	}
	c.mu.Unlock()

	for _, cb := range fire {
		cb(c)
	}
	return nil
}

// AddCallback registers cb to run once the command is terminal.
func (c *Command) AddCallback(cb Callback) {
	if cb == nil {
		return
	}

	c.mu.Lock()
	if !c.state.IsTerminal() {
		c.callbacks = append(c.callbacks, cb)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if c.sched != nil {
		c.sched.Post(func() { cb(c) })
		return
	}
	cb(c)
}

// String implements fmt.Stringer.
func (c *Command) String() string {
	return fmt.Sprintf("Command(id=%s, text=%q, state=%s)", c.id, c.text, c.State())
}
