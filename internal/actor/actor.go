package actor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-devset/internal/command"
	"github.com/nerrad567/gray-logic-devset/internal/deviceset"
	"github.com/nerrad567/gray-logic-devset/internal/reactor"
)

// messageQueueSize bounds reported messages waiting to be published.
const messageQueueSize = 256

// Logger defines the logging interface used by the Actor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher sends JSON to an MQTT topic. Satisfied by *mqtt.Client.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// Message is one entry of the actor's error-reporting channel.
type Message struct {
	ActorID   string             `json:"actor_id"`
	Severity  deviceset.Severity `json:"severity"`
	Text      string             `json:"text"`
	Timestamp time.Time          `json:"timestamp"`
}

// MessageSink receives every reported message off the loop.
type MessageSink func(Message)

// Options configures an Actor.
type Options struct {
	// ID names the actor in topics and run records. Required.
	ID string

	// Loop runs all device-set work. Required.
	Loop *reactor.Loop

	// Slots and Devices are passed to deviceset.New.
	Slots   []string
	Devices []deviceset.Device

	// TimeLimit is the default per-command limit; see deviceset.RunOptions.
	TimeLimit time.Duration

	// Observer is told about every finished run. Optional.
	Observer deviceset.Observer

	// Publisher and MessageTopic enable MQTT publishing of reported
	// messages. Optional.
	Publisher    Publisher
	MessageTopic string

	Logger Logger
}

// Actor owns the event loop, the device set and the error-reporting channel.
type Actor struct {
	id        string
	loop      *reactor.Loop
	set       *deviceset.Set
	timeLimit time.Duration
	logger    Logger

	publisher Publisher
	topic     string
	messages  chan Message

	mu         sync.Mutex
	sinks      []MessageSink
	startup    *command.Command
	startupSet chan struct{}
	started    bool
}

// New creates the actor and its device set. Construction errors from the
// set (mismatched lists, duplicate names) are returned unchanged.
func New(opts Options) (*Actor, error) {
	if opts.ID == "" {
		return nil, ErrMissingID
	}
	if opts.Loop == nil {
		return nil, ErrMissingLoop
	}

	a := &Actor{
		id:        opts.ID,
		loop:      opts.Loop,
		timeLimit: opts.TimeLimit,
		logger:    opts.Logger,
		publisher: opts.Publisher,
		topic:     opts.MessageTopic,
		messages:  make(chan Message, messageQueueSize),

		startupSet: make(chan struct{}),
	}
	if a.logger == nil {
		a.logger = noopLogger{}
	}

	set, err := deviceset.New(deviceset.Options{
		Slots:     opts.Slots,
		Devices:   opts.Devices,
		Reporter:  a,
		Hooks:     a,
		Observer:  opts.Observer,
		Scheduler: opts.Loop,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating device set: %w", err)
	}
	a.set = set
	return a, nil
}

// ID returns the actor ID.
func (a *Actor) ID() string { return a.id }

// Loop returns the actor's event loop.
func (a *Actor) Loop() *reactor.Loop { return a.loop }

// TimeLimit returns the default per-command time limit.
func (a *Actor) TimeLimit() time.Duration { return a.timeLimit }

// Do runs fn on the loop with the device set and waits for it.
// It must not be called from the loop goroutine.
func (a *Actor) Do(ctx context.Context, fn func(set *deviceset.Set)) error {
	return a.loop.Call(ctx, func() { fn(a.set) })
}

// AddMessageSink registers fn for every reported message.
func (a *Actor) AddMessageSink(fn MessageSink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sinks = append(a.sinks, fn)
}

// Start begins delivering reported messages and, when connect is true,
// connects every filled slot. The actor is ready once that connect finishes.
// Delivery stops when ctx is cancelled.
func (a *Actor) Start(ctx context.Context, connect bool) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	a.mu.Unlock()

	go a.deliver(ctx)

	a.loop.Post(func() {
		startup := command.New("startup", command.WithScheduler(a.loop))
		a.setStartup(startup)
		if !connect {
			_ = startup.SetState(command.StateDone, "connect on start disabled") //nolint:errcheck // fresh command
			return
		}

		startup.AddCallback(func(c *command.Command) {
			if c.DidFail() {
				a.Report(deviceset.SeverityFailure, "startup connect failed: "+c.Message())
				return
			}
			a.logger.Info("actor ready", "actor_id", a.id, "slots", a.set.FilledSlots())
		})
		if _, err := a.set.Connect(nil, deviceset.RunOptions{Governing: startup, TimeLimit: a.timeLimit}); err != nil {
			_ = startup.SetState(command.StateFailed, err.Error()) //nolint:errcheck // fresh command
		}
	})
	return nil
}

func (a *Actor) setStartup(c *command.Command) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.startup = c
	close(a.startupSet)
}

func (a *Actor) startupCommand() *command.Command {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.startup
}

// IsReady reports whether the startup connect has finished, whatever its outcome.
func (a *Actor) IsReady() bool {
	c := a.startupCommand()
	return c != nil && c.IsDone()
}

// DidFail reports whether the startup connect failed.
func (a *Actor) DidFail() bool {
	c := a.startupCommand()
	return c != nil && c.DidFail()
}

// WaitReady blocks until the startup connect finishes or ctx is done.
func (a *Actor) WaitReady(ctx context.Context) error {
	select {
	case <-a.startupSet:
	case <-ctx.Done():
		return ctx.Err()
	}

	c := a.startupCommand()
	select {
	case <-c.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if c.DidFail() {
		return fmt.Errorf("%w: %s", ErrStartupFailed, c.Message())
	}
	return nil
}

// Report implements deviceset.Reporter. The message is logged at once and
// queued for publishing; when the queue is full it is only logged.
func (a *Actor) Report(severity deviceset.Severity, msg string) {
	switch severity {
	case deviceset.SeverityFailure:
		a.logger.Error(msg, "actor_id", a.id, "severity", string(severity))
	case deviceset.SeverityWarning:
		a.logger.Warn(msg, "actor_id", a.id, "severity", string(severity))
	case deviceset.SeverityDebug:
		a.logger.Debug(msg, "actor_id", a.id, "severity", string(severity))
	default:
		a.logger.Info(msg, "actor_id", a.id, "severity", string(severity))
	}

	m := Message{ActorID: a.id, Severity: severity, Text: msg, Timestamp: time.Now().UTC()}
	select {
	case a.messages <- m:
	default:
		a.logger.Warn("message queue full, dropping", "actor_id", a.id)
	}
}

func (a *Actor) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-a.messages:
			if a.publisher != nil && a.topic != "" {
				if err := a.publisher.PublishJSON(a.topic, m); err != nil {
					a.logger.Warn("publishing actor message failed", "error", err)
				}
			}
			a.mu.Lock()
			sinks := append([]MessageSink(nil), a.sinks...)
			a.mu.Unlock()
			for _, sink := range sinks {
				sink(m)
			}
		}
	}
}

// DeviceAdded implements deviceset.Hooks.
func (a *Actor) DeviceAdded(slot string, dev deviceset.Device) {
	a.logger.Info("device installed", "actor_id", a.id, "slot", slot, "device", dev.Name())
}

// DeviceRemoved implements deviceset.Hooks.
func (a *Actor) DeviceRemoved(slot string, dev deviceset.Device) {
	a.logger.Info("device removed", "actor_id", a.id, "slot", slot, "device", dev.Name())
}
