package bridgedev

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-devset/internal/command"
	"github.com/nerrad567/gray-logic-devset/internal/infrastructure/mqtt"
)

// pingVerb is the command Connect sends to prove the bridge is answering.
const pingVerb = "ping"

// Transport is the part of *mqtt.Client a Device uses.
// Its methods block and are never called on the loop goroutine.
type Transport interface {
	PublishJSON(topic string, v any) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	QoS() byte
}

// Loop runs device state changes on the actor's event loop.
// It is satisfied by *reactor.Loop.
type Loop interface {
	Post(fn func())
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

// Logger defines the logging interface used by the device.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// FinishFunc is told how long each bridge command took.
type FinishFunc func(device string, cmd *command.Command, elapsed time.Duration)

type pendingCmd struct {
	cmd     *command.Command
	started time.Time
	stop    func() bool
}

// Device is a deviceset.Device backed by a Gray Logic protocol bridge.
//
// Commands are published as CommandMessage JSON and completed by the
// bridge's AckMessage. All methods except Name must be called on the loop
// goroutine; MQTT calls run on their own goroutines and post results back.
type Device struct {
	name     string
	protocol string
	topics   mqtt.Topics

	transport Transport
	loop      Loop
	logger    Logger
	onFinish  FinishFunc

	// Loop-owned.
	connected  bool
	subscribed bool
	generation int
	pending    map[string]*pendingCmd
}

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the device logger.
func WithLogger(logger Logger) Option {
	return func(d *Device) { d.logger = logger }
}

// WithFinishFunc registers a callback for every finished bridge command.
func WithFinishFunc(fn FinishFunc) Option {
	return func(d *Device) { d.onFinish = fn }
}

// New creates a disconnected device for the bridge of the given protocol.
func New(name, protocol string, transport Transport, loop Loop, opts ...Option) *Device {
	d := &Device{
		name:      name,
		protocol:  protocol,
		transport: transport,
		loop:      loop,
		logger:    noopLogger{},
		pending:   make(map[string]*pendingCmd),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the bridge device ID.
func (d *Device) Name() string { return d.name }

// Protocol returns the bridge protocol, e.g. "knx".
func (d *Device) Protocol() string { return d.protocol }

// IsConnected reports whether Connect has completed successfully.
func (d *Device) IsConnected() bool { return d.connected }

// String implements fmt.Stringer.
func (d *Device) String() string {
	return fmt.Sprintf("bridgedev(%s/%s)", d.protocol, d.name)
}

func (d *Device) newCommand(text string) *command.Command {
	cmd := command.New(text, command.WithScheduler(d.loop))
	_ = cmd.SetState(command.StateRunning, "") //nolint:errcheck // fresh command
	return cmd
}

func (d *Device) resolved(text string, state command.State, msg string) *command.Command {
	cmd := command.New(text, command.WithScheduler(d.loop))
	_ = cmd.SetState(state, msg) //nolint:errcheck // fresh command
	return cmd
}

// background runs fn off the loop and posts done with its result, unless
// the device was released or disconnected in the meantime.
func (d *Device) background(fn func() error, done func(err error, stale bool)) {
	gen := d.generation
	go func() {
		err := fn()
		d.loop.Post(func() { done(err, gen != d.generation) })
	}()
}

// Connect subscribes to the device's ack topic and pings the bridge.
// Connecting an already connected device succeeds immediately.
func (d *Device) Connect(timeLimit time.Duration) *command.Command {
	if d.connected {
		return d.resolved("connect", command.StateDone, "already connected")
	}

	cmd := d.newCommand("connect")
	ackTopic := d.topics.BridgeAck(d.protocol, d.name)

	d.background(func() error {
		return d.transport.Subscribe(ackTopic, d.transport.QoS(), d.handleMessage)
	}, func(err error, stale bool) {
		if err != nil {
			_ = cmd.SetState(command.StateFailed, fmt.Sprintf("subscribing to %s: %v", ackTopic, err)) //nolint:errcheck // may be cancelled
			return
		}
		if stale {
			d.dropSubscription()
			_ = cmd.SetState(command.StateCancelled, ErrReleased.Error()) //nolint:errcheck // may be cancelled
			return
		}
		d.subscribed = true

		ping := d.publish(pingVerb, nil, pingVerb, timeLimit)
		ping.AddCallback(func(p *command.Command) {
			if p.DidFail() {
				_ = cmd.SetState(command.StateFailed, "ping failed: "+p.Message()) //nolint:errcheck // may be resolved
				return
			}
			d.connected = true
			_ = cmd.SetState(command.StateDone, "") //nolint:errcheck // may be resolved
		})
	})
	return cmd
}

// Disconnect cancels pending commands and drops the ack subscription.
func (d *Device) Disconnect(_ time.Duration) *command.Command {
	d.reset("device disconnected")
	if !d.subscribed {
		return d.resolved("disconnect", command.StateDone, "")
	}

	d.subscribed = false
	cmd := d.newCommand("disconnect")
	ackTopic := d.topics.BridgeAck(d.protocol, d.name)
	d.background(func() error {
		return d.transport.Unsubscribe(ackTopic)
	}, func(err error, _ bool) {
		if err != nil {
			_ = cmd.SetState(command.StateFailed, fmt.Sprintf("unsubscribing from %s: %v", ackTopic, err)) //nolint:errcheck // fresh
			return
		}
		_ = cmd.SetState(command.StateDone, "") //nolint:errcheck // fresh
	})
	return cmd
}

// Release synchronously cancels pending work and forgets the connection.
// The unsubscribe itself finishes in the background.
func (d *Device) Release() {
	d.reset(ErrReleased.Error())
	if d.subscribed {
		d.subscribed = false
		d.dropSubscription()
	}
}

func (d *Device) reset(reason string) {
	d.connected = false
	d.generation++
	pending := d.pending
	d.pending = make(map[string]*pendingCmd)
	for _, p := range pending {
		if p.stop != nil {
			p.stop()
		}
		_ = p.cmd.SetState(command.StateCancelled, reason) //nolint:errcheck // pending commands are not terminal
	}
}

func (d *Device) dropSubscription() {
	ackTopic := d.topics.BridgeAck(d.protocol, d.name)
	go func() {
		if err := d.transport.Unsubscribe(ackTopic); err != nil {
			d.logger.Warn("unsubscribe failed", "device", d.name, "topic", ackTopic, "error", err)
		}
	}()
}

// StartCommand publishes one command. Text is "verb key=value ...".
func (d *Device) StartCommand(text string, timeLimit time.Duration) *command.Command {
	if !d.connected {
		return d.resolved(text, command.StateFailed, ErrNotConnected.Error())
	}
	verb, params, err := ParseCommand(text)
	if err != nil {
		return d.resolved(text, command.StateFailed, err.Error())
	}
	return d.publish(text, params, verb, timeLimit)
}

// StartCommandSequence runs texts one after another. The sequence fails on
// the first failed command and is done after the last one succeeds.
func (d *Device) StartCommandSequence(texts []string, timeLimit time.Duration) *command.Command {
	seq := d.newCommand(strings.Join(texts, "; "))
	d.runSequence(seq, texts, 0, timeLimit)
	return seq
}

func (d *Device) runSequence(seq *command.Command, texts []string, i int, timeLimit time.Duration) {
	if i >= len(texts) {
		_ = seq.SetState(command.StateDone, "") //nolint:errcheck // guarded by IsDone below
		return
	}
	step := d.StartCommand(texts[i], timeLimit)
	step.AddCallback(func(c *command.Command) {
		if seq.IsDone() {
			return
		}
		if c.DidFail() {
			_ = seq.SetState(command.StateFailed, fmt.Sprintf("%q failed: %s", c.Text(), c.Message())) //nolint:errcheck // checked above
			return
		}
		d.runSequence(seq, texts, i+1, timeLimit)
	})
}

// publish sends a command to the bridge and tracks it until its ack.
func (d *Device) publish(text string, params map[string]any, verb string, timeLimit time.Duration) *command.Command {
	cmd := d.newCommand(text)
	p := &pendingCmd{cmd: cmd, started: time.Now()}
	d.pending[cmd.ID()] = p

	if timeLimit > 0 {
		id := cmd.ID()
		p.stop = d.loop.AfterFunc(timeLimit, func() {
			d.finish(id, command.StateFailed, fmt.Sprintf("timed out after %v", timeLimit))
		})
	}

	msg := CommandMessage{
		ID:         cmd.ID(),
		Timestamp:  time.Now().UTC(),
		DeviceID:   d.name,
		Command:    verb,
		Parameters: params,
		Source:     SourceDevset,
	}
	topic := d.topics.BridgeCommand(d.protocol, d.name)
	id := cmd.ID()
	d.background(func() error {
		return d.transport.PublishJSON(topic, msg)
	}, func(err error, _ bool) {
		if err != nil {
			d.finish(id, command.StateFailed, fmt.Sprintf("publishing command: %v", err))
		}
	})
	return cmd
}

// finish resolves a pending command. Unknown IDs are ignored.
func (d *Device) finish(id string, state command.State, msg string) {
	p, ok := d.pending[id]
	if !ok {
		return
	}
	delete(d.pending, id)
	if p.stop != nil {
		p.stop()
	}
	_ = p.cmd.SetState(state, msg) //nolint:errcheck // pending commands are not terminal
	if d.onFinish != nil {
		d.onFinish(d.name, p.cmd, time.Since(p.started))
	}
}

// handleMessage receives acks on the MQTT goroutine.
func (d *Device) handleMessage(topic string, payload []byte) error {
	category, protocol, device, ok := mqtt.ParseBridgeTopic(topic)
	if !ok || category != "ack" || protocol != d.protocol || device != d.name {
		return fmt.Errorf("unexpected topic %q", topic)
	}

	var ack AckMessage
	if err := json.Unmarshal(payload, &ack); err != nil {
		return fmt.Errorf("parsing ack: %w", err)
	}
	if ack.CommandID == "" {
		return fmt.Errorf("ack without command_id")
	}

	d.loop.Post(func() { d.handleAck(ack) })
	return nil
}

func (d *Device) handleAck(ack AckMessage) {
	switch ack.Status {
	case AckAccepted:
		d.finish(ack.CommandID, command.StateDone, "")
	case AckQueued:
		d.logger.Debug("command queued by bridge", "device", d.name, "command_id", ack.CommandID)
	case AckFailed, AckTimeout:
		d.finish(ack.CommandID, command.StateFailed, ack.describe())
	default:
		d.logger.Warn("unknown ack status", "device", d.name, "status", ack.Status, "command_id", ack.CommandID)
	}
}
