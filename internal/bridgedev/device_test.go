package bridgedev

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-devset/internal/command"
	"github.com/nerrad567/gray-logic-devset/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-devset/internal/reactor"
)

const (
	testProtocol = "knx"
	testDevice   = "axis-az"
	ackTopic     = "graylogic/ack/knx/axis-az"
	commandTopic = "graylogic/command/knx/axis-az"
	waitTimeout  = 2 * time.Second
)

// fakeTransport records MQTT traffic and can answer commands itself.
type fakeTransport struct {
	mu           sync.Mutex
	published    []CommandMessage
	topics       []string
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string

	subscribeErr error
	publishErr   error

	// respond returns the ack for a published command, or "" for none.
	respond func(msg CommandMessage) AckStatus
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers: make(map[string]mqtt.MessageHandler),
		respond:  func(CommandMessage) AckStatus { return AckAccepted },
	}
}

func (f *fakeTransport) PublishJSON(topic string, v any) error {
	f.mu.Lock()
	if f.publishErr != nil {
		f.mu.Unlock()
		return f.publishErr
	}
	msg := v.(CommandMessage)
	f.published = append(f.published, msg)
	f.topics = append(f.topics, topic)
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		if status := respond(msg); status != "" {
			f.ack(AckMessage{CommandID: msg.ID, DeviceID: msg.DeviceID, Status: status, Protocol: testProtocol})
		}
	}
	return nil
}

func (f *fakeTransport) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	f.unsubscribed = append(f.unsubscribed, topic)
	return nil
}

func (f *fakeTransport) QoS() byte { return 1 }

// ack delivers an acknowledgment the way the MQTT client would.
func (f *fakeTransport) ack(ack AckMessage) {
	f.mu.Lock()
	handler := f.handlers[ackTopic]
	f.mu.Unlock()
	if handler == nil {
		return
	}
	payload, _ := json.Marshal(ack) //nolint:errcheck // test data
	_ = handler(ackTopic, payload)  //nolint:errcheck // test data
}

func (f *fakeTransport) setRespond(fn func(CommandMessage) AckStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = fn
}

func (f *fakeTransport) messages() []CommandMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CommandMessage(nil), f.published...)
}

func (f *fakeTransport) unsubscribedTopics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.unsubscribed...)
}

func startLoop(t *testing.T) *reactor.Loop {
	t.Helper()
	loop := reactor.New()
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx) //nolint:errcheck // stopped by cancel
	t.Cleanup(cancel)
	return loop
}

func onLoop(t *testing.T, loop *reactor.Loop, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, loop.Call(ctx, fn))
}

func waitDone(t *testing.T, cmd *command.Command) {
	t.Helper()
	select {
	case <-cmd.Done():
	case <-time.After(waitTimeout):
		t.Fatalf("%v did not finish", cmd)
	}
}

func waitPublished(t *testing.T, tr *fakeTransport, n int) []CommandMessage {
	t.Helper()
	require.Eventually(t, func() bool { return len(tr.messages()) >= n }, waitTimeout, 5*time.Millisecond)
	return tr.messages()
}

// connected returns a device that has completed Connect.
func connected(t *testing.T, opts ...Option) (*Device, *fakeTransport, *reactor.Loop) {
	t.Helper()
	loop := startLoop(t)
	tr := newFakeTransport()
	dev := New(testDevice, testProtocol, tr, loop, opts...)

	var cmd *command.Command
	onLoop(t, loop, func() { cmd = dev.Connect(time.Second) })
	waitDone(t, cmd)
	require.Equal(t, command.StateDone, cmd.State(), cmd.Message())
	return dev, tr, loop
}

func TestConnect(t *testing.T) {
	dev, tr, loop := connected(t)

	msgs := tr.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, pingVerb, msgs[0].Command)
	assert.Equal(t, testDevice, msgs[0].DeviceID)
	assert.Equal(t, SourceDevset, msgs[0].Source)
	tr.mu.Lock()
	assert.Equal(t, commandTopic, tr.topics[0])
	tr.mu.Unlock()

	onLoop(t, loop, func() { assert.True(t, dev.IsConnected()) })
}

func TestConnect_AlreadyConnected(t *testing.T) {
	dev, tr, loop := connected(t)

	var cmd *command.Command
	onLoop(t, loop, func() { cmd = dev.Connect(time.Second) })
	waitDone(t, cmd)
	assert.Equal(t, command.StateDone, cmd.State())
	assert.Len(t, tr.messages(), 1, "no second ping")
}

func TestConnect_PingRejected(t *testing.T) {
	loop := startLoop(t)
	tr := newFakeTransport()
	tr.respond = func(CommandMessage) AckStatus { return AckFailed }
	dev := New(testDevice, testProtocol, tr, loop)

	var cmd *command.Command
	onLoop(t, loop, func() { cmd = dev.Connect(time.Second) })
	waitDone(t, cmd)

	assert.Equal(t, command.StateFailed, cmd.State())
	assert.Contains(t, cmd.Message(), "ping failed")
	onLoop(t, loop, func() { assert.False(t, dev.IsConnected()) })
}

func TestConnect_SubscribeError(t *testing.T) {
	loop := startLoop(t)
	tr := newFakeTransport()
	tr.subscribeErr = errors.New("broker gone")
	dev := New(testDevice, testProtocol, tr, loop)

	var cmd *command.Command
	onLoop(t, loop, func() { cmd = dev.Connect(time.Second) })
	waitDone(t, cmd)

	assert.Equal(t, command.StateFailed, cmd.State())
	assert.Contains(t, cmd.Message(), "broker gone")
	assert.Empty(t, tr.messages())
}

func TestStartCommand_NotConnected(t *testing.T) {
	loop := startLoop(t)
	dev := New(testDevice, testProtocol, newFakeTransport(), loop)

	var cmd *command.Command
	onLoop(t, loop, func() { cmd = dev.StartCommand("home", time.Second) })
	assert.Equal(t, command.StateFailed, cmd.State())
	assert.Equal(t, ErrNotConnected.Error(), cmd.Message())
}

func TestStartCommand_InvalidText(t *testing.T) {
	dev, tr, loop := connected(t)

	var cmd *command.Command
	onLoop(t, loop, func() { cmd = dev.StartCommand("move fast", time.Second) })
	assert.Equal(t, command.StateFailed, cmd.State())
	assert.Contains(t, cmd.Message(), "not key=value")
	assert.Len(t, tr.messages(), 1, "only the connect ping")
}

func TestStartCommand_Accepted(t *testing.T) {
	dev, tr, loop := connected(t)

	var cmd *command.Command
	onLoop(t, loop, func() { cmd = dev.StartCommand("move pos=12.5", time.Second) })
	waitDone(t, cmd)

	assert.Equal(t, command.StateDone, cmd.State())
	msgs := tr.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, cmd.ID(), msgs[1].ID)
	assert.Equal(t, "move", msgs[1].Command)
	assert.Equal(t, map[string]any{"pos": 12.5}, msgs[1].Parameters)
}

func TestStartCommand_QueuedThenAccepted(t *testing.T) {
	dev, tr, loop := connected(t)
	tr.setRespond(nil)

	var cmd *command.Command
	onLoop(t, loop, func() { cmd = dev.StartCommand("home", time.Second) })
	msgs := waitPublished(t, tr, 2)

	tr.ack(AckMessage{CommandID: msgs[1].ID, Status: AckQueued})
	onLoop(t, loop, func() {})
	assert.Equal(t, command.StateRunning, cmd.State())

	tr.ack(AckMessage{CommandID: msgs[1].ID, Status: AckAccepted})
	waitDone(t, cmd)
	assert.Equal(t, command.StateDone, cmd.State())
}

func TestStartCommand_FailedAck(t *testing.T) {
	dev, tr, loop := connected(t)
	tr.setRespond(nil)

	var cmd *command.Command
	onLoop(t, loop, func() { cmd = dev.StartCommand("home", time.Second) })
	msgs := waitPublished(t, tr, 2)

	tr.ack(AckMessage{
		CommandID: msgs[1].ID,
		Status:    AckFailed,
		Error:     &AckError{Code: "DEVICE_UNREACHABLE", Message: "axis not responding"},
	})
	waitDone(t, cmd)

	assert.Equal(t, command.StateFailed, cmd.State())
	assert.Equal(t, "DEVICE_UNREACHABLE: axis not responding", cmd.Message())
}

func TestStartCommand_TimeLimit(t *testing.T) {
	dev, tr, loop := connected(t)
	tr.setRespond(nil)

	var cmd *command.Command
	onLoop(t, loop, func() { cmd = dev.StartCommand("home", 20*time.Millisecond) })
	waitDone(t, cmd)

	assert.Equal(t, command.StateFailed, cmd.State())
	assert.Contains(t, cmd.Message(), "timed out")

	// A late ack changes nothing.
	tr.ack(AckMessage{CommandID: cmd.ID(), Status: AckAccepted})
	onLoop(t, loop, func() {})
	assert.Equal(t, command.StateFailed, cmd.State())
}

func TestStartCommand_PublishError(t *testing.T) {
	dev, tr, loop := connected(t)
	tr.mu.Lock()
	tr.publishErr = errors.New("not connected to broker")
	tr.mu.Unlock()

	var cmd *command.Command
	onLoop(t, loop, func() { cmd = dev.StartCommand("home", 0) })
	waitDone(t, cmd)

	assert.Equal(t, command.StateFailed, cmd.State())
	assert.Contains(t, cmd.Message(), "publishing command")
}

func TestStartCommandSequence(t *testing.T) {
	dev, tr, loop := connected(t)

	var cmd *command.Command
	onLoop(t, loop, func() {
		cmd = dev.StartCommandSequence([]string{"home", "move pos=1", "move pos=2"}, time.Second)
	})
	waitDone(t, cmd)

	assert.Equal(t, command.StateDone, cmd.State())
	assert.Equal(t, "home; move pos=1; move pos=2", cmd.Text())

	msgs := tr.messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "home", msgs[1].Command)
	assert.Equal(t, int64(1), msgs[2].Parameters["pos"])
	assert.Equal(t, int64(2), msgs[3].Parameters["pos"])
}

func TestStartCommandSequence_StopsAtFirstFailure(t *testing.T) {
	dev, tr, loop := connected(t)
	tr.setRespond(func(msg CommandMessage) AckStatus {
		if msg.Command == "jam" {
			return AckFailed
		}
		return AckAccepted
	})

	var cmd *command.Command
	onLoop(t, loop, func() {
		cmd = dev.StartCommandSequence([]string{"home", "jam", "move pos=2"}, time.Second)
	})
	waitDone(t, cmd)

	assert.Equal(t, command.StateFailed, cmd.State())
	assert.Contains(t, cmd.Message(), `"jam" failed`)
	assert.Len(t, tr.messages(), 3, "third command must not be sent")
}

func TestDisconnect_CancelsPending(t *testing.T) {
	dev, tr, loop := connected(t)
	tr.setRespond(nil)

	var pending, disc *command.Command
	onLoop(t, loop, func() { pending = dev.StartCommand("home", 0) })
	waitPublished(t, tr, 2)
	onLoop(t, loop, func() { disc = dev.Disconnect(time.Second) })

	waitDone(t, disc)
	assert.Equal(t, command.StateDone, disc.State())
	assert.Equal(t, command.StateCancelled, pending.State())
	assert.Equal(t, []string{ackTopic}, tr.unsubscribedTopics())
	onLoop(t, loop, func() { assert.False(t, dev.IsConnected()) })
}

func TestDisconnect_NeverConnected(t *testing.T) {
	loop := startLoop(t)
	tr := newFakeTransport()
	dev := New(testDevice, testProtocol, tr, loop)

	var cmd *command.Command
	onLoop(t, loop, func() { cmd = dev.Disconnect(time.Second) })
	assert.Equal(t, command.StateDone, cmd.State())
	assert.Empty(t, tr.unsubscribedTopics())
}

func TestRelease(t *testing.T) {
	dev, tr, loop := connected(t)
	tr.setRespond(nil)

	var pending *command.Command
	onLoop(t, loop, func() { pending = dev.StartCommand("home", 0) })
	msgs := waitPublished(t, tr, 2)

	onLoop(t, loop, func() {
		dev.Release()
		// Synchronous: pending work is already cancelled.
		assert.Equal(t, command.StateCancelled, pending.State())
		assert.False(t, dev.IsConnected())
	})

	require.Eventually(t, func() bool { return len(tr.unsubscribedTopics()) == 1 }, waitTimeout, 5*time.Millisecond)

	// Stale acks are ignored.
	tr.ack(AckMessage{CommandID: msgs[1].ID, Status: AckAccepted})
	onLoop(t, loop, func() {})
	assert.Equal(t, command.StateCancelled, pending.State())
}

func TestFinishFunc(t *testing.T) {
	var mu sync.Mutex
	var finished []string
	dev, _, loop := connected(t, WithFinishFunc(func(device string, cmd *command.Command, elapsed time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		assert.GreaterOrEqual(t, elapsed, time.Duration(0))
		finished = append(finished, device+":"+cmd.Text()+":"+string(cmd.State()))
	}))

	var cmd *command.Command
	onLoop(t, loop, func() { cmd = dev.StartCommand("home", time.Second) })
	waitDone(t, cmd)
	onLoop(t, loop, func() {}) // onFinish runs after the state change

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"axis-az:ping:done", "axis-az:home:done"}, finished)
}

func TestHandleMessage_Rejects(t *testing.T) {
	loop := startLoop(t)
	dev := New(testDevice, testProtocol, newFakeTransport(), loop)

	assert.Error(t, dev.handleMessage("graylogic/ack/knx/other", []byte(`{"command_id":"x"}`)))
	assert.Error(t, dev.handleMessage("graylogic/state/knx/axis-az", []byte(`{"command_id":"x"}`)))
	assert.Error(t, dev.handleMessage(ackTopic, []byte(`not json`)))
	assert.Error(t, dev.handleMessage(ackTopic, []byte(`{"status":"accepted"}`)))
	assert.NoError(t, dev.handleMessage(ackTopic, []byte(`{"command_id":"unknown","status":"accepted"}`)))
}
