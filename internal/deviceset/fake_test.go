package deviceset

import (
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-devset/internal/command"
)

// fakeDevice hands out pending commands the test resolves by hand.
type fakeDevice struct {
	name string

	// autoConnect resolves Connect/Disconnect immediately with this state when set.
	autoConnect command.State

	issued     []*command.Command
	timeLimits []time.Duration
	released   int
	sequences  int // StartCommandSequence calls
	returnNil  bool
	journal    *[]string // shared issue log, "name: text"
}

func newFake(name string) *fakeDevice {
	return &fakeDevice{name: name}
}

func (d *fakeDevice) Name() string { return d.name }

func (d *fakeDevice) issue(text string, limit time.Duration) *command.Command {
	if d.returnNil {
		return nil
	}
	cmd := command.New(text)
	if d.journal != nil {
		*d.journal = append(*d.journal, d.name+": "+text)
	}
	d.issued = append(d.issued, cmd)
	d.timeLimits = append(d.timeLimits, limit)
	return cmd
}

func (d *fakeDevice) Connect(limit time.Duration) *command.Command {
	cmd := d.issue("connect", limit)
	if cmd != nil && d.autoConnect != "" {
		_ = cmd.SetState(d.autoConnect, "auto")
	}
	return cmd
}

func (d *fakeDevice) Disconnect(limit time.Duration) *command.Command {
	cmd := d.issue("disconnect", limit)
	if cmd != nil && d.autoConnect != "" {
		_ = cmd.SetState(d.autoConnect, "auto")
	}
	return cmd
}

func (d *fakeDevice) StartCommand(text string, limit time.Duration) *command.Command {
	return d.issue(text, limit)
}

func (d *fakeDevice) StartCommandSequence(texts []string, limit time.Duration) *command.Command {
	d.sequences++
	return d.issue(strings.Join(texts, "; "), limit)
}

func (d *fakeDevice) Release() { d.released++ }

// last returns the most recently issued command.
func (d *fakeDevice) last() *command.Command {
	if len(d.issued) == 0 {
		return nil
	}
	return d.issued[len(d.issued)-1]
}

type reportEntry struct {
	severity Severity
	msg      string
}

type recordingReporter struct {
	entries []reportEntry
}

func (r *recordingReporter) Report(severity Severity, msg string) {
	r.entries = append(r.entries, reportEntry{severity: severity, msg: msg})
}

type hookEvent struct {
	added  bool
	slot   string
	device string
}

type recordingHooks struct {
	events []hookEvent
}

func (h *recordingHooks) DeviceAdded(slot string, dev Device) {
	h.events = append(h.events, hookEvent{added: true, slot: slot, device: dev.Name()})
}

func (h *recordingHooks) DeviceRemoved(slot string, dev Device) {
	h.events = append(h.events, hookEvent{added: false, slot: slot, device: dev.Name()})
}

type recordingObserver struct {
	runs []Summary
}

func (o *recordingObserver) RunFinished(s Summary) {
	o.runs = append(o.runs, s)
}

// queueScheduler defers posted work until drain is called.
type queueScheduler struct {
	queue []func()
}

func (q *queueScheduler) Post(fn func()) { q.queue = append(q.queue, fn) }

func (q *queueScheduler) drain() {
	for len(q.queue) > 0 {
		fn := q.queue[0]
		q.queue = q.queue[1:]
		fn()
	}
}
