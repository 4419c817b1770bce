package deviceset

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-devset/internal/command"
)

func TestConnect_AllFilledSlots(t *testing.T) {
	a, c := newFake("dev-a"), newFake("dev-c")
	s := newTestSet(t, []string{"a", "b", "c"}, []Device{a, nil, c})

	gov, err := s.Connect(nil, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, command.StateRunning, gov.State())

	finish(t, a.last(), command.StateDone, "")
	assert.False(t, gov.IsDone())
	finish(t, c.last(), command.StateDone, "")
	assert.Equal(t, command.StateDone, gov.State())
}

func TestConnect_Failure(t *testing.T) {
	obs := &recordingObserver{}
	a, b := newFake("dev-a"), newFake("dev-b")
	s, err := New(Options{Slots: []string{"a", "b"}, Devices: []Device{a, b}, Observer: obs})
	require.NoError(t, err)

	gov, err := s.Connect(nil, RunOptions{})
	require.NoError(t, err)
	finish(t, a.last(), command.StateFailed, "refused")
	finish(t, b.last(), command.StateDone, "")

	assert.Equal(t, command.StateFailed, gov.State())
	assert.Contains(t, gov.Message(), "refused")

	require.Len(t, obs.runs, 1)
	assert.Equal(t, RunConnect, obs.runs[0].Kind)
	assert.Equal(t, []string{"a"}, obs.runs[0].FailedSlots)
}

func TestConnect_SynchronousCompletion(t *testing.T) {
	a, b := newFake("dev-a"), newFake("dev-b")
	a.autoConnect = command.StateDone
	b.autoConnect = command.StateDone
	s := newTestSet(t, []string{"a", "b"}, []Device{a, b})

	gov, err := s.Connect(nil, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, command.StateDone, gov.State())
}

func TestConnect_NoFilledSlots(t *testing.T) {
	s := newTestSet(t, []string{"a"}, []Device{nil})

	gov, err := s.Connect(nil, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, command.StateDone, gov.State())
}

func TestDisconnect_Subset(t *testing.T) {
	a, b := newFake("dev-a"), newFake("dev-b")
	s := newTestSet(t, []string{"a", "b"}, []Device{a, b})

	gov, err := s.Disconnect([]string{"b"}, RunOptions{})
	require.NoError(t, err)

	assert.Empty(t, a.issued)
	require.Len(t, b.issued, 1)
	assert.Equal(t, "disconnect", b.last().Text())

	finish(t, b.last(), command.StateDone, "")
	assert.Equal(t, command.StateDone, gov.State())
}

func TestBulkOperations_UnknownSlotIssuesNothing(t *testing.T) {
	a := newFake("dev-a")
	s := newTestSet(t, []string{"a"}, []Device{a})

	_, err := s.Connect([]string{"a", "zz"}, RunOptions{})
	assert.True(t, errors.Is(err, ErrUnknownSlot))
	_, err = s.Disconnect([]string{"zz"}, RunOptions{})
	assert.True(t, errors.Is(err, ErrUnknownSlot))
	_, err = s.StartCommand([]string{"x"}, []string{"zz", "a"}, RunOptions{})
	assert.True(t, errors.Is(err, ErrUnknownSlot))
	_, err = s.ReplaceDevice("zz", newFake("dev-z"), RunOptions{})
	assert.True(t, errors.Is(err, ErrUnknownSlot))

	assert.Empty(t, a.issued)
}

func TestReplaceDevice_Remove(t *testing.T) {
	hooks := &recordingHooks{}
	a := newFake("dev-a")
	s, err := New(Options{Slots: []string{"a", "b"}, Devices: []Device{a, nil}, Hooks: hooks})
	require.NoError(t, err)

	gov, err := s.ReplaceDevice("a", nil, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, command.StateDone, gov.State())
	assert.Equal(t, 1, a.released)
	dev, err := s.Lookup("a")
	require.NoError(t, err)
	assert.Nil(t, dev)
	assert.Empty(t, s.FilledSlots())

	_, err = s.SlotForDevice("dev-a")
	assert.True(t, errors.Is(err, ErrUnknownDevice), "reverse index must drop the removed device")

	assert.Equal(t, hookEvent{added: false, slot: "a", device: "dev-a"}, hooks.events[len(hooks.events)-1])
}

func TestReplaceDevice_RemoveEmptySlot(t *testing.T) {
	s := newTestSet(t, []string{"a"}, []Device{nil})

	gov, err := s.ReplaceDevice("a", nil, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, command.StateDone, gov.State())
}

func TestReplaceDevice_InstallAfterConnect(t *testing.T) {
	hooks := &recordingHooks{}
	old, repl := newFake("old"), newFake("new")
	s, err := New(Options{Slots: []string{"a"}, Devices: []Device{old}, Hooks: hooks})
	require.NoError(t, err)

	gov, err := s.ReplaceDevice("a", repl, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, command.StateRunning, gov.State())

	// Nothing changes until the new device's connect finishes.
	dev, _ := s.Lookup("a")
	assert.Same(t, old, dev)
	assert.Equal(t, 0, old.released)

	finish(t, repl.last(), command.StateDone, "")

	assert.Equal(t, command.StateDone, gov.State())
	dev, _ = s.Lookup("a")
	assert.Same(t, repl, dev)
	assert.Equal(t, 1, old.released)

	slot, err := s.SlotForDevice("new")
	require.NoError(t, err)
	assert.Equal(t, "a", slot)
	_, err = s.SlotForDevice("old")
	assert.True(t, errors.Is(err, ErrUnknownDevice))

	assert.Equal(t, []hookEvent{
		{added: true, slot: "a", device: "old"},
		{added: false, slot: "a", device: "old"},
		{added: true, slot: "a", device: "new"},
	}, hooks.events)
}

func TestReplaceDevice_ConnectFailureStillInstalls(t *testing.T) {
	rep := &recordingReporter{}
	old, repl := newFake("old"), newFake("new")
	s, err := New(Options{Slots: []string{"a"}, Devices: []Device{old}, Reporter: rep})
	require.NoError(t, err)

	gov, err := s.ReplaceDevice("a", repl, RunOptions{})
	require.NoError(t, err)
	finish(t, repl.last(), command.StateFailed, "no route to host")

	assert.Equal(t, command.StateDone, gov.State())
	dev, _ := s.Lookup("a")
	assert.Same(t, repl, dev)
	assert.Equal(t, 1, old.released)

	require.Len(t, rep.entries, 1)
	assert.Equal(t, SeverityWarning, rep.entries[0].severity)
	assert.Contains(t, rep.entries[0].msg, "no route to host")
}

func TestReplaceDevice_IntoEmptySlot(t *testing.T) {
	repl := newFake("new")
	repl.autoConnect = command.StateDone
	s := newTestSet(t, []string{"a", "b"}, []Device{newFake("dev-a"), nil})

	gov, err := s.ReplaceDevice("b", repl, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, command.StateDone, gov.State())
	assert.Equal(t, []string{"a", "b"}, s.FilledSlots())
}

func TestReplaceDevice_SameInstanceNotReleased(t *testing.T) {
	a := newFake("dev-a")
	a.autoConnect = command.StateDone
	s := newTestSet(t, []string{"a"}, []Device{a})

	gov, err := s.ReplaceDevice("a", a, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, command.StateDone, gov.State())
	assert.Equal(t, 0, a.released)
	dev, _ := s.Lookup("a")
	assert.Same(t, a, dev)
}

func TestReplaceDevice_NameInOtherSlot(t *testing.T) {
	s := newTestSet(t, []string{"a", "b"}, []Device{newFake("dev-a"), nil})

	dup := newFake("dev-a")
	_, err := s.ReplaceDevice("b", dup, RunOptions{})
	assert.True(t, errors.Is(err, ErrDuplicateDevice))
	assert.Empty(t, dup.issued)
}

func TestReplaceDevice_Observer(t *testing.T) {
	obs := &recordingObserver{}
	s, err := New(Options{Slots: []string{"a"}, Devices: []Device{newFake("dev-a")}, Observer: obs})
	require.NoError(t, err)

	_, err = s.ReplaceDevice("a", nil, RunOptions{})
	require.NoError(t, err)

	require.Len(t, obs.runs, 1)
	assert.Equal(t, RunReplace, obs.runs[0].Kind)
	assert.Equal(t, []string{"a"}, obs.runs[0].Slots)
	assert.Equal(t, command.StateDone, obs.runs[0].State)
}

func TestReplaceDevice_NamePendingInOtherSlot(t *testing.T) {
	s := newTestSet(t, []string{"a", "b"}, []Device{nil, nil})

	first := newFake("dev-x")
	gov, err := s.ReplaceDevice("a", first, RunOptions{})
	require.NoError(t, err)
	require.Len(t, first.issued, 1)

	dup := newFake("dev-x")
	_, err = s.ReplaceDevice("b", dup, RunOptions{})
	assert.True(t, errors.Is(err, ErrDuplicateDevice))
	assert.Empty(t, dup.issued)

	require.NoError(t, first.issued[0].SetState(command.StateDone, ""))
	assert.True(t, gov.IsDone())
	slot, err := s.SlotForDevice("dev-x")
	require.NoError(t, err)
	assert.Equal(t, "a", slot)

	// Once installed, the name is still held by slot a.
	_, err = s.ReplaceDevice("b", dup, RunOptions{})
	assert.True(t, errors.Is(err, ErrDuplicateDevice))

	// Emptying a frees the name for b.
	_, err = s.ReplaceDevice("a", nil, RunOptions{})
	require.NoError(t, err)
	dup.autoConnect = command.StateDone
	_, err = s.ReplaceDevice("b", dup, RunOptions{})
	require.NoError(t, err)
	slot, err = s.SlotForDevice("dev-x")
	require.NoError(t, err)
	assert.Equal(t, "b", slot)
}

func TestReplaceDevice_SameSlotPendingTwice(t *testing.T) {
	s := newTestSet(t, []string{"a", "b"}, []Device{nil, nil})

	one, two := newFake("dev-x"), newFake("dev-x")
	_, err := s.ReplaceDevice("a", one, RunOptions{})
	require.NoError(t, err)
	_, err = s.ReplaceDevice("a", two, RunOptions{})
	require.NoError(t, err)

	require.NoError(t, one.issued[0].SetState(command.StateDone, ""))
	_, err = s.ReplaceDevice("a", nil, RunOptions{})
	require.NoError(t, err)
	_, err = s.ReplaceDevice("b", newFake("dev-x"), RunOptions{})
	assert.True(t, errors.Is(err, ErrDuplicateDevice), "second connect still pending for slot a")

	require.NoError(t, two.issued[0].SetState(command.StateDone, ""))
	dev, err := s.Lookup("a")
	require.NoError(t, err)
	assert.Same(t, two, dev)
}
