package deviceset

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSet(t *testing.T, slots []string, devs []Device) *Set {
	t.Helper()
	s, err := New(Options{Slots: slots, Devices: devs})
	require.NoError(t, err)
	return s
}

func TestNew_FilledSlotsInOrder(t *testing.T) {
	a, c := newFake("dev-a"), newFake("dev-c")
	s := newTestSet(t, []string{"a", "b", "c", "d"}, []Device{a, nil, c, nil})

	assert.Equal(t, 4, s.Len())
	assert.Equal(t, []string{"a", "b", "c", "d"}, s.Slots())
	assert.Equal(t, []string{"a", "c"}, s.FilledSlots())
	assert.Equal(t, []bool{true, false, true, false}, s.DevExists())
	assert.Equal(t, []Device{a, nil, c, nil}, s.Devices())
}

func TestNew_Empty(t *testing.T) {
	s := newTestSet(t, nil, nil)
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.FilledSlots())
}

func TestNew_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		slots   []string
		devs    []Device
		wantErr error
	}{
		{"length mismatch", []string{"a", "b"}, []Device{newFake("x")}, ErrLengthMismatch},
		{"duplicate slot", []string{"a", "a"}, []Device{nil, nil}, ErrDuplicateSlot},
		{"empty slot name", []string{"a", ""}, []Device{nil, nil}, ErrInvalidSlot},
		{"duplicate device", []string{"a", "b"}, []Device{newFake("x"), newFake("x")}, ErrDuplicateDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hooks := &recordingHooks{}
			s, err := New(Options{Slots: tt.slots, Devices: tt.devs, Hooks: hooks})
			assert.Nil(t, s)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Empty(t, hooks.events, "no device should be subscribed on failure")
		})
	}
}

func TestNew_HooksCalledForPresentDevices(t *testing.T) {
	hooks := &recordingHooks{}
	_, err := New(Options{
		Slots:   []string{"a", "b", "c"},
		Devices: []Device{newFake("dev-a"), nil, newFake("dev-c")},
		Hooks:   hooks,
	})
	require.NoError(t, err)
	assert.Equal(t, []hookEvent{
		{added: true, slot: "a", device: "dev-a"},
		{added: true, slot: "c", device: "dev-c"},
	}, hooks.events)
}

func TestSet_Lookup(t *testing.T) {
	a := newFake("dev-a")
	s := newTestSet(t, []string{"a", "b"}, []Device{a, nil})

	dev, err := s.Lookup("a")
	require.NoError(t, err)
	assert.Same(t, a, dev)

	dev, err = s.Lookup("b")
	require.NoError(t, err)
	assert.Nil(t, dev)

	_, err = s.Lookup("zz")
	assert.True(t, errors.Is(err, ErrUnknownSlot))
}

func TestSet_IndexAndSlotAt(t *testing.T) {
	s := newTestSet(t, []string{"a", "b"}, []Device{nil, nil})

	i, err := s.Index("b")
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	_, err = s.Index("c")
	assert.True(t, errors.Is(err, ErrUnknownSlot))

	slot, err := s.SlotAt(0)
	require.NoError(t, err)
	assert.Equal(t, "a", slot)

	_, err = s.SlotAt(2)
	assert.True(t, errors.Is(err, ErrSlotIndex))
	_, err = s.SlotAt(-1)
	assert.True(t, errors.Is(err, ErrSlotIndex))
}

func TestSet_SlotForDevice(t *testing.T) {
	s := newTestSet(t, []string{"a", "b"}, []Device{nil, newFake("dev-b")})

	slot, err := s.SlotForDevice("dev-b")
	require.NoError(t, err)
	assert.Equal(t, "b", slot)

	_, err = s.SlotForDevice("nope")
	assert.True(t, errors.Is(err, ErrUnknownDevice))
}

func TestSet_SlotsFromBools(t *testing.T) {
	s := newTestSet(t, []string{"a", "b", "c"}, []Device{nil, nil, nil})

	slots, err := s.SlotsFromBools([]bool{true, false, true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, slots)

	_, err = s.SlotsFromBools([]bool{true})
	assert.True(t, errors.Is(err, ErrLengthMismatch))
}

func TestSet_ValidateSlots(t *testing.T) {
	s := newTestSet(t, []string{"a", "b", "c"}, []Device{newFake("dev-a"), nil, nil})

	assert.NoError(t, s.ValidateSlots([]string{"a"}))
	assert.NoError(t, s.ValidateSlots(nil))

	err := s.ValidateSlots([]string{"a", "x", "y"})
	require.True(t, errors.Is(err, ErrUnknownSlot))
	assert.Contains(t, err.Error(), "x, y")

	err = s.ValidateSlots([]string{"b", "c"})
	require.True(t, errors.Is(err, ErrEmptySlot))
	assert.Contains(t, err.Error(), "b, c")
}

func TestSet_ResolveSlots(t *testing.T) {
	s := newTestSet(t, []string{"a", "b", "c"}, []Device{newFake("dev-a"), nil, newFake("dev-c")})

	got, err := s.ResolveSlots(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, got)

	got, err = s.ResolveSlots([]string{"c", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, got)

	got, err = s.ResolveSlots([]string{})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.ResolveSlots([]string{"b"})
	assert.True(t, errors.Is(err, ErrEmptySlot))
}
