package bridgedev

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	verb, params, err := ParseCommand("  move pos=12.5 steps=-40 fast=true label=home  ")
	require.NoError(t, err)
	assert.Equal(t, "move", verb)
	assert.Equal(t, map[string]any{
		"pos":   12.5,
		"steps": int64(-40),
		"fast":  true,
		"label": "home",
	}, params)
}

func TestParseCommand_VerbOnly(t *testing.T) {
	verb, params, err := ParseCommand("home")
	require.NoError(t, err)
	assert.Equal(t, "home", verb)
	assert.Nil(t, params)
}

func TestParseCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{"blank", "   ", ErrEmptyCommand},
		{"parameter first", "pos=1 move", ErrInvalidCommand},
		{"bare word", "move fast", ErrInvalidCommand},
		{"empty key", "move =1", ErrInvalidCommand},
		{"duplicate key", "move pos=1 pos=2", ErrInvalidCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseCommand(tt.text)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestAckDescribe(t *testing.T) {
	assert.Equal(t, "bridge reported timeout", AckMessage{Status: AckTimeout}.describe())
	assert.Equal(t, "DEVICE_UNREACHABLE: no answer",
		AckMessage{Status: AckFailed, Error: &AckError{Code: "DEVICE_UNREACHABLE", Message: "no answer"}}.describe())
	assert.Equal(t, "jammed", AckMessage{Status: AckFailed, Error: &AckError{Message: "jammed"}}.describe())
}
