package bridgedev

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SourceDevset marks commands published by the device-set actor.
const SourceDevset = "devset"

// CommandMessage is published to graylogic/command/{protocol}/{device}.
type CommandMessage struct {
	// ID correlates the command with its acknowledgment.
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`

	// Command is the verb, e.g. "move", "home" or "ping".
	Command string `json:"command"`

	// Parameters holds the key=value pairs from the command text.
	Parameters map[string]any `json:"parameters,omitempty"`

	Source string `json:"source"`
}

// AckStatus is the acknowledgment status reported by a bridge.
type AckStatus string

const (
	// AckAccepted means the device executed the command.
	AckAccepted AckStatus = "accepted"

	// AckQueued means the bridge is holding the command; a final ack follows.
	AckQueued AckStatus = "queued"

	// AckFailed means the command could not be executed.
	AckFailed AckStatus = "failed"

	// AckTimeout means the device did not respond in time.
	AckTimeout AckStatus = "timeout"
)

// AckMessage is received on graylogic/ack/{protocol}/{device}.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError carries details for failed and timeout acks.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Retries int    `json:"retries,omitempty"`
}

// describe returns the failure text for a failed or timeout ack.
func (a AckMessage) describe() string {
	if a.Error == nil {
		return fmt.Sprintf("bridge reported %s", a.Status)
	}
	if a.Error.Code == "" {
		return a.Error.Message
	}
	return fmt.Sprintf("%s: %s", a.Error.Code, a.Error.Message)
}

// ParseCommand splits command text of the form "verb key=value ..." into
// the verb and its parameters. Values that parse as bool, integer or float
// are typed accordingly; everything else stays a string.
func ParseCommand(text string) (verb string, params map[string]any, err error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil, ErrEmptyCommand
	}

	verb = fields[0]
	if strings.Contains(verb, "=") {
		return "", nil, fmt.Errorf("%w: %q starts with a parameter", ErrInvalidCommand, text)
	}

	for _, f := range fields[1:] {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return "", nil, fmt.Errorf("%w: %q is not key=value", ErrInvalidCommand, f)
		}
		if params == nil {
			params = make(map[string]any, len(fields)-1)
		}
		if _, dup := params[key]; dup {
			return "", nil, fmt.Errorf("%w: duplicate parameter %q", ErrInvalidCommand, key)
		}
		params[key] = parseValue(value)
	}
	return verb, params, nil
}

func parseValue(s string) any {
	if s == "true" || s == "false" {
		return s == "true"
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
