package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-devset/internal/command"
	"github.com/nerrad567/gray-logic-devset/internal/deviceset"
)

func TestStartCommand_AllFilledSlots(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/commands", `{"command":"home"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp operationResponse
	decodeBodyInto(t, w, &resp)
	if resp.ID == "" {
		t.Error("response should carry the governing command ID")
	}
	if resp.Kind != deviceset.RunCommand {
		t.Errorf("kind = %q, want %q", resp.Kind, deviceset.RunCommand)
	}
	if resp.State != command.StateDone {
		t.Errorf("state = %q, want %q", resp.State, command.StateDone)
	}
	if env.devA.lastText() != "home" || env.devB.lastText() != "home" {
		t.Errorf("devices got %q and %q, want home", env.devA.lastText(), env.devB.lastText())
	}
}

func TestStartCommand_SequenceOnSubset(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/commands", `{"commands":["park","stow"],"slots":["b"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := env.devB.lastText(); got != "park; stow" {
		t.Errorf("slot b got %q, want %q", got, "park; stow")
	}
	if got := env.devA.lastText(); got != "connect" {
		t.Errorf("slot a should not receive the command, last = %q", got)
	}
}

func TestStartCommand_Map(t *testing.T) {
	env := newTestEnv(t, nil)

	body := `{"map":[{"slot":"b","commands":["park"]},{"slot":"a","commands":["home","zero"]}]}`
	w := env.do(t, http.MethodPost, "/api/v1/commands", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp operationResponse
	decodeBodyInto(t, w, &resp)
	if !strings.Contains(resp.Text, "b: park") || !strings.Contains(resp.Text, "a: home; zero") {
		t.Errorf("text = %q", resp.Text)
	}
	if env.devA.lastText() != "home; zero" || env.devB.lastText() != "park" {
		t.Errorf("devices got %q and %q", env.devA.lastText(), env.devB.lastText())
	}
}

func TestStartCommand_SingleElementSequence(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/commands", `{"command":"home","slots":["a"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := env.devA.sequenceCalls(); got != 0 {
		t.Errorf("command sent as %d sequences, want 0", got)
	}

	w = env.do(t, http.MethodPost, "/api/v1/commands", `{"commands":["home"],"slots":["a"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := env.devA.sequenceCalls(); got != 1 {
		t.Errorf("one-element commands sent as %d sequences, want 1", got)
	}

	body := `{"map":[{"slot":"a","command":"park"},{"slot":"b","commands":["park"]}]}`
	w = env.do(t, http.MethodPost, "/api/v1/commands", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if env.devA.sequenceCalls() != 1 || env.devB.sequenceCalls() != 1 {
		t.Errorf("sequence calls a=%d b=%d, want 1 and 1", env.devA.sequenceCalls(), env.devB.sequenceCalls())
	}
}

func TestStartCommand_DeviceFailure(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/commands", `{"command":"fail now","slots":["a"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp operationResponse
	decodeBodyInto(t, w, &resp)
	if resp.State != command.StateFailed {
		t.Errorf("state = %q, want %q", resp.State, command.StateFailed)
	}
	if !strings.Contains(resp.Message, "command failed for a") {
		t.Errorf("message = %q, should name the failed slot", resp.Message)
	}
}

func TestStartCommand_AcceptedWhileRunning(t *testing.T) {
	env := newTestEnv(t, nil)
	env.devA.setHold(true)

	w := env.do(t, http.MethodPost, "/api/v1/commands", `{"command":"home","slots":["a"]}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body.String())
	}
	var resp operationResponse
	decodeBodyInto(t, w, &resp)
	if resp.State != command.StateRunning {
		t.Errorf("state = %q, want %q", resp.State, command.StateRunning)
	}

	pending := env.devA.takePending()
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	err := env.actor.Loop().Call(env.ctx, func() {
		_ = pending[0].SetState(command.StateDone, "")
	})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	eventually(t, func() bool {
		run, err := env.runs.Get(env.ctx, resp.ID)
		return err == nil && run.State == string(command.StateDone)
	}, "run to be recorded as done")
}

func TestStartCommand_WaitForCompletion(t *testing.T) {
	env := newTestEnv(t, nil)
	env.devA.setHold(true)

	go func() {
		deadline := time.Now().Add(waitTimeout)
		for time.Now().Before(deadline) {
			if pending := env.devA.takePending(); len(pending) > 0 {
				env.actor.Loop().Post(func() {
					_ = pending[0].SetState(command.StateDone, "")
				})
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	w := env.do(t, http.MethodPost, "/api/v1/commands?wait=true", `{"command":"home","slots":["a"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp operationResponse
	decodeBodyInto(t, w, &resp)
	if resp.State != command.StateDone {
		t.Errorf("state = %q, want %q", resp.State, command.StateDone)
	}
}

func TestStartCommand_TimeLimit(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body string
		want time.Duration
	}{
		{"omitted uses default", `{"command":"home","slots":["a"]}`, deviceset.DefaultTimeLimit},
		{"zero uses default", `{"command":"home","slots":["a"],"time_limit_ms":0}`, deviceset.DefaultTimeLimit},
		{"explicit", `{"command":"home","slots":["a"],"time_limit_ms":1500}`, 1500 * time.Millisecond},
		{"negative disables", `{"command":"home","slots":["a"],"time_limit_ms":-1}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/commands", tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", w.Code, w.Body.String())
			}
			if got := env.devA.lastLimit(); got != tt.want {
				t.Errorf("device time limit = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStartCommand_BadRequests(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"invalid JSON", `{"command":`, http.StatusBadRequest, ErrCodeBadRequest},
		{"unknown field", `{"cmd":"home"}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"no command", `{}`, http.StatusBadRequest, ErrCodeValidation},
		{"command and commands", `{"command":"a","commands":["b"]}`, http.StatusBadRequest, ErrCodeValidation},
		{"map with slots", `{"map":[{"slot":"a","commands":["x"]}],"slots":["a"]}`, http.StatusBadRequest, ErrCodeValidation},
		{"map entry without commands", `{"map":[{"slot":"a","commands":[]}]}`, http.StatusBadRequest, ErrCodeValidation},
		{"map entry with command and commands", `{"map":[{"slot":"a","command":"x","commands":["y"]}]}`, http.StatusBadRequest, ErrCodeValidation},
		{"map duplicate slot", `{"map":[{"slot":"a","commands":["x"]},{"slot":"a","commands":["y"]}]}`, http.StatusBadRequest, ErrCodeValidation},
		{"unknown slot", `{"command":"home","slots":["zz"]}`, http.StatusNotFound, ErrCodeNotFound},
		{"empty slot", `{"command":"home","slots":["c"]}`, http.StatusBadRequest, ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/commands", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			var body Error
			decodeBodyInto(t, w, &body)
			if body.Code != tt.code {
				t.Errorf("code = %q, want %q", body.Code, tt.code)
			}
		})
	}

	if got := env.devA.lastText(); got != "connect" {
		t.Errorf("rejected requests must not reach devices, last = %q", got)
	}
}

func TestConnectDisconnect(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/disconnect", `{"slots":["b"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("disconnect status = %d: %s", w.Code, w.Body.String())
	}
	var resp operationResponse
	decodeBodyInto(t, w, &resp)
	if resp.Kind != deviceset.RunDisconnect || resp.State != command.StateDone {
		t.Errorf("disconnect response = %+v", resp)
	}
	if env.devB.lastText() != "disconnect" || env.devA.lastText() != "connect" {
		t.Errorf("devices got %q and %q", env.devA.lastText(), env.devB.lastText())
	}

	// An empty body targets every filled slot.
	w = env.do(t, http.MethodPost, "/api/v1/connect", "")
	if w.Code != http.StatusOK {
		t.Fatalf("connect status = %d: %s", w.Code, w.Body.String())
	}
	decodeBodyInto(t, w, &resp)
	if resp.Kind != deviceset.RunConnect {
		t.Errorf("kind = %q, want connect", resp.Kind)
	}
	if env.devB.lastText() != "connect" {
		t.Errorf("slot b last = %q, want connect", env.devB.lastText())
	}
}

func TestConnect_UnknownSlot(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/connect", `{"slots":["zz"]}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRunOptions(t *testing.T) {
	env := newTestEnv(t, nil)

	if got := env.srv.runOptions(nil).TimeLimit; got != 0 {
		t.Errorf("nil time limit = %v, want actor default 0", got)
	}
	neg := int64(-5)
	if got := env.srv.runOptions(&neg).TimeLimit; got != deviceset.NoTimeLimit {
		t.Errorf("negative time limit = %v, want NoTimeLimit", got)
	}
}
