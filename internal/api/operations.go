package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-devset/internal/command"
	"github.com/nerrad567/gray-logic-devset/internal/deviceset"
)

// operationResponse describes the governing command of a started operation.
type operationResponse struct {
	ID      string            `json:"id"`
	Kind    deviceset.RunKind `json:"kind"`
	Text    string            `json:"text"`
	State   command.State     `json:"state"`
	Message string            `json:"message,omitempty"`
}

// slotCommandRequest is one entry of an ordered command map.
// Command is a single command, Commands a sequence.
type slotCommandRequest struct {
	Slot     string   `json:"slot"`
	Command  string   `json:"command,omitempty"`
	Commands []string `json:"commands,omitempty"`
}

// commandRequest is the body of POST /commands.
//
// Either Command or Commands is sent to every slot in Slots (all filled slots
// when Slots is omitted), or Map gives each slot its own commands. Commands
// always runs as a sequence, even with one element.
type commandRequest struct {
	Command     string               `json:"command,omitempty"`
	Commands    []string             `json:"commands,omitempty"`
	Slots       []string             `json:"slots,omitempty"`
	Map         []slotCommandRequest `json:"map,omitempty"`
	TimeLimitMS *int64               `json:"time_limit_ms,omitempty"`
}

// lifecycleRequest is the body of POST /connect and POST /disconnect.
// Omitting Slots targets every filled slot.
type lifecycleRequest struct {
	Slots       []string `json:"slots,omitempty"`
	TimeLimitMS *int64   `json:"time_limit_ms,omitempty"`
}

// handleStartCommand starts a dispatch run on the device set.
func (s *Server) handleStartCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	opts := s.runOptions(req.TimeLimitMS)

	if len(req.Map) > 0 {
		if req.Command != "" || len(req.Commands) > 0 || req.Slots != nil {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "map cannot be combined with command, commands or slots")
			return
		}
		entries := make([]deviceset.SlotCommand, len(req.Map))
		for i, e := range req.Map {
			if e.Command != "" && len(e.Commands) > 0 {
				writeError(w, http.StatusBadRequest, ErrCodeValidation, "map entry for "+e.Slot+" has both command and commands")
				return
			}
			entries[i] = deviceset.SlotCommand{Slot: e.Slot, Commands: e.Commands, Sequence: true}
			if e.Command != "" {
				entries[i] = deviceset.SlotCommand{Slot: e.Slot, Commands: []string{e.Command}}
			}
		}
		s.runOperation(w, r, deviceset.RunCommand, func(set *deviceset.Set) (*command.Command, error) {
			return set.StartCommandMap(entries, opts)
		})
		return
	}

	switch {
	case req.Command != "" && len(req.Commands) > 0:
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "use command or commands, not both")
	case req.Command != "":
		s.runOperation(w, r, deviceset.RunCommand, func(set *deviceset.Set) (*command.Command, error) {
			return set.StartCommand([]string{req.Command}, req.Slots, opts)
		})
	case len(req.Commands) > 0:
		s.runOperation(w, r, deviceset.RunCommand, func(set *deviceset.Set) (*command.Command, error) {
			return set.StartCommandSequence(req.Commands, req.Slots, opts)
		})
	default:
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "command is required")
	}
}

// handleConnect connects the requested slots.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	s.handleLifecycle(w, r, deviceset.RunConnect)
}

// handleDisconnect disconnects the requested slots.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.handleLifecycle(w, r, deviceset.RunDisconnect)
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request, kind deviceset.RunKind) {
	var req lifecycleRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	opts := s.runOptions(req.TimeLimitMS)

	s.runOperation(w, r, kind, func(set *deviceset.Set) (*command.Command, error) {
		if kind == deviceset.RunDisconnect {
			return set.Disconnect(req.Slots, opts)
		}
		return set.Connect(req.Slots, opts)
	})
}

// runOperation starts an operation on the loop and writes its governing command.
//
// The response is 202 while the command is still running and 200 once it is
// terminal. With ?wait=true the handler waits for the command to finish or
// for the request to be cancelled.
//
// A request cancelled before the loop reaches it starts nothing. Once start
// is running on the loop the operation proceeds even if the client has gone;
// its outcome is still recorded in the run history.
func (s *Server) runOperation(w http.ResponseWriter, r *http.Request, kind deviceset.RunKind, start func(set *deviceset.Set) (*command.Command, error)) {
	var (
		governing *command.Command
		setErr    error
	)
	err := s.actor.Do(r.Context(), func(set *deviceset.Set) {
		governing, setErr = start(set)
	})
	if err == nil {
		err = setErr
	}
	if err == nil && governing == nil {
		err = errors.New("operation returned no command")
	}
	if err != nil {
		writeSetError(w, err)
		return
	}

	s.logger.Debug("operation started", "kind", string(kind), "id", governing.ID(), "text", governing.Text())

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		select {
		case <-governing.Done():
		case <-r.Context().Done():
			return
		}
	}

	status := http.StatusAccepted
	if governing.IsDone() {
		status = http.StatusOK
	}
	writeJSON(w, status, operationResponse{
		ID:      governing.ID(),
		Kind:    kind,
		Text:    governing.Text(),
		State:   governing.State(),
		Message: governing.Message(),
	})
}

// runOptions converts a request time limit in milliseconds.
// Omitted or zero uses the actor default; negative disables the limit.
func (s *Server) runOptions(ms *int64) deviceset.RunOptions {
	opts := deviceset.RunOptions{TimeLimit: s.actor.TimeLimit()}
	if ms == nil {
		return opts
	}
	switch {
	case *ms < 0:
		opts.TimeLimit = deviceset.NoTimeLimit
	case *ms > 0:
		opts.TimeLimit = time.Duration(*ms) * time.Millisecond
	}
	return opts
}

// decodeBody decodes a JSON request body. An empty body leaves v unchanged.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
