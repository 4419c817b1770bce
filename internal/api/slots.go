package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-devset/internal/command"
	"github.com/nerrad567/gray-logic-devset/internal/deviceset"
)

// slotResponse describes one slot of the device set.
type slotResponse struct {
	Name   string `json:"name"`
	Index  int    `json:"index"`
	Device string `json:"device,omitempty"`
	Filled bool   `json:"filled"`
}

type slotsResponse struct {
	ActorID string         `json:"actor_id"`
	Slots   []slotResponse `json:"slots"`
	Filled  int            `json:"filled"`
}

// replaceDeviceRequest is the body of PUT /slots/{slot}/device.
type replaceDeviceRequest struct {
	Name        string `json:"name"`
	Protocol    string `json:"protocol"`
	TimeLimitMS *int64 `json:"time_limit_ms,omitempty"`
}

// handleListSlots returns every slot in order with its device, if any.
func (s *Server) handleListSlots(w http.ResponseWriter, r *http.Request) {
	resp := slotsResponse{ActorID: s.actor.ID()}
	err := s.actor.Do(r.Context(), func(set *deviceset.Set) {
		names := set.Slots()
		devices := set.Devices()
		resp.Slots = make([]slotResponse, len(names))
		for i, name := range names {
			resp.Slots[i] = describeSlot(i, name, devices[i])
			if devices[i] != nil {
				resp.Filled++
			}
		}
	})
	if err != nil {
		writeSetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetSlot returns one slot.
func (s *Server) handleGetSlot(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "slot")

	var (
		resp   slotResponse
		setErr error
	)
	err := s.actor.Do(r.Context(), func(set *deviceset.Set) {
		index, err := set.Index(name)
		if err != nil {
			setErr = err
			return
		}
		dev, _ := set.Lookup(name) //nolint:errcheck // slot checked by Index
		resp = describeSlot(index, name, dev)
	})
	if err == nil {
		err = setErr
	}
	if err != nil {
		writeSetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReplaceDevice connects a new device and installs it in the slot.
func (s *Server) handleReplaceDevice(w http.ResponseWriter, r *http.Request) {
	if s.devices == nil {
		writeError(w, http.StatusNotImplemented, ErrCodeNotSupported, "device replacement is not configured")
		return
	}

	var req replaceDeviceRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if req.Name == "" || req.Protocol == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "name and protocol are required")
		return
	}

	dev, err := s.devices(req.Name, req.Protocol)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	slot := chi.URLParam(r, "slot")
	opts := s.runOptions(req.TimeLimitMS)
	s.runOperation(w, r, deviceset.RunReplace, func(set *deviceset.Set) (*command.Command, error) {
		return set.ReplaceDevice(slot, dev, opts)
	})
}

// handleRemoveDevice releases the slot's device and leaves the slot empty.
func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	slot := chi.URLParam(r, "slot")
	s.runOperation(w, r, deviceset.RunReplace, func(set *deviceset.Set) (*command.Command, error) {
		return set.ReplaceDevice(slot, nil, deviceset.RunOptions{})
	})
}

func describeSlot(index int, name string, dev deviceset.Device) slotResponse {
	resp := slotResponse{Name: name, Index: index, Filled: dev != nil}
	if dev != nil {
		resp.Device = dev.Name()
	}
	return resp
}
