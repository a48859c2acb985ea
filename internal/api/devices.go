package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nothineazi/robotic-chain-control/internal/registry"
)

// DeviceView is the API representation of a device.
type DeviceView struct {
	ID           string              `json:"id"`
	State        registry.State      `json:"state,omitempty"`
	States       registry.StateFlags `json:"states,omitempty"`
	Services     int                 `json:"services"`
	RegistryPath string              `json:"registry_path"`
	Workflows    []string            `json:"workflows"`
	BuildTask    string              `json:"build_task,omitempty"`

	// Error is set while the registry document cannot be read.
	Error string `json:"error,omitempty"`
}

func (s *Server) deviceView(st *Station) DeviceView {
	v := DeviceView{
		ID:           st.Device.ID(),
		RegistryPath: st.Registry.Path(),
		Workflows:    []string{},
	}
	if st.Vision != nil {
		v.Workflows = append(v.Workflows, "build", "pick-replace", "vision-test")
	}
	if st.Feeder != nil {
		v.Workflows = append(v.Workflows, "feed")
	}
	if task, ok := s.sequencer.Active(v.ID); ok {
		v.BuildTask = task.ID()
	}

	state, err := st.Registry.State()
	if err != nil {
		v.Error = err.Error()
		return v
	}
	v.State = state
	if flags, err := st.Registry.States(); err == nil {
		v.States = flags
	}
	if services, err := st.Registry.List(); err == nil {
		v.Services = len(services)
	}
	return v
}

// stationFromRequest resolves {id} or writes a 404.
func (s *Server) stationFromRequest(w http.ResponseWriter, r *http.Request) (*Station, bool) {
	st, ok := s.station(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "device not found")
	}
	return st, ok
}

// handleListDevices returns every configured device.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := make([]DeviceView, 0, len(s.order))
	for _, id := range s.order {
		devices = append(devices, s.deviceView(s.stations[id]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	st, ok := s.stationFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.deviceView(st))
}

// handleGetDeviceState returns the operational state flags.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	st, ok := s.stationFromRequest(w, r)
	if !ok {
		return
	}
	state, err := st.Registry.State()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	flags, err := st.Registry.States()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": st.Device.ID(), "state": state, "states": flags})
}

// SetStateRequest is the body of PUT /devices/{id}/state.
type SetStateRequest struct {
	State string `json:"state"`
}

// handleSetDeviceState sets the operational state, typically to clear Error.
func (s *Server) handleSetDeviceState(w http.ResponseWriter, r *http.Request) {
	st, ok := s.stationFromRequest(w, r)
	if !ok {
		return
	}
	var req SetStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	state, err := registry.ParseState(req.State)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if task, busy := s.sequencer.Active(st.Device.ID()); busy && state != registry.StateError {
		writeError(w, http.StatusConflict, ErrCodeConflict, "build "+task.ID()+" is running on this device")
		return
	}
	if err := st.Device.SetState(state); err != nil {
		s.logger.Error("failed to set device state", "device_id", st.Device.ID(), "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": st.Device.ID(), "state": state})
}
