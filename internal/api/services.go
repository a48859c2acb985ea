package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nothineazi/robotic-chain-control/internal/registry"
)

// handleListServices returns the services of a device's registry.
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	st, ok := s.stationFromRequest(w, r)
	if !ok {
		return
	}
	services, err := st.Registry.List()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services, "count": len(services)})
}

// handleGetService returns one service descriptor. Names are case-sensitive.
func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	st, ok := s.stationFromRequest(w, r)
	if !ok {
		return
	}
	d, err := st.Registry.Query(chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleAddService adds a service to the registry.
func (s *Server) handleAddService(w http.ResponseWriter, r *http.Request) {
	st, ok := s.stationFromRequest(w, r)
	if !ok {
		return
	}
	var d registry.ServiceDescriptor
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := st.Registry.Add(d); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// handleConfigureService overwrites an existing service. The name in the
// path wins over the body.
func (s *Server) handleConfigureService(w http.ResponseWriter, r *http.Request) {
	st, ok := s.stationFromRequest(w, r)
	if !ok {
		return
	}
	var d registry.ServiceDescriptor
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	d.Name = chi.URLParam(r, "name")
	if err := st.Registry.Configure(d); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleRemoveService removes a service from the registry.
func (s *Server) handleRemoveService(w http.ResponseWriter, r *http.Request) {
	st, ok := s.stationFromRequest(w, r)
	if !ok {
		return
	}
	if err := st.Registry.Remove(chi.URLParam(r, "name")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
