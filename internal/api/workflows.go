package api

import (
	"encoding/json"
	"net/http"

	"github.com/nothineazi/robotic-chain-control/internal/capability"
	"github.com/nothineazi/robotic-chain-control/internal/workflow"
)

// StepView is one gated step of a workflow report.
type StepView struct {
	Service    string `json:"service"`
	Success    bool   `json:"success"`
	DurationMS int64  `json:"duration_ms"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Error      string `json:"error,omitempty"`
	RecordID   string `json:"record_id,omitempty"`
}

// WorkflowView is the response of a synchronous workflow run.
type WorkflowView struct {
	Workflow   string                `json:"workflow"`
	Device     string                `json:"device_id"`
	Status     workflow.Status       `json:"status"`
	OK         bool                  `json:"ok"`
	Completed  int                   `json:"completed"`
	Failed     int                   `json:"failed"`
	Skipped    int                   `json:"skipped"`
	DurationMS int64                 `json:"duration_ms"`
	Error      string                `json:"error,omitempty"`
	Steps      []StepView            `json:"steps"`
	Detection  *capability.Detection `json:"detection,omitempty"`
}

// NewWorkflowView summarises a linear workflow run on deviceID.
func NewWorkflowView(deviceID string, rep workflow.Report, det *capability.Detection) WorkflowView {
	v := WorkflowView{
		Workflow:   rep.Workflow,
		Device:     deviceID,
		Status:     rep.Status,
		OK:         rep.OK(),
		Completed:  rep.Completed,
		Failed:     rep.Failed,
		Skipped:    rep.Skipped,
		DurationMS: rep.Duration().Milliseconds(),
		Error:      rep.ErrorText(),
		Steps:      make([]StepView, 0, len(rep.Results)),
		Detection:  det,
	}
	for _, res := range rep.Results {
		sv := StepView{
			Service:    res.Service,
			Success:    res.Success,
			DurationMS: res.Duration.Milliseconds(),
			ErrorKind:  res.Kind(),
			RecordID:   res.RecordID,
		}
		if res.Err != nil {
			sv.Error = res.Err.Error()
		}
		v.Steps = append(v.Steps, sv)
	}
	return v
}

// runnable resolves the device and refuses while a build owns it.
func (s *Server) runnable(w http.ResponseWriter, r *http.Request) (*Station, bool) {
	st, ok := s.stationFromRequest(w, r)
	if !ok {
		return nil, false
	}
	if task, busy := s.sequencer.Active(st.Device.ID()); busy {
		writeError(w, http.StatusConflict, ErrCodeConflict, "build "+task.ID()+" is running on this device")
		return nil, false
	}
	return st, true
}

func (s *Server) runLinear(w http.ResponseWriter, r *http.Request, st *Station, wf workflow.Linear, det *capability.Detection) {
	wf.Logger = s.logger
	rep := wf.Run(r.Context())
	if det != nil && *det == (capability.Detection{}) {
		det = nil
	}
	writeJSON(w, http.StatusOK, NewWorkflowView(st.Device.ID(), rep, det))
}

// handlePickReplace runs load, convey, detect, vision pick and put back.
func (s *Server) handlePickReplace(w http.ResponseWriter, r *http.Request) {
	st, ok := s.runnable(w, r)
	if !ok {
		return
	}
	if st.Vision == nil {
		writeError(w, http.StatusConflict, ErrCodeConflict, "device has no vision cell")
		return
	}
	var det capability.Detection
	wf := workflow.PickReplace(st.Device, st.Vision, s.services, func(d capability.Detection) { det = d })
	s.runLinear(w, r, st, wf, &det)
}

// handleVisionTest runs a single gated detection.
func (s *Server) handleVisionTest(w http.ResponseWriter, r *http.Request) {
	st, ok := s.runnable(w, r)
	if !ok {
		return
	}
	if st.Vision == nil {
		writeError(w, http.StatusConflict, ErrCodeConflict, "device has no vision cell")
		return
	}
	var det capability.Detection
	wf := workflow.VisionTest(st.Device, st.Vision, s.services, func(d capability.Detection) { det = d })
	s.runLinear(w, r, st, wf, &det)
}

// FeedRequest is the body of POST /devices/{id}/workflows/feed.
type FeedRequest struct {
	Shape string `json:"shape"`
	Color string `json:"color"`
}

// handleFeed has the feeder cell drop a stored piece on the ramp.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	st, ok := s.runnable(w, r)
	if !ok {
		return
	}
	if st.Feeder == nil {
		writeError(w, http.StatusConflict, ErrCodeConflict, "device has no feeder cell")
		return
	}
	var req FeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	shape, err := capability.ParseShape(req.Shape)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	color, err := capability.ParseColor(req.Color)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	s.runLinear(w, r, st, workflow.Feed(st.Device, st.Feeder, s.services, shape, color), nil)
}
