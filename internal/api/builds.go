package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nothineazi/robotic-chain-control/internal/capability"
	"github.com/nothineazi/robotic-chain-control/internal/workflow"
)

// TargetRequest is one target of a build request.
type TargetRequest struct {
	Name  string `json:"name"`
	Shape string `json:"shape"`
	Color string `json:"color"`
}

// StartBuildRequest is the body of POST /builds.
type StartBuildRequest struct {
	Targets []TargetRequest `json:"targets"`

	// PreDelayMS overrides the configured pre-delay when set.
	PreDelayMS *int `json:"pre_delay_ms,omitempty"`
}

// BuildView is a build task with its per-target outcomes once finished.
type BuildView struct {
	workflow.TaskInfo
	Outcomes []workflow.TargetOutcome `json:"outcomes,omitempty"`
}

// NewBuildView is the snapshot of a build task.
func NewBuildView(task *workflow.Task) BuildView {
	v := BuildView{TaskInfo: task.Info()}
	if rep, ok := task.Report(); ok {
		v.Outcomes = rep.Outcomes
	}
	return v
}

func parseTargets(reqs []TargetRequest) ([]workflow.Target, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: at least one target is required", workflow.ErrInvalidTargets)
	}
	targets := make([]workflow.Target, 0, len(reqs))
	for i, tr := range reqs {
		shape, err := capability.ParseShape(tr.Shape)
		if err != nil {
			return nil, fmt.Errorf("%w: target %d: %w", workflow.ErrInvalidTargets, i, err)
		}
		color, err := capability.ParseColor(tr.Color)
		if err != nil {
			return nil, fmt.Errorf("%w: target %d: %w", workflow.ErrInvalidTargets, i, err)
		}
		name := tr.Name
		if name == "" {
			name = fmt.Sprintf("target_%d", i)
		}
		targets = append(targets, workflow.Target{Name: name, Shape: shape, Color: color})
	}
	return targets, nil
}

// handleStartBuild launches a background build on the configured line.
func (s *Server) handleStartBuild(w http.ResponseWriter, r *http.Request) {
	if s.newBuild == nil {
		writeUnavailable(w, "no build line is configured")
		return
	}
	var req StartBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	targets, err := parseTargets(req.Targets)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	delay := s.preDelay
	if req.PreDelayMS != nil {
		if *req.PreDelayMS < 0 {
			writeBadRequest(w, "pre_delay_ms must not be negative")
			return
		}
		delay = time.Duration(*req.PreDelayMS) * time.Millisecond
	}

	build, err := s.newBuild(targets)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	task, err := s.sequencer.StartBuild(build, delay)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, NewBuildView(task))
}

// handleListBuilds returns the builds known to this process.
func (s *Server) handleListBuilds(w http.ResponseWriter, _ *http.Request) {
	builds := s.sequencer.Tasks()
	writeJSON(w, http.StatusOK, map[string]any{"builds": builds, "count": len(builds)})
}

// handleBuildHistory returns persisted builds, including earlier runs.
//
// Query parameters:
//   - device_id: filter by device
//   - limit: maximum builds (default 50)
func (s *Server) handleBuildHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "build history is not enabled")
		return
	}
	limit, ok := intParam(r.URL.Query().Get("limit"))
	if !ok {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	builds, err := s.history.ListTasks(r.Context(), r.URL.Query().Get("device_id"), limit)
	if err != nil {
		s.logger.Error("failed to list build history", "error", err)
		writeInternalError(w, "failed to list build history")
		return
	}
	if builds == nil {
		builds = []workflow.TaskInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"builds": builds, "count": len(builds)})
}

// handleGetBuild returns one build.
func (s *Server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	task, err := s.sequencer.Task(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewBuildView(task))
}

// handleCancelBuild asks a build to stop at its next step boundary.
func (s *Server) handleCancelBuild(w http.ResponseWriter, r *http.Request) {
	task, err := s.sequencer.Task(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	task.Cancel()
	s.logger.Info("build cancel requested", "task_id", task.ID(), "device_id", task.Device())
	writeJSON(w, http.StatusAccepted, NewBuildView(task))
}
