package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/nothineazi/robotic-chain-control/internal/execlog"
)

// handleListExecutions returns execution records, most recent first.
//
// Query parameters:
//   - device_id: filter by device
//   - service: filter by service name
//   - status: SUCCESS or FAILURE
//   - limit: page size (default 50, max 200)
//   - offset: records to skip
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	if s.executions == nil {
		writeUnavailable(w, "execution history is not enabled")
		return
	}

	q := r.URL.Query()
	filter := execlog.Filter{
		Device:  q.Get("device_id"),
		Service: q.Get("service"),
		Status:  strings.ToUpper(q.Get("status")),
	}
	if filter.Status != "" && filter.Status != execlog.StatusSuccess && filter.Status != execlog.StatusFailure {
		writeBadRequest(w, "status must be SUCCESS or FAILURE")
		return
	}

	var ok bool
	if filter.Limit, ok = intParam(q.Get("limit")); !ok {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, ok = intParam(q.Get("offset")); !ok {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.executions.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list executions", "error", err)
		writeInternalError(w, "failed to list executions")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// intParam parses an optional non-negative integer query parameter.
func intParam(v string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
