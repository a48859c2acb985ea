package device

import (
	"context"
	"errors"
	"time"

	"github.com/nothineazi/robotic-chain-control/internal/capability"
)

// Result is the outcome of one gated action.
type Result struct {
	Device   string
	Service  string
	Success  bool
	Duration time.Duration

	// Err is nil on success and otherwise carries the original cause.
	Err error

	// RecordID is the ID of the execution record written for the attempt.
	RecordID string
}

// Kind returns the short error kind of the result, "" on success.
func (r Result) Kind() string {
	if r.Success {
		return ""
	}
	return ErrorKind(r.Err)
}

var kinds = []struct {
	err  error
	kind string
}{
	{ErrServiceUnavailable, "service_unavailable"},
	{ErrDeviceFaulted, "device_faulted"},
	{ErrDeviceBusy, "device_busy"},
	{ErrActionPanic, "action_panic"},
	{capability.ErrSensorTimeout, "sensor_timeout"},
	{capability.ErrGraspCheckTimeout, "grasp_check_timeout"},
	{capability.ErrGraspFailure, "grasp_failure"},
	{capability.ErrPieceMismatch, "piece_mismatch"},
	{capability.ErrNotDetected, "not_detected"},
	{capability.ErrUnsupported, "unsupported"},
	{context.Canceled, "canceled"},
	{context.DeadlineExceeded, "deadline_exceeded"},
}

// ErrorKind maps err to a stable short name. The first matching kind wins,
// so a wrapped registry cause still reports service_unavailable.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "action_failed"
}
