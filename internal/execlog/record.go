package execlog

import (
	"fmt"
	"time"
)

// Status values written to the execution log.
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// Record is one gated action attempt.
type Record struct {
	ID        string        `json:"id"`
	Device    string        `json:"device_id"`
	Service   string        `json:"service"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration_ns"`
	Timestamp time.Time     `json:"timestamp"`

	// ErrorKind is a stable short name for the failure cause ("" on success).
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Status returns SUCCESS or FAILURE.
func (r Record) Status() string {
	if r.Success {
		return StatusSuccess
	}
	return StatusFailure
}

// Line renders the record in the execution log format:
//
//	Service: Pick, Status: SUCCESS, Execution Time: 1.25 seconds
func (r Record) Line() string {
	return fmt.Sprintf("Service: %s, Status: %s, Execution Time: %.2f seconds",
		r.Service, r.Status(), r.Duration.Seconds())
}
