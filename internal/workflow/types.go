package workflow

import (
	"context"
	"time"

	"github.com/nothineazi/robotic-chain-control/internal/device"
)

// Logger defines the logging interface used by workflows.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Gater runs gated actions. *device.Device satisfies it.
type Gater interface {
	ID() string
	Gate(ctx context.Context, service string, action device.Action) device.Result
}

// Status is the lifecycle state of a workflow run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial"   // some steps failed, the workflow continued
	StatusFailed    Status = "failed"    // a step marked AbortOnFailure failed
	StatusAborted   Status = "aborted"   // a required service was unavailable
	StatusCancelled Status = "cancelled" // the context ended
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusFailed, StatusAborted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Services names the registry services each step is gated on.
type Services struct {
	Pick     string `json:"pick"`
	Convey   string `json:"convey"`
	Classify string `json:"classify"`
	Place    string `json:"place"`
	Handoff  string `json:"handoff"`
}

// DefaultServices returns the service names used by the line.
func DefaultServices() Services {
	return Services{
		Pick:     "Pick",
		Convey:   "Convey",
		Classify: "ColorAndShapeDetection",
		Place:    "Place",
		Handoff:  "Move",
	}
}

// Report summarises one workflow run.
type Report struct {
	Workflow   string          `json:"workflow"`
	Status     Status          `json:"status"`
	Results    []device.Result `json:"-"`
	Completed  int             `json:"completed"`
	Failed     int             `json:"failed"`
	Skipped    int             `json:"skipped"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`

	// Err is the error that ended the run early, if any.
	Err error `json:"-"`
}

// OK reports whether every step succeeded.
func (r Report) OK() bool { return r.Status == StatusCompleted }

// Duration is the wall time of the run.
func (r Report) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// ErrorText is Err as a string, empty when nil.
func (r Report) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func (r *Report) add(res device.Result) {
	r.Results = append(r.Results, res)
	if res.Success {
		r.Completed++
	} else {
		r.Failed++
	}
}
