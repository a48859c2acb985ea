package workflow

import (
	"context"
	"sync"
	"time"
)

// TaskInfo is a point-in-time view of a build task.
type TaskInfo struct {
	ID         string     `json:"id"`
	Device     string     `json:"device_id"`
	Status     Status     `json:"status"`
	Targets    int        `json:"targets"`
	Placed     int        `json:"placed"`
	Attempts   int        `json:"attempts"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Task is the handle of a background build.
type Task struct {
	id      string
	device  string
	targets int
	cancel  context.CancelFunc
	done    chan struct{}

	mu        sync.RWMutex
	status    Status
	report    *BuildReport
	startedAt time.Time
}

func newTask(id, deviceID string, targets int, cancel context.CancelFunc) *Task {
	return &Task{
		id:        id,
		device:    deviceID,
		targets:   targets,
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    StatusPending,
		startedAt: time.Now().UTC(),
	}
}

// ID returns the task ID.
func (t *Task) ID() string { return t.id }

// Device returns the ID of the device running the build.
func (t *Task) Device() string { return t.device }

// Cancel asks the build to stop at the next step boundary. It does not wait.
func (t *Task) Cancel() { t.cancel() }

// Done is closed when the build has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Status returns the current status.
func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Wait blocks until the build finishes or ctx ends.
func (t *Task) Wait(ctx context.Context) (BuildReport, error) {
	select {
	case <-t.done:
		rep, _ := t.Report()
		return rep, nil
	case <-ctx.Done():
		return BuildReport{}, ctx.Err()
	}
}

// Report returns the final report once the build has finished.
func (t *Task) Report() (BuildReport, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.report == nil {
		return BuildReport{}, false
	}
	return *t.report, true
}

// Info returns a snapshot of the task.
func (t *Task) Info() TaskInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info := TaskInfo{
		ID:        t.id,
		Device:    t.device,
		Status:    t.status,
		Targets:   t.targets,
		StartedAt: t.startedAt,
	}
	if t.report != nil {
		info.Placed = t.report.Placed
		info.Attempts = t.report.Attempts
		info.Error = t.report.ErrorText()
		finished := t.report.FinishedAt
		info.FinishedAt = &finished
	}
	return info
}

func (t *Task) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

func (t *Task) finish(rep BuildReport) {
	t.mu.Lock()
	t.status = rep.Status
	t.report = &rep
	t.mu.Unlock()
}
