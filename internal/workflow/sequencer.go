package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxRetainedTasks bounds the finished tasks kept in memory.
const maxRetainedTasks = 100

// TaskStore persists task snapshots.
type TaskStore interface {
	SaveTask(ctx context.Context, info TaskInfo) error
}

// StatusNotifier is told about every task status change.
type StatusNotifier interface {
	BuildStatus(info TaskInfo) error
}

// SequencerConfig configures a Sequencer. All fields are optional.
type SequencerConfig struct {
	Logger   Logger
	Store    TaskStore
	Notifier StatusNotifier
}

// Sequencer runs builds in the background, at most one per device.
type Sequencer struct {
	logger   Logger
	store    TaskStore
	notifier StatusNotifier

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	tasks  map[string]*Task
	active map[string]*Task // by device ID
	closed bool
}

// NewSequencer creates a sequencer.
func NewSequencer(cfg SequencerConfig) *Sequencer {
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sequencer{
		logger:   logger,
		store:    cfg.Store,
		notifier: cfg.Notifier,
		ctx:      ctx,
		cancel:   cancel,
		tasks:    make(map[string]*Task),
		active:   make(map[string]*Task),
	}
}

// StartBuild launches b in the background after preDelay. The build outlives
// the caller; stop it with Task.Cancel or Shutdown.
func (s *Sequencer) StartBuild(b *Build, preDelay time.Duration) (*Task, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	deviceID := b.Vision.ID()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrShutdown
	}
	if running, ok := s.active[deviceID]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s runs %s", ErrBuildInProgress, deviceID, running.ID())
	}

	ctx, cancel := context.WithCancel(s.ctx)
	task := newTask("bld-"+uuid.NewString()[:8], deviceID, len(b.Targets), cancel)
	s.tasks[task.ID()] = task
	s.active[deviceID] = task
	s.pruneLocked()
	s.wg.Add(1)
	s.mu.Unlock()

	s.changed(task)
	s.logger.Info("build queued", "task_id", task.ID(), "device_id", deviceID, "pre_delay", preDelay.String())

	go s.run(ctx, task, b, preDelay)
	return task, nil
}

func (s *Sequencer) run(ctx context.Context, task *Task, b *Build, preDelay time.Duration) {
	defer s.wg.Done()
	defer task.cancel()

	rep := s.execute(ctx, task, b, preDelay)

	s.mu.Lock()
	if s.active[task.Device()] == task {
		delete(s.active, task.Device())
	}
	s.mu.Unlock()

	task.finish(rep)
	s.changed(task)
	close(task.done)

	if rep.Err != nil && rep.Status != StatusCancelled {
		s.logger.Warn("build ended", "task_id", task.ID(), "status", rep.Status, "error", rep.Err)
	}
}

func (s *Sequencer) execute(ctx context.Context, task *Task, b *Build, preDelay time.Duration) BuildReport {
	if preDelay > 0 {
		timer := time.NewTimer(preDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			now := time.Now().UTC()
			return BuildReport{
				Report: Report{
					Workflow:   "build",
					Status:     StatusCancelled,
					Skipped:    len(b.Targets),
					Err:        ctx.Err(),
					StartedAt:  now,
					FinishedAt: now,
				},
				Device: task.Device(),
			}
		}
	}

	task.setStatus(StatusRunning)
	s.changed(task)
	return b.Run(ctx)
}

// changed persists and announces the task's current snapshot. Failures are
// logged and otherwise ignored.
func (s *Sequencer) changed(task *Task) {
	info := task.Info()
	if s.store != nil {
		if err := s.store.SaveTask(context.Background(), info); err != nil {
			s.logger.Error("failed to save build task", "task_id", info.ID, "error", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.BuildStatus(info); err != nil {
			s.logger.Debug("failed to publish build status", "task_id", info.ID, "error", err)
		}
	}
}

// pruneLocked drops the oldest finished tasks beyond maxRetainedTasks.
func (s *Sequencer) pruneLocked() {
	if len(s.tasks) <= maxRetainedTasks {
		return
	}
	var finished []*Task
	for _, t := range s.tasks {
		if t.Status().Terminal() {
			finished = append(finished, t)
		}
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].startedAt.Before(finished[j].startedAt) })
	for _, t := range finished {
		if len(s.tasks) <= maxRetainedTasks {
			break
		}
		delete(s.tasks, t.ID())
	}
}

// Task returns a task by ID.
func (s *Sequencer) Task(id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

// Active returns the running build of a device, if any.
func (s *Sequencer) Active(deviceID string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.active[deviceID]
	return t, ok
}

// Tasks returns snapshots of the known tasks, most recent first.
func (s *Sequencer) Tasks() []TaskInfo {
	s.mu.Lock()
	tasks := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	infos := make([]TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		infos = append(infos, t.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].StartedAt.After(infos[j].StartedAt) })
	return infos
}

// Shutdown cancels every running build and waits for them to stop.
func (s *Sequencer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for builds: %w", ctx.Err())
	}
}
