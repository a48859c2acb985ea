package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nothineazi/robotic-chain-control/internal/capability"
	"github.com/nothineazi/robotic-chain-control/internal/execlog"
	"github.com/nothineazi/robotic-chain-control/internal/registry"
)

// Logger defines the logging interface used by Device.
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

// Registry is the part of *registry.Store a device uses.
type Registry interface {
	Query(name string) (registry.ServiceDescriptor, error)
	State() (registry.State, error)
	SetState(name registry.State) error
}

// Recorder writes execution records. *execlog.Recorder satisfies it.
type Recorder interface {
	Record(ctx context.Context, rec execlog.Record) (execlog.Record, error)
}

// StatePublisher is told about every operational state change.
type StatePublisher interface {
	PublishState(deviceID string, state registry.State) error
}

// PublisherFunc adapts a function to StatePublisher.
type PublisherFunc func(deviceID string, state registry.State) error

// PublishState calls f.
func (f PublisherFunc) PublishState(deviceID string, state registry.State) error {
	return f(deviceID, state)
}

// Action is a physical operation run under the gate.
type Action func(ctx context.Context, caps capability.Set) error

// Config configures New.
type Config struct {
	ID        string
	Registry  Registry
	Caps      capability.Set
	Recorder  Recorder
	Publisher StatePublisher
	Logger    Logger
}

// Device is one work-cell.
//
// Gated actions on a device run one at a time. An action must not call
// Gate on its own device.
type Device struct {
	id        string
	reg       Registry
	caps      capability.Set
	sm        stateMachine
	recorder  Recorder
	publisher StatePublisher
	logger    Logger

	gateMu sync.Mutex
	now    func() time.Time
}

// New creates a device. A device found Active is reset to Idle, since no
// action can be in flight before the device exists.
func New(cfg Config) (*Device, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidConfig)
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("%w: registry is required", ErrInvalidConfig)
	}
	d := &Device{
		id:        cfg.ID,
		reg:       cfg.Registry,
		caps:      cfg.Caps,
		sm:        stateMachine{reg: cfg.Registry},
		recorder:  cfg.Recorder,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		now:       time.Now,
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	if d.recorder == nil {
		d.recorder = execlog.NewRecorder()
	}

	if st, err := d.sm.current(); err == nil && st == registry.StateActive {
		d.logger.Warn("device found active at startup, resetting to idle", "device_id", d.id)
		if err := d.sm.exit(); err != nil {
			return nil, fmt.Errorf("resetting %s to idle: %w", d.id, err)
		}
		d.publish(registry.StateIdle)
	}
	return d, nil
}

// ID returns the device ID.
func (d *Device) ID() string { return d.id }

// Caps returns the device capabilities.
func (d *Device) Caps() capability.Set { return d.caps }

// Registry returns the device registry.
func (d *Device) Registry() Registry { return d.reg }

// State returns the persisted operational state.
func (d *Device) State() (registry.State, error) {
	return d.sm.current()
}

// SetState applies an external state change, such as an operator raising
// or clearing Error. It waits for any gated action in progress.
func (d *Device) SetState(st registry.State) error {
	d.gateMu.Lock()
	defer d.gateMu.Unlock()

	if err := d.reg.SetState(st); err != nil {
		return err
	}
	d.logger.Info("device state set", "device_id", d.id, "state", st)
	d.publish(st)
	return nil
}

// Gate runs action if service is configured and the device is Idle.
//
// Every call writes exactly one execution record. Failures that happen
// before the action starts are recorded with zero duration, and the action
// is never invoked. The device is left Idle unless it was in Error.
func (d *Device) Gate(ctx context.Context, service string, action Action) Result {
	d.gateMu.Lock()
	defer d.gateMu.Unlock()

	res := Result{Device: d.id, Service: service}

	st, stateErr := d.sm.current()
	if stateErr == nil && st == registry.StateError {
		res.Err = fmt.Errorf("%w: %s", ErrDeviceFaulted, d.id)
		return d.finish(ctx, res)
	}

	if _, err := d.reg.Query(service); err != nil {
		res.Err = fmt.Errorf("%w: %s: %w", ErrServiceUnavailable, service, err)
		if stateErr == nil && st != registry.StateIdle {
			d.ensureIdle()
		}
		return d.finish(ctx, res)
	}
	if stateErr != nil {
		res.Err = fmt.Errorf("%w: %s: %w", ErrServiceUnavailable, service, stateErr)
		return d.finish(ctx, res)
	}

	if err := ctx.Err(); err != nil {
		res.Err = err
		return d.finish(ctx, res)
	}

	if err := d.sm.enter(st); err != nil {
		res.Err = err
		return d.finish(ctx, res)
	}
	d.publish(registry.StateActive)

	start := d.now()
	res.Err = d.invoke(ctx, action)
	res.Duration = d.now().Sub(start)
	res.Success = res.Err == nil

	// Idle is restored before the record is written so the record carries
	// a failed restore.
	if err := d.sm.exit(); err != nil {
		d.logger.Error("restoring idle failed", "device_id", d.id, "service", service, "error", err)
		res.Success = false
		res.Err = errors.Join(res.Err, fmt.Errorf("restoring idle: %w", err))
	} else {
		d.publish(registry.StateIdle)
	}
	return d.finish(ctx, res)
}

func (d *Device) invoke(ctx context.Context, action Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrActionPanic, r)
		}
	}()
	return action(ctx, d.caps)
}

// finish writes the execution record and logs a failure once.
func (d *Device) finish(ctx context.Context, res Result) Result {
	rec := execlog.Record{
		Device:   d.id,
		Service:  res.Service,
		Success:  res.Success,
		Duration: res.Duration,
	}
	if !res.Success {
		rec.ErrorKind = res.Kind()
		rec.Error = res.Err.Error()
	}

	// The record outlives a cancelled build.
	written, err := d.recorder.Record(context.WithoutCancel(ctx), rec)
	if err != nil {
		d.logger.Debug("execution record incomplete", "device_id", d.id, "service", res.Service, "error", err)
	}
	res.RecordID = written.ID

	if !res.Success {
		d.logger.Warn("gated action failed",
			"device_id", d.id,
			"service", res.Service,
			"kind", res.Kind(),
			"error", res.Err,
		)
	}
	return res
}

func (d *Device) ensureIdle() {
	if err := d.sm.exit(); err != nil {
		d.logger.Debug("could not return to idle", "device_id", d.id, "error", err)
		return
	}
	d.publish(registry.StateIdle)
}

func (d *Device) publish(st registry.State) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.PublishState(d.id, st); err != nil {
		d.logger.Debug("state publish failed", "device_id", d.id, "state", st, "error", err)
	}
}
