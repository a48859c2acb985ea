package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nothineazi/robotic-chain-control/internal/capability"
	"github.com/nothineazi/robotic-chain-control/internal/cell"
	"github.com/nothineazi/robotic-chain-control/internal/device"
)

// DefaultHandoffOffset is the relative conveyor move of the hand-off.
const DefaultHandoffOffset = 100.0

// BuildOps are the vision cell operations a build needs.
// *cell.VisionCell satisfies it.
type BuildOps interface {
	LoadPiece(ctx context.Context) error
	ConveyUntilDetect(ctx context.Context) error
	ClassifyAndPlace(ctx context.Context, shape capability.Shape, color capability.Color, slot int) error
	Slots() int
}

// HandoffOps advance the shared conveyor. *cell.ConveyorCell satisfies it.
type HandoffOps interface {
	MoveConveyor(ctx context.Context, offset float64) error
}

// HandoffFunc is called after the hand-off gate ran.
type HandoffFunc func(from, to string, res device.Result)

// Build places every target in order, retrying each until its classify
// step succeeds, then hands off to the second device.
type Build struct {
	Targets []Target

	Vision    Gater
	VisionOps BuildOps

	// Handoff is optional. When nil the build ends after the last target.
	Handoff       Gater
	HandoffOps    HandoffOps
	HandoffOffset float64
	OnHandoff     HandoffFunc

	Services Services

	// MaxAttempts caps the attempts per target. Zero means unbounded.
	MaxAttempts int

	Logger Logger
}

// TargetOutcome is the result of one target.
type TargetOutcome struct {
	Target   Target `json:"target"`
	Slot     int    `json:"slot"`
	Attempts int    `json:"attempts"`
	Placed   bool   `json:"placed"`
}

// BuildReport summarises a build.
type BuildReport struct {
	Report

	Device   string          `json:"device_id"`
	Outcomes []TargetOutcome `json:"targets"`
	Placed   int             `json:"placed"`
	Attempts int             `json:"attempts"`

	// HandoffResult is set when the hand-off gate ran.
	HandoffResult *device.Result `json:"-"`
}

// Validate checks that the build can start.
func (b *Build) Validate() error {
	if b.Vision == nil || b.VisionOps == nil {
		return fmt.Errorf("%w: vision device required", ErrInvalidBuild)
	}
	if len(b.Targets) == 0 {
		return fmt.Errorf("%w: no targets", ErrInvalidBuild)
	}
	if n := b.VisionOps.Slots(); len(b.Targets) > n {
		return fmt.Errorf("%w: %d targets for %d build slots", ErrInvalidBuild, len(b.Targets), n)
	}
	if (b.Handoff == nil) != (b.HandoffOps == nil) {
		return fmt.Errorf("%w: hand-off needs both a device and its operations", ErrInvalidBuild)
	}
	if b.MaxAttempts < 0 {
		return fmt.Errorf("%w: max attempts must not be negative", ErrInvalidBuild)
	}
	return nil
}

func (b *Build) services() Services {
	def := DefaultServices()
	s := b.Services
	if s.Pick == "" {
		s.Pick = def.Pick
	}
	if s.Convey == "" {
		s.Convey = def.Convey
	}
	if s.Classify == "" {
		s.Classify = def.Classify
	}
	if s.Place == "" {
		s.Place = def.Place
	}
	if s.Handoff == "" {
		s.Handoff = def.Handoff
	}
	return s
}

// Run executes the build. It stops at the next step boundary once ctx ends.
func (b *Build) Run(ctx context.Context) BuildReport {
	logger := b.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	rep := BuildReport{
		Report: Report{Workflow: "build", Status: StatusRunning, StartedAt: time.Now().UTC()},
	}
	if b.Vision != nil {
		rep.Device = b.Vision.ID()
	}

	if err := b.Validate(); err != nil {
		rep.Status = StatusFailed
		rep.Err = err
		rep.FinishedAt = time.Now().UTC()
		return rep
	}

	svc := b.services()
	logger.Info("build started", "device_id", rep.Device, "targets", len(b.Targets))

	for i, target := range b.Targets {
		outcome, err := b.place(ctx, svc, &rep, target, i, logger)
		rep.Outcomes = append(rep.Outcomes, outcome)
		if err != nil {
			rep.Err = err
			rep.Status = endStatus(ctx, err)
			rep.Skipped = len(b.Targets) - i - 1
			break
		}
		rep.Placed++
	}

	if rep.Status == StatusRunning && b.Handoff != nil {
		if err := b.handoff(ctx, svc, &rep); err != nil {
			rep.Err = err
			rep.Status = endStatus(ctx, err)
		}
	}

	if rep.Status == StatusRunning {
		rep.Status = StatusCompleted
	}
	rep.FinishedAt = time.Now().UTC()

	logger.Info("build complete",
		"device_id", rep.Device,
		"status", rep.Status,
		"placed", rep.Placed,
		"attempts", rep.Attempts,
		"duration_ms", rep.Duration().Milliseconds(),
	)
	return rep
}

// place retries one target until its classify step succeeds.
func (b *Build) place(ctx context.Context, svc Services, rep *BuildReport, target Target, slot int, logger Logger) (TargetOutcome, error) {
	out := TargetOutcome{Target: target, Slot: slot}

	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if b.MaxAttempts > 0 && out.Attempts >= b.MaxAttempts {
			return out, fmt.Errorf("%w: %s after %d attempts", ErrMaxAttempts, target.Name, out.Attempts)
		}
		out.Attempts++
		rep.Attempts++

		res := b.gate(ctx, rep, svc.Pick, func(ctx context.Context, _ capability.Set) error {
			return b.VisionOps.LoadPiece(ctx)
		})
		if !res.Success {
			if fatal(res.Err) {
				return out, res.Err
			}
			continue
		}

		res = b.gate(ctx, rep, svc.Convey, func(ctx context.Context, _ capability.Set) error {
			return b.VisionOps.ConveyUntilDetect(ctx)
		})
		if !res.Success {
			if fatal(res.Err) {
				return out, res.Err
			}
			continue
		}

		res = b.gate(ctx, rep, svc.Classify, func(ctx context.Context, _ capability.Set) error {
			return b.VisionOps.ClassifyAndPlace(ctx, target.Shape, target.Color, slot)
		})
		if res.Success {
			out.Placed = true
			logger.Info("target placed", "device_id", rep.Device, "target", target.Name, "slot", slot, "attempts", out.Attempts)
			return out, nil
		}
		if fatal(res.Err) {
			return out, res.Err
		}
		logger.Debug("target attempt failed", "device_id", rep.Device, "target", target.Name, "attempt", out.Attempts, "kind", res.Kind())
	}
}

func (b *Build) handoff(ctx context.Context, svc Services, rep *BuildReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	offset := b.HandoffOffset
	if offset == 0 {
		offset = DefaultHandoffOffset
	}
	res := b.Handoff.Gate(ctx, svc.Handoff, func(ctx context.Context, _ capability.Set) error {
		return b.HandoffOps.MoveConveyor(ctx, offset)
	})
	rep.add(res)
	rep.HandoffResult = &res
	if b.OnHandoff != nil {
		b.OnHandoff(rep.Device, b.Handoff.ID(), res)
	}
	if !res.Success {
		return fmt.Errorf("hand-off to %s: %w", b.Handoff.ID(), res.Err)
	}
	return nil
}

func (b *Build) gate(ctx context.Context, rep *BuildReport, service string, action device.Action) device.Result {
	res := b.Vision.Gate(ctx, service, action)
	rep.add(res)
	return res
}

// fatal reports whether retrying the attempt cannot help.
func fatal(err error) bool {
	return errors.Is(err, device.ErrServiceUnavailable) ||
		errors.Is(err, device.ErrDeviceFaulted) ||
		errors.Is(err, device.ErrDeviceBusy) ||
		errors.Is(err, device.ErrInvalidConfig) ||
		errors.Is(err, capability.ErrUnsupported) ||
		errors.Is(err, capability.ErrMissingPoint) ||
		errors.Is(err, cell.ErrNoSlot)
}

func endStatus(ctx context.Context, err error) Status {
	switch {
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return StatusCancelled
	case errors.Is(err, device.ErrServiceUnavailable):
		return StatusAborted
	default:
		return StatusFailed
	}
}
