package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/nothineazi/robotic-chain-control/internal/capability"
	"github.com/nothineazi/robotic-chain-control/internal/device"
)

// Step is one gated action of a linear workflow.
type Step struct {
	Service string
	Action  device.Action

	// AbortOnFailure stops the workflow when the action fails.
	AbortOnFailure bool
}

// Linear runs steps strictly in order on one device. Completed steps are
// never rolled back.
type Linear struct {
	Name   string
	Device Gater
	Steps  []Step
	Logger Logger
}

// Run executes the workflow. The device is Idle when Run returns.
func (w Linear) Run(ctx context.Context) Report {
	logger := w.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	rep := Report{Workflow: w.Name, Status: StatusRunning, StartedAt: time.Now().UTC()}

	logger.Info("workflow started", "workflow", w.Name, "device_id", w.Device.ID(), "steps", len(w.Steps))

	for i, step := range w.Steps {
		if err := ctx.Err(); err != nil {
			rep.Status = StatusCancelled
			rep.Err = err
			rep.Skipped = len(w.Steps) - i
			break
		}

		res := w.Device.Gate(ctx, step.Service, step.Action)
		rep.add(res)
		if res.Success {
			continue
		}

		switch {
		case errors.Is(res.Err, device.ErrServiceUnavailable):
			rep.Status = StatusAborted
		case errors.Is(res.Err, device.ErrDeviceFaulted), step.AbortOnFailure:
			rep.Status = StatusFailed
		default:
			continue
		}
		rep.Err = res.Err
		rep.Skipped = len(w.Steps) - i - 1
		break
	}

	if rep.Status == StatusRunning {
		if rep.Failed > 0 {
			rep.Status = StatusPartial
		} else {
			rep.Status = StatusCompleted
		}
	}
	rep.FinishedAt = time.Now().UTC()

	logger.Info("workflow complete",
		"workflow", w.Name,
		"device_id", w.Device.ID(),
		"status", rep.Status,
		"completed", rep.Completed,
		"failed", rep.Failed,
		"skipped", rep.Skipped,
		"duration_ms", rep.Duration().Milliseconds(),
	)
	return rep
}

// VisionOps are the vision cell operations used by workflows.
// *cell.VisionCell satisfies it.
type VisionOps interface {
	LoadPiece(ctx context.Context) error
	ConveyUntilDetect(ctx context.Context) error
	DetectObjects(ctx context.Context) (capability.Detection, error)
	VisionPick(ctx context.Context, shape capability.Shape, color capability.Color) error
	PutBackPiece(ctx context.Context) error
	ClassifyAndPlace(ctx context.Context, shape capability.Shape, color capability.Color, slot int) error
	Slots() int
}

// FeederOps are the second cell operations. *cell.ConveyorCell satisfies it.
type FeederOps interface {
	Pick(ctx context.Context, shape capability.Shape, color capability.Color) error
	ReleaseToRamp(ctx context.Context) error
	MoveConveyor(ctx context.Context, offset float64) error
}

// PickReplace loads a piece, conveys it to the sensor, looks at it, picks it
// with vision and puts it back at the reload point. detected, when non-nil,
// receives the detection.
func PickReplace(dev Gater, ops VisionOps, svc Services, detected func(capability.Detection)) Linear {
	return Linear{
		Name:   "pick-replace",
		Device: dev,
		Steps: []Step{
			{Service: svc.Pick, AbortOnFailure: true, Action: func(ctx context.Context, _ capability.Set) error {
				return ops.LoadPiece(ctx)
			}},
			{Service: svc.Convey, Action: func(ctx context.Context, _ capability.Set) error {
				return ops.ConveyUntilDetect(ctx)
			}},
			{Service: svc.Classify, Action: detectAction(ops, detected)},
			{Service: svc.Pick, Action: func(ctx context.Context, _ capability.Set) error {
				return ops.VisionPick(ctx, capability.ShapeAny, capability.ColorAny)
			}},
			{Service: svc.Place, Action: func(ctx context.Context, _ capability.Set) error {
				return ops.PutBackPiece(ctx)
			}},
		},
	}
}

// VisionTest is a single gated detection.
func VisionTest(dev Gater, ops VisionOps, svc Services, detected func(capability.Detection)) Linear {
	return Linear{
		Name:   "vision-test",
		Device: dev,
		Steps:  []Step{{Service: svc.Classify, Action: detectAction(ops, detected)}},
	}
}

// Feed has the second cell pick a stored piece and drop it on the first
// cell's ramp.
func Feed(dev Gater, ops FeederOps, svc Services, shape capability.Shape, color capability.Color) Linear {
	return Linear{
		Name:   "feed",
		Device: dev,
		Steps: []Step{
			{Service: svc.Pick, AbortOnFailure: true, Action: func(ctx context.Context, _ capability.Set) error {
				return ops.Pick(ctx, shape, color)
			}},
			{Service: svc.Place, Action: func(ctx context.Context, _ capability.Set) error {
				return ops.ReleaseToRamp(ctx)
			}},
		},
	}
}

func detectAction(ops VisionOps, detected func(capability.Detection)) device.Action {
	return func(ctx context.Context, _ capability.Set) error {
		d, err := ops.DetectObjects(ctx)
		if err != nil {
			return err
		}
		if detected != nil {
			detected(d)
		}
		return nil
	}
}
