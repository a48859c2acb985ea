// Package sim simulates the hardware of a work-cell.
//
// A Robot implements every capability interface. Behaviour is scripted
// through its exported fields: the queue of detections, how long a piece
// takes to reach the conveyor sensor, the pressure read after a grip, and
// per-operation failures. Every primitive call is appended to a call log
// that tests can inspect.
package sim

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nothineazi/robotic-chain-control/internal/capability"
	"github.com/nothineazi/robotic-chain-control/internal/valuechannel"
)

// Operation names used in the call log and in FailOn.
const (
	OpMoveTo         = "MoveTo"
	OpMoveJoints     = "MoveJoints"
	OpGrip           = "Grip"
	OpRelease        = "Release"
	OpRunConveyor    = "RunConveyor"
	OpStopConveyor   = "StopConveyor"
	OpMoveConveyorBy = "MoveConveyorBy"
	OpReadSensor     = "ReadDigitalSensor"
	OpDetect         = "DetectObject"
	OpVisionPick     = "VisionPick"
	OpCheckPressure  = "CheckGripPressure"
)

// Default pressures written on grip.
const (
	HeldPressure  = 0.8
	EmptyPressure = 0.1
)

// Robot is a simulated device.
type Robot struct {
	mu sync.Mutex

	// ArrivalDelay is how long after RunConveyor the sensor goes LOW.
	// Negative means a piece never arrives.
	ArrivalDelay time.Duration

	// GripPressure is the pressure reported after Grip.
	GripPressure float64

	// Detections are returned by DetectObject in order. When the queue is
	// empty, Default is returned.
	Detections []capability.Detection
	Default    capability.Detection

	// FailOn makes the named operation return the error.
	FailOn map[string]error

	// PressureChannel, when set, receives GripPressure on every Grip so the
	// pressure gauge can read it back over the value channel.
	PressureChannel valuechannel.Channel
	PressureAddress valuechannel.Address

	pose          capability.Pose
	joints        capability.Joints
	gripping      bool
	conveyorStart map[int]time.Time
	conveyorPos   float64
	calls         []string
	now           func() time.Time
}

// New returns a robot whose pieces arrive immediately, grips hold and
// vision sees a red square.
func New() *Robot {
	return &Robot{
		GripPressure:  HeldPressure,
		Default:       capability.Detection{Found: true, Shape: capability.ShapeSquare, Color: capability.ColorRed},
		FailOn:        map[string]error{},
		conveyorStart: map[int]time.Time{},
		now:           time.Now,
	}
}

// Caps returns the robot as a full capability set.
func (r *Robot) Caps() capability.Set {
	return capability.Set{Arm: r, Conveyor: r, Sensor: r, Vision: r, Grip: r}
}

// QueueDetections appends scripted detections.
func (r *Robot) QueueDetections(d ...capability.Detection) {
	r.mu.Lock()
	r.Detections = append(r.Detections, d...)
	r.mu.Unlock()
}

// Fail makes op return err until cleared with Fail(op, nil).
func (r *Robot) Fail(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.FailOn, op)
		return
	}
	r.FailOn[op] = err
}

// Calls returns the call log.
func (r *Robot) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// CountCalls returns how many logged calls start with op.
func (r *Robot) CountCalls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == op || strings.HasPrefix(c, op+"(") {
			n++
		}
	}
	return n
}

// Pose returns the current tool pose.
func (r *Robot) Pose() capability.Pose {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pose
}

// Gripping reports whether the gripper is closed.
func (r *Robot) Gripping() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gripping
}

// ConveyorRunning reports whether conveyor id is running.
func (r *Robot) ConveyorRunning(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conveyorStart[id]
	return ok
}

// ConveyorPosition is the sum of relative conveyor moves.
func (r *Robot) ConveyorPosition() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conveyorPos
}

// begin logs call and returns the scripted failure for op. Callers hold r.mu.
func (r *Robot) begin(ctx context.Context, op, call string) error {
	r.calls = append(r.calls, call)
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.FailOn[op]
}

// MoveTo implements capability.Arm.
func (r *Robot) MoveTo(ctx context.Context, pose capability.Pose) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.begin(ctx, OpMoveTo, OpMoveTo); err != nil {
		return err
	}
	r.pose = pose
	return nil
}

// MoveJoints implements capability.Arm.
func (r *Robot) MoveJoints(ctx context.Context, angles capability.Joints) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.begin(ctx, OpMoveJoints, fmt.Sprintf("%s(%v)", OpMoveJoints, []float64(angles))); err != nil {
		return err
	}
	r.joints = append(capability.Joints(nil), angles...)
	return nil
}

// Grip implements capability.Arm.
func (r *Robot) Grip(ctx context.Context) error {
	r.mu.Lock()
	if err := r.begin(ctx, OpGrip, OpGrip); err != nil {
		r.mu.Unlock()
		return err
	}
	r.gripping = true
	ch, addr, p := r.PressureChannel, r.PressureAddress, r.GripPressure
	r.mu.Unlock()

	if ch != nil {
		if err := ch.WriteFloat(ctx, addr, p); err != nil {
			return fmt.Errorf("publishing simulated pressure: %w", err)
		}
	}
	return nil
}

// Release implements capability.Arm.
func (r *Robot) Release(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.begin(ctx, OpRelease, OpRelease); err != nil {
		return err
	}
	r.gripping = false
	return nil
}

// RunConveyor implements capability.Conveyor.
func (r *Robot) RunConveyor(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.begin(ctx, OpRunConveyor, OpRunConveyor); err != nil {
		return err
	}
	r.conveyorStart[id] = r.now()
	return nil
}

// StopConveyor implements capability.Conveyor.
func (r *Robot) StopConveyor(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Stopping is attempted even on a cancelled context.
	r.calls = append(r.calls, OpStopConveyor)
	delete(r.conveyorStart, id)
	return r.FailOn[OpStopConveyor]
}

// MoveConveyorBy implements capability.Conveyor.
func (r *Robot) MoveConveyorBy(ctx context.Context, offset float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.begin(ctx, OpMoveConveyorBy, fmt.Sprintf("%s(%g)", OpMoveConveyorBy, offset)); err != nil {
		return err
	}
	r.conveyorPos += offset
	return nil
}

// ReadDigitalSensor implements capability.Sensor. The pin stays HIGH until
// a piece has had ArrivalDelay to travel on a running conveyor.
func (r *Robot) ReadDigitalSensor(ctx context.Context, _ string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.begin(ctx, OpReadSensor, OpReadSensor); err != nil {
		return false, err
	}
	if r.ArrivalDelay < 0 {
		return true, nil
	}
	for _, started := range r.conveyorStart {
		if r.now().Sub(started) >= r.ArrivalDelay {
			return false, nil
		}
	}
	return true, nil
}

// DetectObject implements capability.Vision.
// A piece that fails the shape or color filter is reported as not found,
// as a filtering camera would.
func (r *Robot) DetectObject(ctx context.Context, _ string, shape capability.Shape, color capability.Color) (capability.Detection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.begin(ctx, OpDetect, OpDetect); err != nil {
		return capability.Detection{}, err
	}
	d := r.Default
	if len(r.Detections) > 0 {
		d = r.Detections[0]
		r.Detections = r.Detections[1:]
	}
	if d.Found && (!shape.Matches(d.Shape) || !color.Matches(d.Color)) {
		return capability.Detection{}, nil
	}
	return d, nil
}

// VisionPick implements capability.Vision.
func (r *Robot) VisionPick(ctx context.Context, _ string, _ capability.Shape, _ capability.Color) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.begin(ctx, OpVisionPick, OpVisionPick); err != nil {
		return err
	}
	r.gripping = true
	return nil
}

// CheckGripPressure implements capability.GripChecker.
func (r *Robot) CheckGripPressure(ctx context.Context) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.begin(ctx, OpCheckPressure, OpCheckPressure); err != nil {
		return 0, err
	}
	return r.GripPressure, nil
}
