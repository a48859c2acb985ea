package capability

import "context"

// Arm moves the tool and operates the gripper.
type Arm interface {
	MoveTo(ctx context.Context, pose Pose) error
	MoveJoints(ctx context.Context, angles Joints) error
	Grip(ctx context.Context) error
	Release(ctx context.Context) error
}

// Conveyor drives a belt.
type Conveyor interface {
	RunConveyor(ctx context.Context, id int) error
	StopConveyor(ctx context.Context, id int) error
	// MoveConveyorBy moves the belt by a relative offset.
	MoveConveyorBy(ctx context.Context, offset float64) error
}

// Sensor reads digital inputs.
type Sensor interface {
	// ReadDigitalSensor returns true when the pin reads HIGH.
	ReadDigitalSensor(ctx context.Context, pin string) (bool, error)
}

// Vision locates workpieces inside a calibrated workspace.
type Vision interface {
	DetectObject(ctx context.Context, workspace string, shape Shape, color Color) (Detection, error)
	// VisionPick grasps the object matching the filters.
	VisionPick(ctx context.Context, workspace string, shape Shape, color Color) error
}

// GripChecker measures grip pressure.
type GripChecker interface {
	CheckGripPressure(ctx context.Context) (float64, error)
}

// Set bundles the capabilities of one device. Fields a device does not
// have are left nil; operations needing them fail with ErrUnsupported.
type Set struct {
	Arm      Arm
	Conveyor Conveyor
	Sensor   Sensor
	Vision   Vision
	Grip     GripChecker
}
