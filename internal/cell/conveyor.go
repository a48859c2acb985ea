package cell

import (
	"context"
	"fmt"

	"github.com/nothineazi/robotic-chain-control/internal/capability"
)

// Piece identifies a workpiece by shape and color.
type Piece struct {
	Shape capability.Shape
	Color capability.Color
}

func (p Piece) String() string { return string(p.Color) + " " + string(p.Shape) }

// DefaultPickTable holds the joint angles over each piece in the second
// cell's storage.
var DefaultPickTable = map[Piece]capability.Joints{
	{capability.ShapeSquare, capability.ColorBlue}:  {-19.8, 60.0, -10.0, 0.0, -59.8, 0.0},
	{capability.ShapeCircle, capability.ColorBlue}:  {-15.0, 70.0, -25.0, 10.0, -39.7, -20.0},
	{capability.ShapeSquare, capability.ColorRed}:   {-39.9, 60.0, 10.0, 5.0, -44.7, 0.0},
	{capability.ShapeCircle, capability.ColorRed}:   {-28.4, 70.0, -20.5, 2.4, -30.7, 7.0},
	{capability.ShapeSquare, capability.ColorGreen}: {-15.0, 50.0, 25.0, -5.0, -48.7, -5.0},
	{capability.ShapeCircle, capability.ColorGreen}: {-29.9, 45.0, 25.0, -5.0, -79.7, 0.0},
}

// Ramp release path: home, over the ramp, home.
var (
	HomeJoints = capability.Joints{0, 0, 0, 0, 0, 0}
	RampJoints = capability.Joints{-75.0, 20.0, -15.0, 5.0, -5.0, 0.0}
)

// ConveyorCell runs the second arm and the shared conveyor.
type ConveyorCell struct {
	caps      capability.Set
	pickTable map[Piece]capability.Joints
}

// NewConveyorCell creates a cell. A nil table selects DefaultPickTable.
func NewConveyorCell(caps capability.Set, table map[Piece]capability.Joints) *ConveyorCell {
	if table == nil {
		table = DefaultPickTable
	}
	return &ConveyorCell{caps: caps, pickTable: table}
}

// Pick moves over the stored piece and grips it.
func (c *ConveyorCell) Pick(ctx context.Context, shape capability.Shape, color capability.Color) error {
	if c.caps.Arm == nil {
		return fmt.Errorf("%w: arm", capability.ErrUnsupported)
	}
	p := Piece{Shape: shape, Color: color}
	joints, ok := c.pickTable[p]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPiece, p)
	}
	if err := c.caps.Arm.MoveJoints(ctx, joints); err != nil {
		return fmt.Errorf("moving over %s: %w", p, err)
	}
	if err := c.caps.Arm.Grip(ctx); err != nil {
		return fmt.Errorf("gripping %s: %w", p, err)
	}
	return nil
}

// ReleaseToRamp drops the held piece on the first cell's ramp and returns home.
func (c *ConveyorCell) ReleaseToRamp(ctx context.Context) error {
	if c.caps.Arm == nil {
		return fmt.Errorf("%w: arm", capability.ErrUnsupported)
	}
	for _, j := range []capability.Joints{HomeJoints, RampJoints} {
		if err := c.caps.Arm.MoveJoints(ctx, j); err != nil {
			return fmt.Errorf("moving to ramp: %w", err)
		}
	}
	if err := c.caps.Arm.Release(ctx); err != nil {
		return fmt.Errorf("releasing on ramp: %w", err)
	}
	if err := c.caps.Arm.MoveJoints(ctx, HomeJoints); err != nil {
		return fmt.Errorf("returning home: %w", err)
	}
	return nil
}

// MoveConveyor advances the conveyor by a relative offset.
func (c *ConveyorCell) MoveConveyor(ctx context.Context, offset float64) error {
	if c.caps.Conveyor == nil {
		return fmt.Errorf("%w: conveyor", capability.ErrUnsupported)
	}
	if err := c.caps.Conveyor.MoveConveyorBy(ctx, offset); err != nil {
		return fmt.Errorf("moving conveyor by %g: %w", offset, err)
	}
	return nil
}
