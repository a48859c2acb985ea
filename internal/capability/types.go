package capability

import (
	"fmt"
	"strings"
)

// PoseSize is the number of values in a pose: x, y, z, roll, pitch, yaw.
const PoseSize = 6

// Pose is a Cartesian tool pose.
type Pose struct {
	X, Y, Z          float64
	Roll, Pitch, Yaw float64
}

// PoseFromValues builds a pose from exactly six values.
func PoseFromValues(v []float64) (Pose, error) {
	if len(v) != PoseSize {
		return Pose{}, fmt.Errorf("%w: pose needs %d values, got %d", ErrInvalidPoints, PoseSize, len(v))
	}
	return Pose{X: v[0], Y: v[1], Z: v[2], Roll: v[3], Pitch: v[4], Yaw: v[5]}, nil
}

// Values returns the pose as x, y, z, roll, pitch, yaw.
func (p Pose) Values() []float64 {
	return []float64{p.X, p.Y, p.Z, p.Roll, p.Pitch, p.Yaw}
}

// Axes returns the pose keyed by axis name.
func (p Pose) Axes() map[string]float64 {
	return map[string]float64{
		"x": p.X, "y": p.Y, "z": p.Z,
		"roll": p.Roll, "pitch": p.Pitch, "yaw": p.Yaw,
	}
}

// Joints are joint angles in degrees, joint 1 first.
type Joints []float64

// Shape of a workpiece.
type Shape string

// Known shapes.
const (
	ShapeAny    Shape = "any"
	ShapeSquare Shape = "square"
	ShapeCircle Shape = "circle"
)

// Color of a workpiece.
type Color string

// Known colors.
const (
	ColorAny   Color = "any"
	ColorRed   Color = "red"
	ColorGreen Color = "green"
	ColorBlue  Color = "blue"
)

// ParseShape accepts a shape name in any case.
func ParseShape(s string) (Shape, error) {
	switch sh := Shape(strings.ToLower(strings.TrimSpace(s))); sh {
	case ShapeAny, ShapeSquare, ShapeCircle:
		return sh, nil
	default:
		return "", fmt.Errorf("unknown shape %q", s)
	}
}

// ParseColor accepts a color name in any case.
func ParseColor(s string) (Color, error) {
	switch c := Color(strings.ToLower(strings.TrimSpace(s))); c {
	case ColorAny, ColorRed, ColorGreen, ColorBlue:
		return c, nil
	default:
		return "", fmt.Errorf("unknown color %q", s)
	}
}

// Matches reports whether got satisfies the filter s.
func (s Shape) Matches(got Shape) bool { return s == ShapeAny || s == got }

// Matches reports whether got satisfies the filter c.
func (c Color) Matches(got Color) bool { return c == ColorAny || c == got }

// Detection is the result of one vision pass.
type Detection struct {
	Found bool  `json:"found"`
	Pose  Pose  `json:"pose"`
	Shape Shape `json:"shape"`
	Color Color `json:"color"`
}
