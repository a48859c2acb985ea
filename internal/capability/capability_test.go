package capability_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nothineazi/robotic-chain-control/internal/capability"
	"github.com/nothineazi/robotic-chain-control/internal/valuechannel"
)

const pointsFile = `observe_point: x = 0.0312, y = 0.2752, z = -0.3583
roll = -0.0337, pitch = -1.7320, yaw = 0.0078
reload_point: [x=-1.445, y=-0.594, z=0.249, roll=-0.359, pitch=-1.313, yaw=-1.443]

pickpoint: x = -1.046, y = -1.008, z = 0.634, roll = -0.291, pitch = -1.393, yaw = -0.997
arches_point: [x = 0.126, y = 0.2988, z = 0.1431
roll = 2.128, pitch = 1.48, yaw = -2.647, x = 0.1527, y = 0.287, z = 0.1429
roll = 3.007, pitch = 1.498, yaw = -1.759]
`

func TestParsePoints(t *testing.T) {
	points, err := capability.ParsePoints(strings.NewReader(pointsFile))
	if err != nil {
		t.Fatalf("ParsePoints() error = %v", err)
	}

	observe, err := points.Pose(capability.PointObserve)
	if err != nil {
		t.Fatalf("Pose(observe) error = %v", err)
	}
	want := capability.Pose{X: 0.0312, Y: 0.2752, Z: -0.3583, Roll: -0.0337, Pitch: -1.7320, Yaw: 0.0078}
	if observe != want {
		t.Errorf("observe = %+v, want %+v", observe, want)
	}

	reload, err := points.Pose(capability.PointReload)
	if err != nil || reload.X != -1.445 || reload.Yaw != -1.443 {
		t.Errorf("reload = %+v, %v", reload, err)
	}

	arches, err := points.Poses(capability.PointArches)
	if err != nil {
		t.Fatalf("Poses(arches) error = %v", err)
	}
	if len(arches) != 2 || arches[1].X != 0.1527 || arches[1].Yaw != -1.759 {
		t.Errorf("arches = %+v", arches)
	}

	if _, err := points.Pose(capability.PointConveyorStart); !errors.Is(err, capability.ErrMissingPoint) {
		t.Errorf("missing point error = %v, want ErrMissingPoint", err)
	}
	if _, err := points.Pose(capability.PointArches); !errors.Is(err, capability.ErrInvalidPoints) {
		t.Errorf("Pose() on a 12-value point error = %v, want ErrInvalidPoints", err)
	}
}

func TestParsePoints_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"values before name", "x = 1, y = 2\n"},
		{"missing equals", "pickpoint: x 1\n"},
		{"bad number", "pickpoint: x = one\n"},
		{"empty name", ": x = 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := capability.ParsePoints(strings.NewReader(tt.input))
			if !errors.Is(err, capability.ErrInvalidPoints) {
				t.Errorf("error = %v, want ErrInvalidPoints", err)
			}
		})
	}
}

func TestLoadPoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points_coordinates.txt")
	if err := os.WriteFile(path, []byte(pointsFile), 0o600); err != nil {
		t.Fatal(err)
	}
	points, err := capability.LoadPoints(path)
	if err != nil {
		t.Fatalf("LoadPoints() error = %v", err)
	}
	if len(points) != 4 {
		t.Errorf("points = %d, want 4", len(points))
	}
	if _, err := capability.LoadPoints(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("LoadPoints() on a missing file should fail")
	}
}

func TestParseShapeAndColor(t *testing.T) {
	shapes := map[string]capability.Shape{"Square": capability.ShapeSquare, " circle ": capability.ShapeCircle, "ANY": capability.ShapeAny}
	for in, want := range shapes {
		got, err := capability.ParseShape(in)
		if err != nil || got != want {
			t.Errorf("ParseShape(%q) = %q, %v", in, got, err)
		}
	}
	colors := map[string]capability.Color{"Red": capability.ColorRed, "green": capability.ColorGreen, "BLUE": capability.ColorBlue}
	for in, want := range colors {
		got, err := capability.ParseColor(in)
		if err != nil || got != want {
			t.Errorf("ParseColor(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := capability.ParseShape("triangle"); err == nil {
		t.Error("ParseShape(triangle) should fail")
	}
	if _, err := capability.ParseColor("purple"); err == nil {
		t.Error("ParseColor(purple) should fail")
	}

	if !capability.ShapeAny.Matches(capability.ShapeCircle) || capability.ShapeSquare.Matches(capability.ShapeCircle) {
		t.Error("Shape.Matches wrong")
	}
	if !capability.ColorBlue.Matches(capability.ColorBlue) || capability.ColorBlue.Matches(capability.ColorRed) {
		t.Error("Color.Matches wrong")
	}
}

func TestPoseFromValues(t *testing.T) {
	if _, err := capability.PoseFromValues([]float64{1, 2, 3}); !errors.Is(err, capability.ErrInvalidPoints) {
		t.Errorf("error = %v, want ErrInvalidPoints", err)
	}
	p, err := capability.PoseFromValues([]float64{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatal(err)
	}
	if v := p.Values(); v[0] != 1 || v[5] != 6 {
		t.Errorf("Values() = %v", v)
	}
	if p.Axes()["pitch"] != 5 {
		t.Errorf("Axes() = %v", p.Axes())
	}
}

var pressureAddr = valuechannel.Address{Namespace: "mynamespace", Object: "vPLC", Name: "pression"}

func TestPressureGauge(t *testing.T) {
	t.Run("reads value", func(t *testing.T) {
		ch := valuechannel.NewMemory()
		if err := ch.WriteFloat(context.Background(), pressureAddr, 0.73); err != nil {
			t.Fatal(err)
		}
		g := capability.NewPressureGauge(ch, pressureAddr, time.Second)
		p, err := g.CheckGripPressure(context.Background())
		if err != nil || p != 0.73 {
			t.Errorf("CheckGripPressure() = %v, %v", p, err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		g := capability.NewPressureGauge(valuechannel.NewMemory(), pressureAddr, 20*time.Millisecond)
		_, err := g.CheckGripPressure(context.Background())
		if !errors.Is(err, capability.ErrGraspCheckTimeout) {
			t.Errorf("error = %v, want ErrGraspCheckTimeout", err)
		}
	})

	t.Run("caller cancel", func(t *testing.T) {
		g := capability.NewPressureGauge(valuechannel.NewMemory(), pressureAddr, time.Second)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := g.CheckGripPressure(ctx)
		if !errors.Is(err, context.Canceled) || errors.Is(err, capability.ErrGraspCheckTimeout) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})

	t.Run("bad value", func(t *testing.T) {
		ch := valuechannel.NewMemory()
		if err := ch.WriteBlob(context.Background(), pressureAddr, []byte("n/a")); err != nil {
			t.Fatal(err)
		}
		g := capability.NewPressureGauge(ch, pressureAddr, time.Second)
		if _, err := g.CheckGripPressure(context.Background()); !errors.Is(err, valuechannel.ErrInvalidValue) {
			t.Errorf("error = %v, want ErrInvalidValue", err)
		}
	})
}

type fakeSeries struct {
	points  []string
	axes    map[string]float64
	sensors []bool
	held    []bool
}

func (f *fakeSeries) WriteMotion(_, point string, axes map[string]float64) {
	f.points = append(f.points, point)
	f.axes = axes
}

func (f *fakeSeries) WriteSensorDetection(_, _ string, detected bool, _ time.Duration) {
	f.sensors = append(f.sensors, detected)
}

func (f *fakeSeries) WriteGripPressure(_ string, _, _ float64, held bool) {
	f.held = append(f.held, held)
}

func TestSeriesTracer(t *testing.T) {
	f := &fakeSeries{}
	var tr capability.Tracer = capability.NewSeriesTracer(f)

	tr.TracePoint("ned2", capability.PointObserve, capability.Pose{X: 0.5})
	tr.TraceDetection("ned2", "DI5", true, time.Second)
	tr.TracePressure("ned2", 0.8, 0.5, true)

	if len(f.points) != 1 || f.points[0] != "observe_point" || f.axes["x"] != 0.5 {
		t.Errorf("motion = %v %v", f.points, f.axes)
	}
	if len(f.sensors) != 1 || !f.sensors[0] {
		t.Errorf("sensor = %v", f.sensors)
	}
	if len(f.held) != 1 || !f.held[0] {
		t.Errorf("pressure = %v", f.held)
	}

	// NopTracer accepts everything.
	capability.NopTracer{}.TracePoint("ned2", "x", capability.Pose{})
}
