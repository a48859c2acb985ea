package cell

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nothineazi/robotic-chain-control/internal/capability"
)

// Defaults for VisionConfig.
const (
	DefaultSensorTimeout     = 10 * time.Second
	DefaultPollInterval      = 100 * time.Millisecond
	DefaultPressureThreshold = 0.5
)

// DefaultBuildSlots are the four arch positions: left base, right base,
// first pillar, second pillar.
var DefaultBuildSlots = []capability.Pose{
	{X: 0.126, Y: 0.2988, Z: 0.1431, Roll: 2.128, Pitch: 1.48, Yaw: -2.647},
	{X: 0.1527, Y: 0.287, Z: 0.1429, Roll: 3.007, Pitch: 1.498, Yaw: -1.759},
	{X: 0.124, Y: 0.2907, Z: 0.1509, Roll: -3.041, Pitch: 1.48, Yaw: -1.5},
	{X: 0.1486, Y: 0.2877, Z: 0.1536, Roll: -2.59, Pitch: 1.472, Yaw: -1.045},
}

// VisionConfig configures a VisionCell.
type VisionConfig struct {
	DeviceID   string
	Workspace  string
	SensorPin  string
	ConveyorID int

	SensorTimeout     time.Duration
	PollInterval      time.Duration
	PressureThreshold float64

	// Points must hold observe_point, reload_point, safe_pickpoint,
	// pickpoint and conveyor_starting_point.
	Points capability.Points

	// BuildSlots override arches_point from Points and DefaultBuildSlots.
	BuildSlots []capability.Pose
}

// VisionCell runs the vision arm.
type VisionCell struct {
	cfg    VisionConfig
	caps   capability.Set
	tracer capability.Tracer

	observe, reload, safePick, pick, conveyorStart capability.Pose
	slots                                          []capability.Pose
}

// NewVisionCell resolves the calibration points and applies defaults.
func NewVisionCell(cfg VisionConfig, caps capability.Set, tracer capability.Tracer) (*VisionCell, error) {
	if cfg.SensorTimeout <= 0 {
		cfg.SensorTimeout = DefaultSensorTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PressureThreshold <= 0 {
		cfg.PressureThreshold = DefaultPressureThreshold
	}
	if tracer == nil {
		tracer = capability.NopTracer{}
	}

	c := &VisionCell{cfg: cfg, caps: caps, tracer: tracer}
	for _, p := range []struct {
		name string
		dst  *capability.Pose
	}{
		{capability.PointObserve, &c.observe},
		{capability.PointReload, &c.reload},
		{capability.PointSafePick, &c.safePick},
		{capability.PointPick, &c.pick},
		{capability.PointConveyorStart, &c.conveyorStart},
	} {
		pose, err := cfg.Points.Pose(p.name)
		if err != nil {
			return nil, err
		}
		*p.dst = pose
	}

	switch {
	case len(cfg.BuildSlots) > 0:
		c.slots = cfg.BuildSlots
	case cfg.Points[capability.PointArches] != nil:
		slots, err := cfg.Points.Poses(capability.PointArches)
		if err != nil {
			return nil, err
		}
		c.slots = slots
	default:
		c.slots = DefaultBuildSlots
	}
	return c, nil
}

// Slots returns the number of build slots.
func (c *VisionCell) Slots() int { return len(c.slots) }

func (c *VisionCell) arm() (capability.Arm, error) {
	if c.caps.Arm == nil {
		return nil, fmt.Errorf("%w: arm", capability.ErrUnsupported)
	}
	return c.caps.Arm, nil
}

func (c *VisionCell) vision() (capability.Vision, error) {
	if c.caps.Vision == nil {
		return nil, fmt.Errorf("%w: vision", capability.ErrUnsupported)
	}
	return c.caps.Vision, nil
}

// moveTo moves to a named point and traces the visit.
func (c *VisionCell) moveTo(ctx context.Context, name string, pose capability.Pose) error {
	arm, err := c.arm()
	if err != nil {
		return err
	}
	if err := arm.MoveTo(ctx, pose); err != nil {
		return fmt.Errorf("moving to %s: %w", name, err)
	}
	c.tracer.TracePoint(c.cfg.DeviceID, name, pose)
	return nil
}

// Neutral parks the arm at the observe point.
func (c *VisionCell) Neutral(ctx context.Context) error {
	return c.moveTo(ctx, capability.PointObserve, c.observe)
}

// LoadPiece takes a raw piece from the pick point and drops it at the
// conveyor start. An empty grip is released and reported as ErrGraspFailure.
func (c *VisionCell) LoadPiece(ctx context.Context) error {
	arm, err := c.arm()
	if err != nil {
		return err
	}
	if err := c.moveTo(ctx, capability.PointSafePick, c.safePick); err != nil {
		return err
	}
	if err := c.moveTo(ctx, capability.PointPick, c.pick); err != nil {
		return err
	}
	if err := arm.Grip(ctx); err != nil {
		return fmt.Errorf("gripping: %w", err)
	}
	if err := c.verifyGrasp(ctx); err != nil {
		return err
	}
	if err := c.moveTo(ctx, capability.PointSafePick, c.safePick); err != nil {
		return err
	}
	if err := c.moveTo(ctx, capability.PointConveyorStart, c.conveyorStart); err != nil {
		return err
	}
	if err := arm.Release(ctx); err != nil {
		return fmt.Errorf("releasing on conveyor: %w", err)
	}
	return nil
}

// verifyGrasp reads grip pressure once. Pressure at or below the threshold
// means nothing is held.
func (c *VisionCell) verifyGrasp(ctx context.Context) error {
	if c.caps.Grip == nil {
		return fmt.Errorf("%w: grip pressure check", capability.ErrUnsupported)
	}
	pressure, err := c.caps.Grip.CheckGripPressure(ctx)
	if err != nil {
		c.releaseQuietly(ctx)
		return err
	}
	held := pressure > c.cfg.PressureThreshold
	c.tracer.TracePressure(c.cfg.DeviceID, pressure, c.cfg.PressureThreshold, held)
	if !held {
		c.releaseQuietly(ctx)
		return fmt.Errorf("%w: pressure %.2f <= %.2f", capability.ErrGraspFailure, pressure, c.cfg.PressureThreshold)
	}
	return nil
}

func (c *VisionCell) releaseQuietly(ctx context.Context) {
	if arm, err := c.arm(); err == nil {
		arm.Release(context.WithoutCancel(ctx)) //nolint:errcheck // already failing
	}
}

// ConveyUntilDetect runs the conveyor until the sensor goes LOW, polling
// every PollInterval for at most SensorTimeout. The conveyor is stopped on
// every path and the outcome traced as ir_detection.
func (c *VisionCell) ConveyUntilDetect(ctx context.Context) (err error) {
	if c.caps.Conveyor == nil || c.caps.Sensor == nil {
		return fmt.Errorf("%w: conveyor with sensor", capability.ErrUnsupported)
	}
	if err := c.caps.Conveyor.RunConveyor(ctx, c.cfg.ConveyorID); err != nil {
		return fmt.Errorf("running conveyor: %w", err)
	}

	start := time.Now()
	detected := false
	defer func() {
		if stopErr := c.caps.Conveyor.StopConveyor(context.WithoutCancel(ctx), c.cfg.ConveyorID); stopErr != nil && err == nil {
			err = fmt.Errorf("stopping conveyor: %w", stopErr)
		}
		c.tracer.TraceDetection(c.cfg.DeviceID, c.cfg.SensorPin, detected, time.Since(start))
	}()

	deadline := time.NewTimer(c.cfg.SensorTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(c.cfg.PollInterval)
	defer tick.Stop()

	for {
		high, err := c.caps.Sensor.ReadDigitalSensor(ctx, c.cfg.SensorPin)
		if err != nil {
			return fmt.Errorf("reading sensor %s: %w", c.cfg.SensorPin, err)
		}
		if !high {
			detected = true
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: nothing on %s after %s", capability.ErrSensorTimeout, c.cfg.SensorPin, c.cfg.SensorTimeout)
		case <-tick.C:
		}
	}
}

// DetectObjects looks at the workspace from the observe point without
// filtering.
func (c *VisionCell) DetectObjects(ctx context.Context) (capability.Detection, error) {
	v, err := c.vision()
	if err != nil {
		return capability.Detection{}, err
	}
	if err := c.Neutral(ctx); err != nil {
		return capability.Detection{}, err
	}
	d, err := v.DetectObject(ctx, c.cfg.Workspace, capability.ShapeAny, capability.ColorAny)
	if err != nil {
		return capability.Detection{}, fmt.Errorf("detecting objects: %w", err)
	}
	return d, nil
}

// VisionPick grasps the object matching the filters.
func (c *VisionCell) VisionPick(ctx context.Context, shape capability.Shape, color capability.Color) error {
	v, err := c.vision()
	if err != nil {
		return err
	}
	if err := v.VisionPick(ctx, c.cfg.Workspace, shape, color); err != nil {
		return fmt.Errorf("vision pick: %w", err)
	}
	return nil
}

// PutBackPiece drops the held piece at the reload point.
func (c *VisionCell) PutBackPiece(ctx context.Context) error {
	arm, err := c.arm()
	if err != nil {
		return err
	}
	if err := c.moveTo(ctx, capability.PointReload, c.reload); err != nil {
		return err
	}
	if err := arm.Release(ctx); err != nil {
		return fmt.Errorf("releasing at reload point: %w", err)
	}
	return nil
}

// ClassifyAndPlace inspects the piece at the sensor and, when it matches
// the wanted shape and color, places it on build slot. A piece the filtered
// detection rejects, or one classified differently after the pick, is put
// back at the reload point and ErrPieceMismatch returned.
func (c *VisionCell) ClassifyAndPlace(ctx context.Context, shape capability.Shape, color capability.Color, slot int) error {
	if slot < 0 || slot >= len(c.slots) {
		return fmt.Errorf("%w: %d of %d", ErrNoSlot, slot, len(c.slots))
	}
	arm, err := c.arm()
	if err != nil {
		return err
	}
	v, err := c.vision()
	if err != nil {
		return err
	}

	if err := c.Neutral(ctx); err != nil {
		return err
	}
	d, err := v.DetectObject(ctx, c.cfg.Workspace, shape, color)
	if err != nil {
		return fmt.Errorf("detecting piece: %w", err)
	}
	if !d.Found {
		// The sensor piece failed the filter: clear it so the next load can
		// take its place.
		if err := c.VisionPick(ctx, capability.ShapeAny, capability.ColorAny); err != nil {
			return fmt.Errorf("%w: wanted %s %s: %w", capability.ErrNotDetected, color, shape, err)
		}
		if err := c.PutBackPiece(ctx); err != nil {
			return fmt.Errorf("putting back unmatched piece: %w", err)
		}
		return fmt.Errorf("%w: wanted %s %s, none at sensor",
			capability.ErrPieceMismatch, color, shape)
	}
	if err := c.VisionPick(ctx, capability.ShapeAny, capability.ColorAny); err != nil {
		return err
	}

	if !shape.Matches(d.Shape) || !color.Matches(d.Color) {
		if err := c.PutBackPiece(ctx); err != nil {
			return fmt.Errorf("putting back %s %s: %w", d.Color, d.Shape, err)
		}
		return fmt.Errorf("%w: wanted %s %s, got %s %s",
			capability.ErrPieceMismatch, color, shape, d.Color, d.Shape)
	}

	if err := c.Neutral(ctx); err != nil {
		return err
	}
	if err := c.moveTo(ctx, "build_point_"+strconv.Itoa(slot), c.slots[slot]); err != nil {
		return err
	}
	if err := arm.Release(ctx); err != nil {
		return fmt.Errorf("releasing on build slot %d: %w", slot, err)
	}
	return nil
}
